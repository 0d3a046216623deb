package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cjeanneret/SnapGo/internal/codec"
	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/screen"
	"github.com/cjeanneret/SnapGo/internal/web"
)

// cliOverrides are the config values that can be replaced from the command
// line. Zero values mean "use the config file".
type cliOverrides struct {
	CameraType     string
	PermissionMode string
	PreviewFPS     int
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	cameraType := flag.String("camera", "", "override camera type (mock, screen, webcam)")
	permissionMode := flag.String("permission", "", "override permission mode (prompt, granted, denied)")
	previewFPS := flag.Int("preview_fps", 0, "override live preview frame rate (1-60)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{
		CameraType:     *cameraType,
		PermissionMode: *permissionMode,
		PreviewFPS:     *previewFPS,
	}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	var broadcaster *web.StatusBroadcaster
	if webPort.port() > 0 {
		broadcaster = web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	}

	// Initialize GPIO driver and indicators
	debug.Step(1, "Initializing indicators")
	ind, closeGPIO, err := newIndicatorFromConfig(cfg)
	if err != nil {
		log.Fatalf("init indicators failed: %v", err)
	}
	defer closeGPIO()

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("closing camera failed: %v", err)
		}
	}()
	debug.PrintStruct("Camera config", cfg.Camera)

	// Permission service
	debug.Step(3, "Initializing permission service")
	perm, prompter := newPermissionFromConfig(cfg, webPort.port() > 0)
	debug.Value("Permission mode", cfg.Permission.Mode)

	decoder := codec.NewImageDecoder(cfg.Display.MaxWidth, cfg.Display.MaxHeight, cfg.Camera.JPEGQuality)

	if port := webPort.port(); port > 0 {
		if err := runWeb(ctx, port, broadcaster, cfg, cam, perm, prompter, decoder, ind); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if err := runProbe(ctx, cfg, cam, perm, decoder, ind); err != nil {
		log.Fatalf("probe failed: %v", err)
	}
}

// runWeb serves the capture screen until ctx is cancelled.
func runWeb(
	ctx context.Context,
	port int,
	broadcaster *web.StatusBroadcaster,
	cfg *config.Config,
	cam camera.Camera,
	perm permission.Service,
	prompter *permission.Prompter,
	decoder codec.Decoder,
	ind indicator.Indicator,
) error {
	view := web.NewScreenView(broadcaster)
	frames := web.NewFrameHub()

	debug.Step(4, "Creating capture screen")
	ctrl, err := screen.New(screen.Options{
		Camera:         cam,
		Permission:     perm,
		Decoder:        decoder,
		View:           view,
		Surface:        frames,
		Indicator:      ind,
		CaptureTimeout: cfg.CaptureTimeout(),
		BindTimeout:    cfg.BindTimeout(),
	})
	if err != nil {
		return err
	}
	defer ctrl.Teardown()

	deps := web.Deps{
		Broadcaster: broadcaster,
		Controller:  ctrl,
		View:        view,
		Frames:      frames,
	}
	if prompter != nil {
		unlisten := prompter.Listen(view.PermissionChanged)
		defer unlisten()
		deps.Prompt = prompter
	}

	if err := ctrl.Enter(ctx); err != nil {
		return err
	}

	srv, err := web.NewServer(fmt.Sprintf(":%d", port), deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// probeView logs what the screen would show.
type probeView struct{}

func (probeView) Render(s screen.Snapshot) {
	debug.Verbose("Probe: render %s (capturing=%v)", s.State, s.Capturing)
}

func (probeView) ShowImage(bm *codec.Bitmap) {
	if bm != nil {
		debug.Info("Probe: still %s is %dx%d (%d bytes for display)", bm.ID, bm.Width, bm.Height, len(bm.JPEG()))
	}
}

func (probeView) ReportError(err error) {
	debug.Info("Probe: error shown to user: %v", err)
}

// runProbe walks the screen once without a page: launch, capture one still,
// discard and tear down. It checks a camera backend headless.
func runProbe(
	ctx context.Context,
	cfg *config.Config,
	cam camera.Camera,
	perm permission.Service,
	decoder codec.Decoder,
	ind indicator.Indicator,
) error {
	debug.Section("Probe")
	ctrl, err := screen.New(screen.Options{
		Camera:         cam,
		Permission:     perm,
		Decoder:        decoder,
		View:           probeView{},
		Indicator:      ind,
		CaptureTimeout: cfg.CaptureTimeout(),
		BindTimeout:    cfg.BindTimeout(),
	})
	if err != nil {
		return err
	}
	defer ctrl.Teardown()

	if err := ctrl.Enter(ctx); err != nil {
		return err
	}
	if err := ctrl.Launch(); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	if err := ctrl.Capture(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	snap, err := waitForCapture(ctx, ctrl, cfg.CaptureTimeout()+time.Second)
	if err != nil {
		return err
	}
	if snap.State != screen.Reviewing {
		return errors.New("capture failed, see log")
	}
	debug.Summary("Probe Summary")
	debug.Value("Camera", cfg.Camera.Type)
	debug.Value("Still", fmt.Sprintf("%dx%d", snap.Image.Width, snap.Image.Height))

	if err := ctrl.Discard(); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	debug.Section("Probe Complete")
	return nil
}

// waitForCapture polls until the in-flight capture has an outcome.
func waitForCapture(ctx context.Context, ctrl *screen.Controller, timeout time.Duration) (screen.Snapshot, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		snap := ctrl.Snapshot()
		if !snap.Capturing {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-deadline:
			return snap, errors.New("capture did not complete in time")
		case <-ticker.C:
		}
	}
}

// validateCLIOverrides checks the non-zero CLI overrides.
func validateCLIOverrides(o cliOverrides) error {
	switch o.CameraType {
	case "", config.CameraMock, config.CameraScreen, config.CameraWebcam:
	default:
		return fmt.Errorf("camera must be mock, screen or webcam, got %q", o.CameraType)
	}
	switch o.PermissionMode {
	case "", config.PermissionPrompt, config.PermissionGranted, config.PermissionDenied:
	default:
		return fmt.Errorf("permission must be prompt, granted or denied, got %q", o.PermissionMode)
	}
	if o.PreviewFPS != 0 && (o.PreviewFPS < 1 || o.PreviewFPS > 60) {
		return fmt.Errorf("preview_fps must be between 1 and 60, got %d", o.PreviewFPS)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.CameraType != "" {
		cfg.Camera.Type = o.CameraType
	}
	if o.PermissionMode != "" {
		cfg.Permission.Mode = o.PermissionMode
	}
	if o.PreviewFPS > 0 {
		cfg.Camera.PreviewFPS = o.PreviewFPS
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg *config.Config) (camera.Camera, error) {
	interval := cfg.PreviewInterval()
	quality := cfg.Camera.JPEGQuality
	switch cfg.Camera.Type {
	case config.CameraMock:
		return camera.NewMock(cfg.Camera.Width, cfg.Camera.Height, interval, quality), nil
	case config.CameraScreen:
		cam, err := camera.NewScreen(image.Rectangle{}, interval, quality)
		if err != nil {
			return nil, err
		}
		return cam, nil
	case config.CameraWebcam:
		cam, err := camera.NewWebcam(cfg.Camera.Device, cfg.Camera.Width, cfg.Camera.Height, interval, quality)
		if err != nil {
			return nil, err
		}
		return cam, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newPermissionFromConfig returns the permission service and, in prompt
// mode, the prompter the page answers. Without a page nobody can answer a
// prompt, so prompt mode grants access.
func newPermissionFromConfig(cfg *config.Config, interactive bool) (permission.Service, *permission.Prompter) {
	switch cfg.Permission.Mode {
	case config.PermissionGranted:
		return permission.NewStatic(true), nil
	case config.PermissionDenied:
		return permission.NewStatic(false), nil
	default:
		if !interactive {
			debug.Info("No page to prompt for camera permission, assuming granted")
			return permission.NewStatic(true), nil
		}
		p := permission.NewPrompter()
		return p, p
	}
}

// newIndicatorFromConfig builds the LED indicators and returns a func that
// releases the GPIO driver.
func newIndicatorFromConfig(cfg *config.Config) (indicator.Indicator, func(), error) {
	if !cfg.Indicator.Enabled {
		debug.Verbose("Indicators disabled")
		return indicator.Nop{}, func() {}, nil
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, err
	}
	debug.PrintStruct("Indicator config", cfg.Indicator)
	ind := indicator.NewGPIOIndicator(gpioDriver, cfg.Indicator.TallyPin, cfg.Indicator.FlashPin, cfg.FlashDuration())
	closeGPIO := func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}
	return ind, closeGPIO, nil
}
