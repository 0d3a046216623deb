package main

import (
	"context"
	"errors"
	"testing"

	"github.com/cjeanneret/SnapGo/internal/codec"
	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/screen"
)

// ---------- validateCLIOverrides ----------

func TestValidateCLIOverrides_AllZero(t *testing.T) {
	if err := validateCLIOverrides(cliOverrides{}); err != nil {
		t.Errorf("all zeros should be valid (use config defaults), got: %v", err)
	}
}

func TestValidateCLIOverrides_Valid(t *testing.T) {
	cases := []struct {
		name string
		o    cliOverrides
	}{
		{"mock", cliOverrides{CameraType: "mock"}},
		{"screen", cliOverrides{CameraType: "screen"}},
		{"webcam", cliOverrides{CameraType: "webcam"}},
		{"prompt", cliOverrides{PermissionMode: "prompt"}},
		{"granted", cliOverrides{PermissionMode: "granted"}},
		{"denied", cliOverrides{PermissionMode: "denied"}},
		{"min_fps", cliOverrides{PreviewFPS: 1}},
		{"max_fps", cliOverrides{PreviewFPS: 60}},
		{"all", cliOverrides{CameraType: "mock", PermissionMode: "granted", PreviewFPS: 25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestValidateCLIOverrides_Invalid(t *testing.T) {
	cases := []struct {
		name string
		o    cliOverrides
	}{
		{"unknown_camera", cliOverrides{CameraType: "nikon"}},
		{"camera_case", cliOverrides{CameraType: "Mock"}},
		{"unknown_permission", cliOverrides{PermissionMode: "maybe"}},
		{"fps_negative", cliOverrides{PreviewFPS: -1}},
		{"fps_too_large", cliOverrides{PreviewFPS: 61}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCLIOverrides(tc.o); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
		{"3000", 3000},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	cases := []string{"0", "65536", "-1", "abc", "8080.5"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(input); err == nil {
				t.Errorf("Set(%q) should fail, got nil", input)
			}
		})
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}

// ---------- applyOverrides ----------

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Camera:     config.CameraConfig{Type: "mock", Width: 64, Height: 48, PreviewFPS: 20},
		Display:    config.DisplayConfig{MaxWidth: 32, MaxHeight: 32},
		Permission: config.PermissionConfig{Mode: "granted"},
		Defaults:   config.DefaultsConfig{MockGPIO: true},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestApplyOverrides_NonZero(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, cliOverrides{CameraType: "screen", PermissionMode: "denied", PreviewFPS: 5})

	if cfg.Camera.Type != "screen" {
		t.Errorf("Camera.Type = %q, want screen", cfg.Camera.Type)
	}
	if cfg.Permission.Mode != "denied" {
		t.Errorf("Permission.Mode = %q, want denied", cfg.Permission.Mode)
	}
	if cfg.Camera.PreviewFPS != 5 {
		t.Errorf("PreviewFPS = %d, want 5", cfg.Camera.PreviewFPS)
	}
}

func TestApplyOverrides_ZeroKeepsConfig(t *testing.T) {
	cfg := newTestConfig(t)
	applyOverrides(cfg, cliOverrides{})

	if cfg.Camera.Type != "mock" || cfg.Permission.Mode != "granted" || cfg.Camera.PreviewFPS != 20 {
		t.Errorf("zero overrides changed config: %+v", cfg)
	}
}

// ---------- factories ----------

func TestNewCameraFromConfig_Mock(t *testing.T) {
	cam, err := newCameraFromConfig(newTestConfig(t))
	if err != nil {
		t.Fatalf("newCameraFromConfig: %v", err)
	}
	defer cam.Close()
	if _, ok := cam.(*camera.Mock); !ok {
		t.Errorf("camera = %T, want *camera.Mock", cam)
	}
}

func TestNewCameraFromConfig_Unsupported(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Camera.Type = "nikon_d90_gpio"
	if _, err := newCameraFromConfig(cfg); err == nil {
		t.Error("expected error for unsupported camera type")
	}
}

func TestNewPermissionFromConfig(t *testing.T) {
	cases := []struct {
		mode        string
		interactive bool
		wantGranted bool
		wantPrompt  bool
	}{
		{"granted", true, true, false},
		{"denied", true, false, false},
		{"prompt", true, false, true},
		{"prompt", false, true, false},
	}
	for _, tc := range cases {
		cfg := newTestConfig(t)
		cfg.Permission.Mode = tc.mode
		perm, prompter := newPermissionFromConfig(cfg, tc.interactive)
		if perm.Granted() != tc.wantGranted {
			t.Errorf("%s/%v: Granted() = %v, want %v", tc.mode, tc.interactive, perm.Granted(), tc.wantGranted)
		}
		if (prompter != nil) != tc.wantPrompt {
			t.Errorf("%s/%v: prompter = %v, want prompt %v", tc.mode, tc.interactive, prompter, tc.wantPrompt)
		}
	}
}

func TestNewIndicatorFromConfig(t *testing.T) {
	cfg := newTestConfig(t)
	ind, closeGPIO, err := newIndicatorFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	closeGPIO()
	if _, ok := ind.(indicator.Nop); !ok {
		t.Errorf("disabled indicator = %T, want indicator.Nop", ind)
	}

	cfg.Indicator = config.IndicatorConfig{Enabled: true, TallyPin: 17, FlashPin: 27, FlashMs: 1}
	ind, closeGPIO, err = newIndicatorFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeGPIO()
	if _, ok := ind.(*indicator.GPIOIndicator); !ok {
		t.Errorf("enabled indicator = %T, want *indicator.GPIOIndicator", ind)
	}
	if err := ind.SetTally(true); err != nil {
		t.Errorf("SetTally on mock GPIO: %v", err)
	}
}

// ---------- probe ----------

func TestRunProbe(t *testing.T) {
	cfg := newTestConfig(t)
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()
	decoder := codec.NewImageDecoder(cfg.Display.MaxWidth, cfg.Display.MaxHeight, 80)

	if err := runProbe(context.Background(), cfg, cam, permission.NewStatic(true), decoder, indicator.Nop{}); err != nil {
		t.Fatalf("runProbe: %v", err)
	}
	if decoder.Live() != 0 {
		t.Errorf("Live() = %d after probe, want 0", decoder.Live())
	}
}

func TestRunProbe_PermissionDenied(t *testing.T) {
	cfg := newTestConfig(t)
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer cam.Close()

	err = runProbe(context.Background(), cfg, cam, permission.NewStatic(false), codec.NewImageDecoder(0, 0, 80), indicator.Nop{})
	if !errors.Is(err, screen.ErrPermissionNotGranted) {
		t.Errorf("err = %v, want ErrPermissionNotGranted", err)
	}
}

func TestRunProbe_CaptureFailure(t *testing.T) {
	cfg := newTestConfig(t)
	mock := camera.NewMock(32, 24, cfg.PreviewInterval(), 80)
	defer mock.Close()
	mock.FailNextCapture(errors.New("sensor fault"))

	err := runProbe(context.Background(), cfg, mock, permission.NewStatic(true), codec.NewImageDecoder(0, 0, 80), indicator.Nop{})
	if err == nil {
		t.Error("expected probe to fail when the still fails")
	}
}
