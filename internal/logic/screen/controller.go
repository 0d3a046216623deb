// Package screen holds the capture screen controller: the state machine
// behind the launch, capture and cancel controls.
//
// Every transition runs on the UI queue. Stills are taken and decoded on a
// single camera worker queue and the outcome is posted back to the UI queue.
package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/codec"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/indicator"
	"github.com/cjeanneret/SnapGo/internal/logic/dispatch"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
)

var (
	ErrPermissionNotGranted = errors.New("screen: camera permission not granted")
	ErrInvalidTransition    = errors.New("screen: invalid transition")
	ErrCaptureInFlight      = errors.New("screen: capture already in flight")
	ErrBindFailed           = errors.New("screen: preview bind failed")
	ErrClosed               = errors.New("screen: closed")
)

const (
	defaultCaptureTimeout = 5 * time.Second
	defaultBindTimeout    = 5 * time.Second
)

// View renders the screen. All methods are called on the UI queue and must
// not call back into the Controller synchronously.
type View interface {
	Render(s Snapshot)
	// ShowImage installs bm on the image surface. nil clears it.
	ShowImage(bm *codec.Bitmap)
	// ReportError shows a user-facing failure. Called once per failure.
	ReportError(err error)
}

// Options wires the controller to its collaborators. Camera, Permission and
// Decoder are required.
type Options struct {
	Camera     camera.Camera
	Permission permission.Service
	Decoder    codec.Decoder
	View       View
	// Surface receives the live preview frames.
	Surface        camera.Surface
	Indicator      indicator.Indicator
	CaptureTimeout time.Duration
	// BindTimeout bounds how long Launch and Discard wait for the preview
	// to start.
	BindTimeout time.Duration
}

// Controller is the capture screen state machine.
type Controller struct {
	cam         camera.Camera
	perm        permission.Service
	decoder     codec.Decoder
	view        View
	surface     camera.Surface
	ind         indicator.Indicator
	timeout     time.Duration
	bindTimeout time.Duration

	// ctx ends at Teardown. Stills, binds and permission waits derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	ui     *dispatch.Queue
	worker *dispatch.Queue

	// Owned by the UI queue.
	state    ViewState
	bitmap   *codec.Bitmap
	inFlight bool
	closed   bool
	captures uint64
	failures uint64

	mu   sync.Mutex
	last Snapshot

	teardown sync.Once
}

type stillResult struct {
	bitmap *codec.Bitmap
	err    error
}

// New creates a controller in the Idle state. Nothing is rendered until
// Enter is called.
func New(opts Options) (*Controller, error) {
	if opts.Camera == nil || opts.Permission == nil || opts.Decoder == nil {
		return nil, errors.New("screen: camera, permission and decoder are required")
	}
	c := &Controller{
		cam:         opts.Camera,
		perm:        opts.Permission,
		decoder:     opts.Decoder,
		view:        opts.View,
		surface:     opts.Surface,
		ind:         opts.Indicator,
		timeout:     opts.CaptureTimeout,
		bindTimeout: opts.BindTimeout,
		ui:          dispatch.NewQueue("ui", 32),
		worker:      dispatch.NewQueue("camera worker", 1),
		state:       Idle,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	if c.view == nil {
		c.view = nopView{}
	}
	if c.surface == nil {
		c.surface = discardSurface{}
	}
	if c.ind == nil {
		c.ind = indicator.Nop{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultCaptureTimeout
	}
	if c.bindTimeout <= 0 {
		c.bindTimeout = defaultBindTimeout
	}
	c.last = c.snapshot()
	return c, nil
}

// Enter shows the screen in its initial state and asks for the camera
// permission if it is not granted yet.
func (c *Controller) Enter(ctx context.Context) error {
	if err := c.ui.Do(func() { c.render() }); err != nil {
		return ErrClosed
	}
	c.RequestPermission(ctx)
	return nil
}

// RequestPermission asks the permission service unless access is already
// granted. The outcome is logged and rendered when it arrives; Launch reads
// the service again at call time. The wait ends with ctx or at Teardown.
func (c *Controller) RequestPermission(ctx context.Context) {
	if c.perm.Granted() {
		debug.Verbose("Screen: camera permission already granted")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	outcome := c.perm.Request(ctx)
	go func() {
		defer cancel()
		defer stop()
		granted := <-outcome
		_ = c.ui.Post(func() { c.onPermission(granted) })
	}()
}

func (c *Controller) onPermission(granted bool) {
	if c.closed {
		return
	}
	if granted {
		debug.Info("Screen: camera permission granted")
	} else {
		debug.Info("Screen: camera permission not granted")
	}
	c.render()
}

// Launch binds the live preview and switches to Previewing. Without
// permission it does nothing and returns ErrPermissionNotGranted.
func (c *Controller) Launch() error {
	return c.do(c.launch)
}

func (c *Controller) launch() error {
	if !c.perm.Granted() {
		debug.Verbose("Screen: launch ignored, permission not granted")
		return ErrPermissionNotGranted
	}
	if c.state != Idle {
		return fmt.Errorf("launch from %s: %w", c.state, ErrInvalidTransition)
	}
	if err := c.bindPreview(); err != nil {
		c.report(fmt.Errorf("start preview: %w", err))
		c.render()
		return fmt.Errorf("%w: %w", ErrBindFailed, err)
	}
	c.setState(Previewing)
	return nil
}

// Capture requests one still. It returns as soon as the request is queued;
// the outcome switches the screen to Reviewing or reports an error.
func (c *Controller) Capture() error {
	return c.do(c.capture)
}

func (c *Controller) capture() error {
	if c.state != Previewing {
		return fmt.Errorf("capture from %s: %w", c.state, ErrInvalidTransition)
	}
	if c.inFlight {
		return ErrCaptureInFlight
	}
	if err := c.worker.Post(c.takeStill); err != nil {
		return ErrClosed
	}
	c.inFlight = true
	debug.Verbose("Screen: still requested")
	c.render()
	return nil
}

// takeStill runs on the worker queue.
func (c *Controller) takeStill() {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	if err := c.ind.Flash(); err != nil {
		debug.Error(fmt.Errorf("flash indicator: %w", err))
	}

	var res stillResult
	frame, err := c.cam.TakePicture(ctx)
	if err != nil {
		res.err = fmt.Errorf("capture failed: %w", err)
	} else {
		// The camera may reuse its buffer once TakePicture returns.
		raw := make([]byte, len(frame.Data))
		copy(raw, frame.Data)
		res.bitmap, res.err = c.decoder.Decode(raw, frame.CapturedAt)
		if res.err != nil {
			res.err = fmt.Errorf("capture failed: %w", res.err)
		}
	}

	if err := c.ui.Post(func() { c.deliver(res) }); err != nil {
		res.bitmap.Release()
	}
}

func (c *Controller) deliver(res stillResult) {
	c.inFlight = false
	if c.closed || c.state != Previewing {
		res.bitmap.Release()
		return
	}
	if res.err != nil {
		c.failures++
		c.report(res.err)
		c.render()
		return
	}

	c.captures++
	debug.Shot(c.captures, res.bitmap.Width, res.bitmap.Height)
	c.installBitmap(res.bitmap)
	c.unbindPreview()
	c.setState(Reviewing)
}

// Discard drops the still under review and goes back to the live preview.
// If the preview cannot be bound again the screen falls back to Idle.
func (c *Controller) Discard() error {
	return c.do(c.discard)
}

func (c *Controller) discard() error {
	if c.state != Reviewing {
		return fmt.Errorf("discard from %s: %w", c.state, ErrInvalidTransition)
	}
	c.clearBitmap()
	if err := c.bindPreview(); err != nil {
		c.report(fmt.Errorf("restart preview: %w", err))
		c.setState(Idle)
		return fmt.Errorf("%w: %w", ErrBindFailed, err)
	}
	c.setState(Previewing)
	return nil
}

// Teardown cancels pending camera and permission waits, then stops the
// worker. On the UI queue it releases the still and unbinds the preview
// before the queue itself stops. Later calls are no-ops. It does not close
// the camera.
func (c *Controller) Teardown() {
	c.teardown.Do(func() {
		debug.Verbose("Screen: teardown")
		_ = c.ui.Do(func() { c.closed = true })
		c.cancel()
		c.worker.Shutdown()
		_ = c.ui.Do(func() {
			c.clearBitmap()
			c.unbindPreview()
			c.inFlight = false
			c.render()
		})
		c.ui.Shutdown()
	})
}

// Snapshot returns the current state. After Teardown it returns the last
// rendered snapshot.
func (c *Controller) Snapshot() Snapshot {
	var s Snapshot
	if err := c.ui.Do(func() { s = c.snapshot() }); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.last
	}
	return s
}

func (c *Controller) do(op func() error) error {
	var opErr error
	if err := c.ui.Do(func() {
		if c.closed {
			opErr = ErrClosed
			return
		}
		opErr = op()
	}); err != nil {
		return ErrClosed
	}
	return opErr
}

func (c *Controller) setState(s ViewState) {
	if c.state != s {
		debug.State(c.state.String(), s.String())
	}
	c.state = s
	c.render()
}

func (c *Controller) render() {
	snap := c.snapshot()
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	c.view.Render(snap)
}

func (c *Controller) report(err error) {
	debug.Error(err)
	c.view.ReportError(err)
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:             c.state,
		Widgets:           WidgetsFor(c.state),
		PermissionGranted: c.perm.Granted(),
		Capturing:         c.inFlight,
		Captures:          c.captures,
		Failures:          c.failures,
	}
	if c.bitmap != nil {
		s.Image = &ImageInfo{
			ID:         c.bitmap.ID,
			Width:      c.bitmap.Width,
			Height:     c.bitmap.Height,
			CapturedAt: c.bitmap.CapturedAt,
		}
	}
	return s
}

func (c *Controller) bindPreview() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.bindTimeout)
	defer cancel()
	if err := c.cam.Bind(ctx, c.surface); err != nil {
		return err
	}
	if err := c.ind.SetTally(true); err != nil {
		debug.Error(fmt.Errorf("tally indicator: %w", err))
	}
	return nil
}

func (c *Controller) unbindPreview() {
	c.cam.Unbind()
	if err := c.ind.SetTally(false); err != nil {
		debug.Error(fmt.Errorf("tally indicator: %w", err))
	}
}

func (c *Controller) installBitmap(bm *codec.Bitmap) {
	c.clearBitmap()
	c.bitmap = bm
	c.view.ShowImage(bm)
}

func (c *Controller) clearBitmap() {
	if c.bitmap == nil {
		return
	}
	c.view.ShowImage(nil)
	c.bitmap.Release()
	c.bitmap = nil
}

type nopView struct{}

func (nopView) Render(Snapshot)         {}
func (nopView) ShowImage(*codec.Bitmap) {}
func (nopView) ReportError(error)       {}

type discardSurface struct{}

func (discardSurface) PushFrame(camera.Frame) {}
