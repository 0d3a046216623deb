package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/disintegration/imaging"
)

// Streamer turns a Grabber into a Camera: a ticker-driven preview loop for
// the bound surface plus on-demand stills.
type Streamer struct {
	name     string
	grabber  Grabber
	interval time.Duration
	quality  int

	// grabSlot holds a token while a Grab is running. A Grab abandoned by
	// its caller keeps the token until the device returns.
	grabSlot chan struct{}

	mu      sync.Mutex
	bound   bool
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	seq     atomic.Uint64
	binds   atomic.Uint64
	unbinds atomic.Uint64
}

// NewStreamer wraps g. interval is the preview frame period and quality the
// JPEG quality used for both preview frames and stills.
func NewStreamer(name string, g Grabber, interval time.Duration, quality int) *Streamer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Streamer{
		name:     name,
		grabber:  g,
		interval: interval,
		quality:  quality,
		grabSlot: make(chan struct{}, 1),
	}
}

// Name identifies the backend ("mock", "screen", "webcam").
func (s *Streamer) Name() string { return s.name }

// Bound reports whether a preview is currently streaming.
func (s *Streamer) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

// Bindings returns how many times a preview was bound and unbound.
func (s *Streamer) Bindings() (binds, unbinds uint64) {
	return s.binds.Load(), s.unbinds.Load()
}

// Bind grabs a first frame before streaming so an unusable device fails the
// bind instead of producing an empty preview. ctx bounds that first grab.
func (s *Streamer) Bind(ctx context.Context, surface Surface) error {
	if surface == nil {
		return errors.New("camera: nil surface")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.unbindLocked()

	first, err := s.grabFrame(ctx)
	if err != nil {
		return fmt.Errorf("bind %s preview: %w", s.name, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done, s.bound = cancel, done, true
	s.binds.Add(1)
	debug.Live("Camera %s: preview bound (%v/frame)", s.name, s.interval)

	surface.PushFrame(first)
	go s.run(loopCtx, surface, done)
	return nil
}

func (s *Streamer) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unbindLocked()
}

func (s *Streamer) unbindLocked() {
	if !s.bound {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done, s.bound = nil, nil, false
	s.unbinds.Add(1)
	debug.Live("Camera %s: preview unbound", s.name)
}

// run never waits for the grabber: a tick is skipped while another grab
// holds the device, and a running grab is abandoned when ctx ends.
func (s *Streamer) run(ctx context.Context, surface Surface, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.acquireGrab() {
				continue
			}
			f, err := s.grabHeld(ctx)
			if err != nil {
				if ctx.Err() == nil {
					debug.Error(fmt.Errorf("camera %s: preview frame: %w", s.name, err))
				}
				continue
			}
			debug.Frame(s.name, f.Seq, len(f.Data))
			surface.PushFrame(f)
		}
	}
}

// TakePicture grabs and encodes one still. ctx bounds how long the caller
// waits for the device, including a grab already in progress.
func (s *Streamer) TakePicture(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	closed, bound := s.closed, s.bound
	s.mu.Unlock()
	if closed {
		return Frame{}, ErrClosed
	}
	if !bound {
		return Frame{}, ErrNotBound
	}

	f, err := s.grabFrame(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("take picture: %w", err)
	}
	debug.Live("Camera %s: still #%d (%d bytes)", s.name, f.Seq, len(f.Data))
	return f, nil
}

// GrabBusy reports whether a grab, possibly one abandoned by its caller, is
// still running on the device.
func (s *Streamer) GrabBusy() bool {
	return len(s.grabSlot) > 0
}

func (s *Streamer) acquireGrab() bool {
	select {
	case s.grabSlot <- struct{}{}:
		return true
	default:
		return false
	}
}

// grabFrame waits for the device to be free, then grabs one frame. Both
// waits end with ctx.
func (s *Streamer) grabFrame(ctx context.Context) (Frame, error) {
	select {
	case s.grabSlot <- struct{}{}:
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
	return s.grabHeld(ctx)
}

// grabHeld runs Grab on its own goroutine. The caller must hold the grab
// slot; it is released when Grab returns, even if the caller gave up.
func (s *Streamer) grabHeld(ctx context.Context) (Frame, error) {
	type result struct {
		img image.Image
		err error
	}
	ch := make(chan result, 1)
	go func() {
		img, err := s.grabber.Grab(ctx)
		<-s.grabSlot
		ch <- result{img, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return Frame{}, r.err
		}
		return s.encode(r.img)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *Streamer) encode(img image.Image) (Frame, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return Frame{}, fmt.Errorf("encode jpeg: %w", err)
	}
	b := img.Bounds()
	return Frame{
		Data:       buf.Bytes(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		Seq:        s.seq.Add(1),
		CapturedAt: time.Now(),
		Source:     s.name,
	}, nil
}

// closeWait bounds how long Close waits for an outstanding grab.
const closeWait = 2 * time.Second

// Close unbinds and closes the grabber. If a grab is still stuck in the
// device after closeWait, the grabber is left open and an error returned.
// The grab slot stays taken so no Grab reaches a closed grabber.
func (s *Streamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.unbindLocked()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.grabSlot <- struct{}{}:
	case <-time.After(closeWait):
		return fmt.Errorf("close %s: grab still in progress", s.name)
	}
	return s.grabber.Close()
}
