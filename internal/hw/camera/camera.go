package camera

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrNotBound is returned by TakePicture when no preview is bound.
	ErrNotBound = errors.New("camera: no preview bound")
	// ErrClosed is returned once the camera has been closed.
	ErrClosed = errors.New("camera: closed")
)

// Frame is one encoded image coming out of the camera, either a live preview
// frame or a still. Data holds the raw JPEG buffer.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
	Source     string
}

// Surface is where a bound preview delivers its frames.
type Surface interface {
	PushFrame(f Frame)
}

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract camera, regardless of what produces the pixels
// (a webcam, the desktop, a synthetic pattern).
type Camera interface {
	// Bind starts streaming preview frames to surface. Any previous
	// binding is unbound first. ctx bounds how long Bind waits on the
	// device; it does not limit the stream itself.
	Bind(ctx context.Context, surface Surface) error
	// Unbind stops the preview stream. Safe to call when nothing is bound.
	// It does not wait for a device stuck in a grab.
	Unbind()
	// TakePicture captures a single still. A preview must be bound.
	TakePicture(ctx context.Context) (Frame, error)
	// Close unbinds and releases the device.
	Close() error
}

// Grabber produces raw images from a device. Implementations need not be
// safe for concurrent use.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
	Close() error
}
