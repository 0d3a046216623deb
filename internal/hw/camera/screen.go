package camera

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/vova616/screenshot"
)

// ScreenGrabber uses the desktop as the camera sensor. A non-empty region
// restricts the capture to that rectangle.
type ScreenGrabber struct {
	region image.Rectangle
}

// NewScreen returns a Camera streaming the primary display.
func NewScreen(region image.Rectangle, interval time.Duration, quality int) (*Streamer, error) {
	screen, err := screenshot.ScreenRect()
	if err != nil {
		return nil, fmt.Errorf("screen camera: %w", err)
	}
	if !region.Empty() && !region.In(screen) {
		return nil, fmt.Errorf("screen camera: region %v outside screen %v", region, screen)
	}
	return NewStreamer("screen", &ScreenGrabber{region: region}, interval, quality), nil
}

func (g *ScreenGrabber) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		img *image.RGBA
		err error
	)
	if g.region.Empty() {
		img, err = screenshot.CaptureScreen()
	} else {
		img, err = screenshot.CaptureRect(g.region)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (g *ScreenGrabber) Close() error { return nil }
