//go:build gocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"gocv.io/x/gocv"
)

// WebcamGrabber reads frames from a V4L/UVC device through OpenCV.
type WebcamGrabber struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// NewWebcam opens video device id and asks for width x height frames.
func NewWebcam(device, width, height int, interval time.Duration, quality int) (*Streamer, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("open webcam %d: %w", device, err)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	debug.Verbose("Webcam %d opened (%vx%v)", device,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))

	g := &WebcamGrabber{vc: vc, mat: gocv.NewMat()}
	return NewStreamer("webcam", g, interval, quality), nil
}

func (g *WebcamGrabber) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := g.vc.Read(&g.mat); !ok || g.mat.Empty() {
		return nil, errors.New("webcam: empty frame")
	}
	return g.mat.ToImage()
}

func (g *WebcamGrabber) Close() error {
	if err := g.mat.Close(); err != nil {
		return err
	}
	return g.vc.Close()
}
