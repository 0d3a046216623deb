//go:build !gocv

package camera

import (
	"errors"
	"time"
)

// NewWebcam is unavailable without OpenCV; rebuild with -tags gocv.
func NewWebcam(device, width, height int, interval time.Duration, quality int) (*Streamer, error) {
	return nil, errors.New("webcam camera requires a build with -tags gocv")
}
