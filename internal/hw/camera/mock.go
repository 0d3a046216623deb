package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PatternGrabber draws a synthetic test card: scrolling colour bars with a
// frame counter and wall clock. Used for development without a camera.
type PatternGrabber struct {
	width  int
	height int
	frame  int
}

// NewPatternGrabber returns a test-card source of the given size.
func NewPatternGrabber(width, height int) *PatternGrabber {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &PatternGrabber{width: width, height: height}
}

var bars = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
}

func (p *PatternGrabber) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.frame++
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))

	barW := p.width / len(bars)
	if barW == 0 {
		barW = 1
	}
	shift := (p.frame * 4) % p.width
	for x := 0; x < p.width; x++ {
		c := bars[((x+shift)/barW)%len(bars)]
		for y := 0; y < p.height*3/4; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	draw.Draw(img, image.Rect(0, p.height*3/4, p.width, p.height), image.NewUniform(color.RGBA{24, 24, 24, 255}), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(12, p.height-16),
	}
	d.DrawString(fmt.Sprintf("SnapGo test card  #%06d  %s", p.frame, time.Now().Format("15:04:05.000")))
	return img, nil
}

func (p *PatternGrabber) Close() error { return nil }

// Mock is the development camera. It streams the test card and lets tests
// inject bind and capture failures.
type Mock struct {
	*Streamer

	mu          sync.Mutex
	bindErr     error
	captureErrs []error
	captures    int
}

// NewMock returns a mock camera producing width x height frames.
func NewMock(width, height int, interval time.Duration, quality int) *Mock {
	return &Mock{Streamer: NewStreamer("mock", NewPatternGrabber(width, height), interval, quality)}
}

// FailBind makes every following Bind return err (nil clears it).
func (m *Mock) FailBind(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindErr = err
}

// FailNextCapture queues err for the next TakePicture call.
func (m *Mock) FailNextCapture(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureErrs = append(m.captureErrs, err)
}

// Captures returns how many stills were requested.
func (m *Mock) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

func (m *Mock) Bind(ctx context.Context, surface Surface) error {
	m.mu.Lock()
	err := m.bindErr
	m.mu.Unlock()
	if err != nil {
		m.Streamer.Unbind()
		return fmt.Errorf("bind mock preview: %w", err)
	}
	return m.Streamer.Bind(ctx, surface)
}

func (m *Mock) TakePicture(ctx context.Context) (Frame, error) {
	m.mu.Lock()
	m.captures++
	var err error
	if len(m.captureErrs) > 0 {
		err, m.captureErrs = m.captureErrs[0], m.captureErrs[1:]
	}
	m.mu.Unlock()
	if err != nil {
		return Frame{}, fmt.Errorf("take picture: %w", err)
	}
	return m.Streamer.TakePicture(ctx)
}
