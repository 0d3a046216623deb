// Package codec turns raw still buffers into bitmaps ready for the review
// surface.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ErrEmptyBuffer is returned when asked to decode zero bytes.
var ErrEmptyBuffer = errors.New("codec: empty image buffer")

// Bitmap is a decoded still owned by whoever holds it until Release.
type Bitmap struct {
	ID         string
	Width      int
	Height     int
	CapturedAt time.Time

	mu       sync.RWMutex
	img      image.Image
	jpeg     []byte
	released bool
	onFree   func()
}

// NewBitmap wraps an already decoded image. encoded is the JPEG served to
// the review surface and may be nil.
func NewBitmap(img image.Image, encoded []byte, capturedAt time.Time) *Bitmap {
	b := img.Bounds()
	return &Bitmap{
		ID:         uuid.NewString(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: capturedAt,
		img:        img,
		jpeg:       encoded,
	}
}

// Image returns the pixels, or nil once released.
func (b *Bitmap) Image() image.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.img
}

// JPEG returns the display encoding, or nil once released.
func (b *Bitmap) JPEG() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jpeg
}

// Released reports whether Release was called.
func (b *Bitmap) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}

// Release drops the pixel data. Calling it more than once is a no-op.
func (b *Bitmap) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.img, b.jpeg = nil, nil
	onFree := b.onFree
	b.mu.Unlock()
	if onFree != nil {
		onFree()
	}
}

// Decoder converts raw buffers (JPEG, PNG, GIF, ...) into Bitmaps.
type Decoder interface {
	Decode(raw []byte, capturedAt time.Time) (*Bitmap, error)
}

// ImageDecoder decodes with EXIF auto-orientation and fits the result into
// a display box. It counts the bitmaps it produced that are not yet released.
type ImageDecoder struct {
	maxWidth  int
	maxHeight int
	quality   int
	live      atomic.Int64
}

// NewImageDecoder returns a decoder fitting stills into maxWidth x maxHeight
// and re-encoding them as JPEG at quality for display.
func NewImageDecoder(maxWidth, maxHeight, quality int) *ImageDecoder {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &ImageDecoder{maxWidth: maxWidth, maxHeight: maxHeight, quality: quality}
}

// Live returns the number of decoded bitmaps not yet released.
func (d *ImageDecoder) Live() int64 { return d.live.Load() }

func (d *ImageDecoder) Decode(raw []byte, capturedAt time.Time) (*Bitmap, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyBuffer
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode still: %w", err)
	}

	if d.maxWidth > 0 && d.maxHeight > 0 {
		b := img.Bounds()
		if b.Dx() > d.maxWidth || b.Dy() > d.maxHeight {
			img = imaging.Fit(img, d.maxWidth, d.maxHeight, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.quality)); err != nil {
		return nil, fmt.Errorf("encode still for display: %w", err)
	}

	bm := NewBitmap(img, buf.Bytes(), capturedAt)
	d.live.Add(1)
	bm.onFree = func() { d.live.Add(-1) }
	return bm, nil
}
