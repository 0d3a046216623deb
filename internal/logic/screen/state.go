package screen

import (
	"fmt"
	"time"
)

// ViewState is the screen mode. Exactly one is active at a time.
type ViewState int

const (
	Idle ViewState = iota
	Previewing
	Reviewing
)

func (s ViewState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Previewing:
		return "previewing"
	case Reviewing:
		return "reviewing"
	default:
		return fmt.Sprintf("ViewState(%d)", int(s))
	}
}

func (s ViewState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Widgets is the visibility of every control and surface on the screen.
type Widgets struct {
	Launch  bool `json:"launch"`
	Capture bool `json:"capture"`
	Cancel  bool `json:"cancel"`
	Preview bool `json:"preview"`
	Image   bool `json:"image"`
	// Streaming is true when the preview surface receives live frames.
	Streaming bool `json:"streaming"`
}

// WidgetsFor derives visibility from the state alone. Idle keeps the preview
// surface on screen, blank and not streaming, so every state shows exactly
// one surface.
//
//	Idle:       launch, preview (blank)
//	Previewing: capture, preview (streaming)
//	Reviewing:  cancel, image
func WidgetsFor(s ViewState) Widgets {
	switch s {
	case Previewing:
		return Widgets{Capture: true, Preview: true, Streaming: true}
	case Reviewing:
		return Widgets{Cancel: true, Image: true}
	default:
		return Widgets{Launch: true, Preview: true}
	}
}

// ImageInfo describes the still under review.
type ImageInfo struct {
	ID         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State             ViewState  `json:"state"`
	Widgets           Widgets    `json:"widgets"`
	PermissionGranted bool       `json:"permission_granted"`
	Capturing         bool       `json:"capturing"`
	Image             *ImageInfo `json:"image,omitempty"`
	Captures          uint64     `json:"captures"`
	Failures          uint64     `json:"failures"`
}
