package web

import (
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/codec"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/screen"
)

// ImageEvent announces the still on the image surface. Cleared is true
// when the surface was emptied.
type ImageEvent struct {
	ID         string    `json:"id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
	Cleared    bool      `json:"cleared,omitempty"`
}

// ErrorEvent is a user-facing failure.
type ErrorEvent struct {
	Time string `json:"t"`
	Msg  string `json:"msg"`
}

// PermissionEvent is the camera permission as seen by the page.
type PermissionEvent struct {
	Status  string `json:"status"`
	Granted bool   `json:"granted"`
	Pending bool   `json:"pending"`
}

// ScreenView renders the capture screen to the page through SSE and keeps
// the still under review for GET /captured/{id}.jpg.
type ScreenView struct {
	b *StatusBroadcaster

	mu    sync.RWMutex
	image *codec.Bitmap
	last  screen.Snapshot
}

// NewScreenView publishes on b.
func NewScreenView(b *StatusBroadcaster) *ScreenView {
	return &ScreenView{b: b}
}

func capturedURL(id string) string { return "/captured/" + id + ".jpg" }

func (v *ScreenView) Render(s screen.Snapshot) {
	v.mu.Lock()
	v.last = s
	v.mu.Unlock()
	v.b.Publish("state", s)
}

func (v *ScreenView) ShowImage(bm *codec.Bitmap) {
	v.mu.Lock()
	v.image = bm
	v.mu.Unlock()

	if bm == nil {
		v.b.Publish("image", ImageEvent{Cleared: true})
		return
	}
	v.b.Publish("image", ImageEvent{
		ID:         bm.ID,
		URL:        capturedURL(bm.ID),
		Width:      bm.Width,
		Height:     bm.Height,
		CapturedAt: bm.CapturedAt,
	})
}

func (v *ScreenView) ReportError(err error) {
	v.b.Publish("error", ErrorEvent{
		Time: time.Now().Format(time.RFC3339),
		Msg:  err.Error(),
	})
}

// PermissionChanged publishes a prompt status change.
func (v *ScreenView) PermissionChanged(s permission.Status) {
	v.b.Publish("permission", permissionEvent(s))
}

func permissionEvent(s permission.Status) PermissionEvent {
	return PermissionEvent{
		Status:  s.String(),
		Granted: s == permission.StatusGranted,
		Pending: s == permission.StatusPending,
	}
}

// LastRender returns the latest rendered snapshot.
func (v *ScreenView) LastRender() screen.Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// CapturedJPEG returns the display encoding of the still under review if
// its ID is id.
func (v *ScreenView) CapturedJPEG(id string) ([]byte, bool) {
	v.mu.RLock()
	bm := v.image
	v.mu.RUnlock()
	if bm == nil || bm.ID != id {
		return nil, false
	}
	data := bm.JPEG()
	return data, data != nil
}
