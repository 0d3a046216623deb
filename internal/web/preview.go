package web

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/gorilla/websocket"
)

const (
	frameWriteWait = 2 * time.Second
	// Frames queued per client before new ones are dropped.
	frameBacklog = 2
)

// FrameHub is the preview surface of the page. It receives frames from the
// bound camera and fans them out to websocket clients as binary JPEG
// messages. Slow clients drop frames instead of stalling the camera.
type FrameHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*frameClient]struct{}
	last    []byte
	closed  bool

	frames  atomic.Uint64
	dropped atomic.Uint64
}

type frameClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFrameHub creates an empty hub.
func NewFrameHub() *FrameHub {
	return &FrameHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
		},
		clients: make(map[*frameClient]struct{}),
	}
}

// PushFrame implements camera.Surface.
func (h *FrameHub) PushFrame(f camera.Frame) {
	h.frames.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = f.Data
	for c := range h.clients {
		select {
		case c.send <- f.Data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected preview clients.
func (h *FrameHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns how many frames were received and how many client
// deliveries were dropped.
func (h *FrameHub) Stats() (frames, dropped uint64) {
	return h.frames.Load(), h.dropped.Load()
}

// ServeHTTP upgrades GET /ws/preview and streams frames until the client
// goes away or the hub is closed. A new client first gets the latest frame.
func (h *FrameHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		debug.Verbose("Preview: upgrade failed: %v", err)
		return
	}

	c := &frameClient{conn: conn, send: make(chan []byte, frameBacklog)}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(frameWriteWait))
		conn.Close()
		return
	}
	debug.Verbose("Preview: client connected (%s)", r.RemoteAddr)

	// The reader only detects the close; clients never send frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister(c)
				return
			}
		}
	}()

	defer conn.Close()
	for data := range c.send {
		conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			h.unregister(c)
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(frameWriteWait))
	debug.Verbose("Preview: client disconnected (%s)", r.RemoteAddr)
}

func (h *FrameHub) register(c *frameClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	return true
}

func (h *FrameHub) unregister(c *frameClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client. Frames pushed afterwards are ignored.
func (h *FrameHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.last = nil
}
