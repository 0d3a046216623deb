package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/screen"
	"github.com/gorilla/mux"
)

// maxAnswerBytes bounds the POST /api/permission body.
const maxAnswerBytes = 1 << 10

// Controller is the part of the capture screen the HTTP API drives.
type Controller interface {
	Launch() error
	Capture() error
	Discard() error
	Snapshot() screen.Snapshot
}

// PermissionPrompt is an interactive permission service answered from the
// page. It is nil when the permission is fixed by configuration.
type PermissionPrompt interface {
	Status() permission.Status
	Answer(granted bool) error
}

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Broadcaster *StatusBroadcaster
	Controller  Controller
	View        *ScreenView
	Frames      *FrameHub
	Prompt      PermissionPrompt
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Deps
	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(deps Deps, staticFS fs.FS) *Handlers {
	return &Handlers{Deps: deps, staticFS: staticFS}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleState returns the controller snapshot.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.Snapshot())
}

// HandleLaunch handles POST /api/launch.
func (h *Handlers) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Launch(); err != nil {
		writeError(w, "launch", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Controller.Snapshot())
}

// HandleCapture handles POST /api/capture. The still is taken
// asynchronously; the outcome arrives on the status stream.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Capture(); err != nil {
		writeError(w, "capture", err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Controller.Snapshot())
}

// HandleDiscard handles POST /api/discard.
func (h *Handlers) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := h.Controller.Discard(); err != nil {
		writeError(w, "discard", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Controller.Snapshot())
}

// HandlePermission handles GET /api/permission.
func (h *Handlers) HandlePermission(w http.ResponseWriter, r *http.Request) {
	if h.Prompt == nil {
		status := permission.StatusDenied
		if h.Controller.Snapshot().PermissionGranted {
			status = permission.StatusGranted
		}
		writeJSON(w, http.StatusOK, permissionEvent(status))
		return
	}
	writeJSON(w, http.StatusOK, permissionEvent(h.Prompt.Status()))
}

type answerRequest struct {
	Granted *bool `json:"granted"`
}

// HandleAnswerPermission handles POST /api/permission with {"granted":bool}.
func (h *Handlers) HandleAnswerPermission(w http.ResponseWriter, r *http.Request) {
	if h.Prompt == nil {
		http.Error(w, "permission is fixed by configuration", http.StatusConflict)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAnswerBytes)
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Granted == nil {
		http.Error(w, "granted is required", http.StatusBadRequest)
		return
	}

	if err := h.Prompt.Answer(*req.Granted); err != nil {
		if errors.Is(err, permission.ErrNoPendingRequest) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, permissionEvent(h.Prompt.Status()))
}

// HandleCaptured serves the still under review as JPEG.
func (h *Handlers) HandleCaptured(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, ok := h.View.CapturedJPEG(id)
	if !ok {
		http.Error(w, "no such capture", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection, then the current state
	// so a fresh page does not wait for the next transition.
	w.Write([]byte(": connected\n\n"))
	if state, err := json.Marshal(h.Controller.Snapshot()); err == nil {
		writeEvent(w, Message{Event: "state", Data: string(state)})
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, msg Message) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps controller errors to HTTP status codes.
func writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, screen.ErrPermissionNotGranted):
		status = http.StatusForbidden
	case errors.Is(err, screen.ErrInvalidTransition), errors.Is(err, screen.ErrCaptureInFlight):
		status = http.StatusConflict
	case errors.Is(err, screen.ErrBindFailed):
		status = http.StatusBadGateway
	case errors.Is(err, screen.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	debug.Verbose("HTTP %s: %d %v", op, status, err)
	http.Error(w, err.Error(), status)
}
