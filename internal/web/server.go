package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, deps Deps) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(deps, subFS),
	}, nil
}

// Router returns an http.Handler with all routes registered.
func (s *Server) Router() http.Handler {
	return s.handlers.Router()
}

// Router registers every route on a gorilla/mux router.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", h.HandleState).Methods(http.MethodGet)
	api.HandleFunc("/launch", h.HandleLaunch).Methods(http.MethodPost)
	api.HandleFunc("/capture", h.HandleCapture).Methods(http.MethodPost)
	api.HandleFunc("/discard", h.HandleDiscard).Methods(http.MethodPost)
	api.HandleFunc("/permission", h.HandlePermission).Methods(http.MethodGet)
	api.HandleFunc("/permission", h.HandleAnswerPermission).Methods(http.MethodPost)

	r.HandleFunc("/captured/{id:[0-9a-f-]+}.jpg", h.HandleCaptured).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", h.HandleStatusStream).Methods(http.MethodGet)
	if h.Frames != nil {
		r.Handle("/ws/preview", h.Frames).Methods(http.MethodGet)
	}
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	r.HandleFunc("/", h.ServeIndex).Methods(http.MethodGet)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Websocket connections are hijacked and not closed by Shutdown.
	if s.handlers.Frames != nil {
		srv.RegisterOnShutdown(s.handlers.Frames.Close)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
