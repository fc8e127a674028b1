package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 5 * time.Second
)

// Server serves the editor API and the status stream for one controller.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer binds the handlers to ctrl. Nothing listens until Run.
func NewServer(addr string, broadcaster *StatusBroadcaster, ctrl Controller) (*Server, error) {
	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static assets: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, ctrl, assets),
	}, nil
}

// Routes maps the state, command and reorder endpoints plus the page assets.
func (s *Server) Routes() http.Handler {
	h := s.handlers
	mux := http.NewServeMux()

	mux.HandleFunc("GET /state", h.HandleState)
	mux.HandleFunc("POST /command", h.HandleCommand)
	mux.HandleFunc("POST /reorder", h.HandleReorder)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex)

	return mux
}

// Run listens on the configured address. It returns nil once ctx ends and
// open streams are drained, or the listener error if binding fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	failed := make(chan error, 1)
	go func() {
		debug.Info("web: listening on %s", s.addr)
		failed <- srv.ListenAndServe()
	}()

	select {
	case err := <-failed:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drain, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	debug.Info("web: shutting down")
	return srv.Shutdown(drain)
}
