// Package web serves the release receiver's live status over HTTP: an HTML
// page for people and the same snapshot as JSON for scripts.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/sweeney/payload-release/internal/status"
)

const readHeaderTimeout = 5 * time.Second

// Server answers status requests from a Tracker snapshot.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server on addr backed by tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.page)
	mux.HandleFunc("/index.json", s.snapshotJSON)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           readOnly(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects anything but GET and HEAD. Snapshots go stale within
// one poll period, so responses are never cached.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) snapshotJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
