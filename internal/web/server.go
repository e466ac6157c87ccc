// Package web provides the controller's HTTP status page and local API.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"

	"github.com/sweeney/grow-controller/internal/control"
	"github.com/sweeney/grow-controller/internal/grow"
	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/status"
)

// GrowCycle starts and stops the grow cycle.
type GrowCycle interface {
	Start() error
	Stop() error
	State() grow.State
}

// SettingsApplier applies a settings payload.
type SettingsApplier interface {
	Handle(payload []byte) (control.Result, error)
}

// HistorySource answers history queries.
type HistorySource interface {
	Query(channel string, since time.Time, limit int) ([]history.Point, error)
}

// Options wires the server to the rest of the daemon. Grow, Settings,
// History and Metrics may be nil; their routes are then not registered.
type Options struct {
	Addr     string
	Tracker  *status.Tracker
	Grow     GrowCycle
	Settings SettingsApplier
	History  HistorySource
	Metrics  http.Handler

	// AdminUser and AdminHash (bcrypt) guard the write endpoints. With no
	// hash the write endpoints answer 403.
	AdminUser string
	AdminHash string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	opts       Options
	now        func() time.Time
}

// New creates a Server.
func New(o Options) *Server {
	s := &Server{opts: o, now: o.Now}
	if s.now == nil {
		s.now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	r.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	if o.History != nil {
		r.HandleFunc("/api/history/{channel}", s.handleHistory).Methods("GET")
	}
	if o.Metrics != nil {
		r.Handle("/metrics", o.Metrics).Methods("GET")
	}

	protected := alice.New(s.requireAdmin)
	api := r.PathPrefix("/api").Subrouter()
	if o.Grow != nil {
		api.Handle("/grow/start", protected.ThenFunc(s.handleGrowStart)).Methods("POST")
		api.Handle("/grow/stop", protected.ThenFunc(s.handleGrowStop)).Methods("POST")
	}
	if o.Settings != nil {
		api.Handle("/settings", protected.ThenFunc(s.handleSettings)).Methods("POST")
	}

	standard := alice.New(recoverPanic, logRequest)
	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           standard.Then(r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
