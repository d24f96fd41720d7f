// Package server serves a live report over HTTP.
//
// The current report document is available at "/", and every websocket
// client on "/ws" receives a fresh snapshot after each event that changes
// it. Toggles posted to "/toggle/{id}" act on the report as a click would.
// A reload triggered by a toggle is handled by whoever owns the run; the
// server only swaps in the next view when Attach is called again.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/runview/internal/event"
	"github.com/roach88/runview/internal/reporter"
)

// Source is the event bus of the run being viewed.
type Source interface {
	event.Source
	SubscribeAll(func(event.Kind, event.Payload))
	Do(func())
}

// Snapshot is the message pushed to websocket clients.
type Snapshot struct {
	Seq      int64            `json:"seq"`
	Location string           `json:"location"`
	Session  reporter.Session `json:"session"`
	HTML     string           `json:"html"`
}

// snapshotKinds are the events after which the document has changed.
var snapshotKinds = map[event.Kind]bool{
	event.Start:    true,
	event.End:      true,
	event.Suite:    true,
	event.SuiteEnd: true,
	event.TestEnd:  true,
	event.Pass:     true,
	event.Fail:     true,
}

type view struct {
	src Source
	rep *reporter.Reporter
	gen int64
}

// Server is the live view HTTP server.
//
// Thread-safety: Attach and the HTTP handlers may run concurrently. All
// document access goes through the attached Source's Do or happens inside
// its event handlers.
type Server struct {
	view     atomic.Pointer[view]
	latest   atomic.Pointer[[]byte]
	seq      atomic.Int64
	gen      atomic.Int64
	hub      *hub
	router   *mux.Router
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer exposes g on /metrics. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a server with no view attached.
func New(opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s.logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/toggle/{id}", s.handleToggle).Methods(http.MethodPost)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Attach makes rep, fed by src, the view being served, and pushes its
// current state to every client. Events from a previously attached source
// stop producing snapshots.
func (s *Server) Attach(src Source, rep *reporter.Reporter) {
	v := &view{src: src, rep: rep, gen: s.gen.Add(1)}
	s.view.Store(v)

	src.SubscribeAll(func(kind event.Kind, _ event.Payload) {
		if !snapshotKinds[kind] || s.view.Load() != v {
			return
		}
		s.publish(v)
	})
	src.Do(func() { s.publish(v) })
	s.logger.Debug("view attached", "generation", v.gen)
}

// publish renders v and broadcasts it. Callers must hold v's dispatch.
func (s *Server) publish(v *view) {
	msg, err := json.Marshal(s.snapshot(v))
	if err != nil {
		s.logger.Error("snapshot encoding failed", "error", err)
		return
	}
	s.latest.Store(&msg)
	s.hub.broadcast(msg)
}

func (s *Server) snapshot(v *view) Snapshot {
	return Snapshot{
		Seq:      s.seq.Add(1),
		Location: v.rep.Location().String(),
		Session:  v.rep.Session(),
		HTML:     v.rep.Document().String(),
	}
}

// current runs f with exclusive access to the attached view.
func (s *Server) current(f func(v *view)) bool {
	v := s.view.Load()
	if v == nil {
		return false
	}
	v.src.Do(func() { f(v) })
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	var page string
	if !s.current(func(v *view) { page = v.rep.Document().String() }) {
		http.Error(w, "no run attached", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	var snap Snapshot
	if !s.current(func(v *view) { snap = s.snapshot(v) }) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no run attached"})
		return
	}
	snap.HTML = ""
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var toggleErr error
	var snap Snapshot
	attached := s.current(func(v *view) {
		if toggleErr = v.rep.Toggle(id); toggleErr != nil {
			return
		}
		s.publish(v)
		snap = s.snapshot(v)
	})
	switch {
	case !attached:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no run attached"})
	case toggleErr != nil:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: toggleErr.Error()})
	default:
		s.logger.Info("toggle applied", "id", id, "location", snap.Location)
		snap.HTML = ""
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var initial []byte
	if p := s.latest.Load(); p != nil {
		initial = *p
	}
	s.hub.serve(w, r, initial)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	if ready != nil {
		ready <- ln.Addr()
	}
	s.logger.Info("serving live view", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.hub.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write json failed", "error", err)
	}
}
