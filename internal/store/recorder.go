package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/runview/internal/clock"
	"github.com/roach88/runview/internal/event"
)

// IDGenerator produces run IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator produces time-ordered UUIDv7 run IDs.
type UUIDGenerator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Recorder writes every non-synthetic event of one run to a Store.
//
// The run row is created on the first event and finished on end. Write
// errors never interrupt the run: the first one is kept and returned by
// Err, later ones are only logged.
//
// Thread-safety: the handler installed by Attach may be called from any
// goroutine; writes are serialized internally.
type Recorder struct {
	store  *Store
	ctx    context.Context
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	run     Run
	created bool
	seq     int64
	err     error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithIDGenerator sets how the run ID is chosen. Defaults to UUIDGenerator.
func WithIDGenerator(g IDGenerator) RecorderOption {
	return func(r *Recorder) {
		r.run.ID = g.Generate()
	}
}

// WithRecorderClock sets the clock used for start and end times.
func WithRecorderClock(c clock.Clock) RecorderOption {
	return func(r *Recorder) {
		r.clock = c
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// NewRecorder prepares the recording of one run titled title, executed at
// location. ctx bounds every write.
func NewRecorder(ctx context.Context, s *Store, title, location string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  s,
		ctx:    ctx,
		clock:  clock.Real{},
		logger: slog.Default(),
		run:    Run{Title: title, Location: location},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.run.ID == "" {
		r.run.ID = UUIDGenerator{}.Generate()
	}
	return r
}

// RunID returns the ID the run is recorded under.
func (r *Recorder) RunID() string {
	return r.run.ID
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Attach subscribes the recorder to every event of src.
func (r *Recorder) Attach(src interface {
	SubscribeAll(func(event.Kind, event.Payload))
}) {
	src.SubscribeAll(r.Record)
}

// Record stores one event. Synthetic events are skipped.
func (r *Recorder) Record(kind event.Kind, p event.Payload) {
	if p.Synthetic {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.created {
		r.run.StartedAt = r.clock.Now()
		if err := r.store.CreateRun(r.ctx, r.run); err != nil {
			r.fail(err)
			return
		}
		r.created = true
		r.logger.Debug("recording run", "run", r.run.ID)
	}

	switch kind {
	case event.Start:
		r.run.Total = p.Total
	case event.Pass:
		r.run.Passes++
	case event.Fail:
		r.run.Failures++
	case event.Pending:
		r.run.Pending++
	}

	r.seq++
	if err := r.store.AppendEvent(r.ctx, r.run.ID, r.seq, kind, p); err != nil {
		r.fail(err)
		return
	}

	if kind == event.End {
		if err := r.store.FinishRun(r.ctx, r.run.ID, r.clock.Now(), r.run.Summary); err != nil {
			r.fail(err)
			return
		}
		r.logger.Debug("run recorded", "run", r.run.ID, "events", r.seq)
	}
}

// fail must be called with r.mu held.
func (r *Recorder) fail(err error) {
	r.logger.Warn("recording failed", "run", r.run.ID, "error", err)
	if r.err == nil {
		r.err = err
	}
}
