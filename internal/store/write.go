package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/runview/internal/event"
)

// Run is one recorded run.
type Run struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Location  string     `json:"location"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Summary
}

// Summary holds the final counts of a run.
type Summary struct {
	Total    int `json:"total"`
	Passes   int `json:"passes"`
	Failures int `json:"failures"`
	Pending  int `json:"pending"`
}

// Ended reports whether the run was finished.
func (r Run) Ended() bool {
	return r.EndedAt != nil
}

const timeLayout = time.RFC3339Nano

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	location := run.Location
	if location == "" {
		location = "/"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, title, location, started_at, total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Title,
		location,
		run.StartedAt.UTC().Format(timeLayout),
		run.Total,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AppendEvent inserts one event of a run at seq.
//
// Note: The run referenced by runID must exist (foreign key constraint).
// Writing the same (run, seq) twice is an error: sequence numbers are
// assigned by a single recorder.
func (s *Store) AppendEvent(ctx context.Context, runID string, seq int64, kind event.Kind, p event.Payload) error {
	payload, err := marshalPayload(p)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, payload)
		VALUES (?, ?, ?, ?)
	`,
		runID,
		seq,
		kind.String(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// FinishRun records the end time and final counts of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, endedAt time.Time, sum Summary) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET ended_at = ?, total = ?, passes = ?, failures = ?, pending = ?
		WHERE id = ?
	`,
		endedAt.UTC().Format(timeLayout),
		sum.Total,
		sum.Passes,
		sum.Failures,
		sum.Pending,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", runID, ErrRunNotFound)
	}
	return nil
}
