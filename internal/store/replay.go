package store

import (
	"context"
	"fmt"

	"github.com/roach88/runview/internal/event"
)

// Replay emits the recorded events of a run to emitter in their original
// order and returns how many were emitted.
//
// Events about the same unit share one *event.TestInfo, as they did when
// the run was recorded, so consumers annotating it see their annotations
// on later events. Replay stops early with ctx.Err() if ctx is cancelled.
func (s *Store) Replay(ctx context.Context, runID string, emitter event.Emitter) (int, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return 0, fmt.Errorf("replay: %w", err)
	}

	units := make(map[unitKey]*event.TestInfo)
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if e.Payload.Test != nil {
			e.Payload.Test = intern(units, e.Payload.Test)
		}
		emitter.Emit(e.Kind, e.Payload)
	}
	return len(events), nil
}

type unitKey struct {
	typ       event.UnitType
	fullTitle string
}

// intern returns the shared TestInfo for t's unit, refreshed with t's
// recorded state. An error recorded earlier is kept when t has none.
func intern(units map[unitKey]*event.TestInfo, t *event.TestInfo) *event.TestInfo {
	key := unitKey{typ: t.Type, fullTitle: t.FullTitle}
	shared, ok := units[key]
	if !ok {
		units[key] = t
		return t
	}
	errRec := shared.Err
	*shared = *t
	if shared.Err == nil {
		shared.Err = errRec
	}
	return shared
}
