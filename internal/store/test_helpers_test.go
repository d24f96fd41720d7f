package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/runview/internal/event"
)

// createTestStore creates a new store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string, started time.Time) Run {
	return Run{ID: id, Title: "Tests", Location: "/tests", StartedAt: started}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// passingTest returns the events of one passed test inside one suite.
func passingTest(title string) []struct {
	kind event.Kind
	p    event.Payload
} {
	suite := &event.SuiteInfo{Title: "suite", FullTitle: "suite"}
	test := &event.TestInfo{Title: title, FullTitle: "suite " + title, Type: event.UnitTest, State: event.StatePassed}
	return []struct {
		kind event.Kind
		p    event.Payload
	}{
		{event.Start, event.Payload{Total: 1}},
		{event.Suite, event.Payload{Suite: suite}},
		{event.Test, event.Payload{Test: test}},
		{event.Pass, event.Payload{Test: test}},
		{event.TestEnd, event.Payload{Test: test}},
		{event.SuiteEnd, event.Payload{Suite: suite}},
		{event.End, event.Payload{}},
	}
}
