package console

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runview/internal/event"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func failingRun(t *testing.T, s *Summary) {
	t.Helper()
	bus := event.NewBus()
	s.Attach(bus)

	sub := &event.TestInfo{Title: "subtracts", FullTitle: "math subtracts", Type: event.UnitTest}
	hook := &event.TestInfo{Title: `"before all" hook: connect`, FullTitle: `database "before all" hook: connect`, Type: event.UnitHook}

	bus.Emit(event.Fail, event.Payload{Test: sub, Err: errors.New("expected 1 to equal 2")})
	bus.Emit(event.Fail, event.Payload{Test: hook, Err: &event.ErrorRecord{
		Message: "connection refused\nretry later",
		Stack:   "connection refused\nat db.Connect (db.go:12)",
	}})
}

func TestSummary_Golden(t *testing.T) {
	s := NewSummary()
	failingRun(t, s)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, Totals{Passes: 7, Failures: 2, Pending: 1, Duration: 1250 * time.Millisecond}, ColorNever))
	newGolden(t).Assert(t, "summary_failing", buf.Bytes())
}

func TestSummary_GoldenWithStacks(t *testing.T) {
	s := NewSummary(WithStacks())
	failingRun(t, s)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, Totals{Passes: 7, Failures: 2, Pending: 1, Duration: 1250 * time.Millisecond}, ColorNever))
	newGolden(t).Assert(t, "summary_stacks", buf.Bytes())
}

func TestSummary_GoldenPassing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummary().Write(&buf, Totals{Passes: 3, Duration: 40 * time.Millisecond}, ColorNever))
	newGolden(t).Assert(t, "summary_passing", buf.Bytes())
}

func TestSummary_ColorAlways(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewSummary().Write(&buf, Totals{Passes: 1}, ColorAlways))
	assert.Contains(t, buf.String(), "\x1b[32m1 passing")
}

func TestSummary_Failures(t *testing.T) {
	s := NewSummary()
	failingRun(t, s)

	got := s.Failures()
	require.Len(t, got, 2)
	assert.Equal(t, "math subtracts", got[0].FullTitle)
	assert.Equal(t, "expected 1 to equal 2", got[0].Message)

	got[0].FullTitle = "changed"
	assert.Equal(t, "math subtracts", s.Failures()[0].FullTitle, "Failures returns a copy")
}

func TestDiagnostics_DumpStack(t *testing.T) {
	var buf bytes.Buffer
	d := NewDiagnostics(&buf, ColorAuto)
	d.DumpStack("math subtracts", "Error: boom\nat f (a.go:1)\n")

	assert.Equal(t, "math subtracts\n    Error: boom\n    at f (a.go:1)\n", buf.String(), "buffers are never colourised in auto mode")
}

func TestDiagnostics_Colored(t *testing.T) {
	var buf bytes.Buffer
	NewDiagnostics(&buf, ColorAlways).DumpStack("t", "s")
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestParseColorMode(t *testing.T) {
	assert.Equal(t, ColorAlways, ParseColorMode("always"))
	assert.Equal(t, ColorNever, ParseColorMode("never"))
	assert.Equal(t, ColorAuto, ParseColorMode("auto"))
	assert.Equal(t, ColorAuto, ParseColorMode(""))
}

func TestUseColor_RegularFileIsNotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, useColor(f, ColorAuto))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "40ms", formatDuration(40*time.Millisecond))
	assert.Equal(t, "1.25s", formatDuration(1250*time.Millisecond))
}
