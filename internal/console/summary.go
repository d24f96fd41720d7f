package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/roach88/runview/internal/event"
)

var (
	colorSuccess = []color.Attribute{color.FgGreen}
	colorFailure = []color.Attribute{color.FgRed, color.Bold}
	colorPending = []color.Attribute{color.FgCyan}
	colorFaint   = []color.Attribute{color.Faint}
)

// Totals are the counts printed at the top of a summary.
type Totals struct {
	Passes   int
	Failures int
	Pending  int
	Duration time.Duration
}

// Failure is one failed test or hook.
type Failure struct {
	FullTitle string
	Message   string
	Stack     string
}

// Summary collects failures from the event stream for the closing
// summary.
//
// Thread-safety: safe for concurrent use.
type Summary struct {
	mu       sync.Mutex
	failures []Failure
	stacks   bool
}

// SummaryOption configures a Summary.
type SummaryOption func(*Summary)

// WithStacks includes each failure's stack in the output.
func WithStacks() SummaryOption {
	return func(s *Summary) {
		s.stacks = true
	}
}

// NewSummary creates an empty summary.
func NewSummary(opts ...SummaryOption) *Summary {
	s := &Summary{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach records the failures src delivers.
func (s *Summary) Attach(src event.Source) {
	src.Subscribe(event.Fail, s.onFail)
}

func (s *Summary) onFail(p event.Payload) {
	f := Failure{}
	if p.Test != nil {
		f.FullTitle = p.Test.FullTitle
	}
	if p.Err != nil {
		rec := event.NewErrorRecord(p.Err)
		f.Message = rec.Message
		f.Stack = rec.Stack
	}
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

// Failures returns the failures recorded so far, in order.
func (s *Summary) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failures...)
}

// Write prints the summary to w, colourised according to mode.
func (s *Summary) Write(w io.Writer, totals Totals, mode ColorMode) error {
	pal := palette{enabled: useColor(w, mode)}
	ok := pal.with(colorSuccess...)
	bad := pal.with(colorFailure...)
	pending := pal.with(colorPending...)
	faint := pal.with(colorFaint...)

	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  %s %s\n", ok.Sprintf("%d passing", totals.Passes),
		faint.Sprintf("(%s)", formatDuration(totals.Duration)))
	if totals.Pending > 0 {
		fmt.Fprintf(&sb, "  %s\n", pending.Sprintf("%d pending", totals.Pending))
	}
	if totals.Failures > 0 {
		fmt.Fprintf(&sb, "  %s\n", bad.Sprintf("%d failing", totals.Failures))
	}

	for i, f := range s.Failures() {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "  %d) %s:\n", i+1, f.FullTitle)
		for _, line := range strings.Split(f.Message, "\n") {
			fmt.Fprintf(&sb, "     %s\n", bad.Sprint(line))
		}
		if s.stacks && f.Stack != "" && f.Stack != f.Message {
			for _, line := range strings.Split(strings.TrimRight(f.Stack, "\n"), "\n") {
				fmt.Fprintf(&sb, "     %s\n", faint.Sprint(line))
			}
		}
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// formatDuration prints whole milliseconds below a second and seconds
// with two decimals above.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
