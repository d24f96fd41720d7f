package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runview/internal/clock"
	"github.com/roach88/runview/internal/runnable"
	"github.com/roach88/runview/internal/runner"
)

const (
	defaultFailure  = "boom"
	defaultNonError = "not an error"
)

type builder struct {
	clock clock.Clock
	sleep func(time.Duration)
}

// Option configures Build.
type Option func(*builder)

// WithClock sets the clock that schedules delayed async and await
// completions. Sync bodies always block on the wall clock.
func WithClock(c clock.Clock) Option {
	return func(b *builder) {
		b.clock = c
	}
}

// Build turns s into a runnable suite tree.
func Build(s *Script, opts ...Option) *runner.Suite {
	b := &builder{clock: clock.Real{}, sleep: time.Sleep}
	for _, opt := range opts {
		opt(b)
	}

	root := runner.NewRoot()
	for _, st := range s.Tests {
		root.AddTest(b.test(st))
	}
	for _, sp := range s.Suites {
		b.suite(root, sp)
	}
	return root
}

func (b *builder) suite(parent *runner.Suite, sp SuiteSpec) {
	parent.Describe(sp.Title, func(s *runner.Suite) {
		if sp.Pending {
			s.Pending = true
		}
		s.Timeout = sp.Timeout
		s.Slow = sp.Slow

		for _, h := range sp.Before {
			s.AddHook(runner.BeforeAll, b.hook(h))
		}
		for _, h := range sp.BeforeEach {
			s.AddHook(runner.BeforeEach, b.hook(h))
		}
		for _, h := range sp.AfterEach {
			s.AddHook(runner.AfterEach, b.hook(h))
		}
		for _, h := range sp.After {
			s.AddHook(runner.AfterAll, b.hook(h))
		}
		for _, st := range sp.Tests {
			s.AddTest(b.test(st))
		}
		for _, child := range sp.Suites {
			b.suite(s, child)
		}
	})
}

func (b *builder) test(st Step) *runner.Test {
	t := &runner.Test{
		Title:   st.Title,
		Timeout: st.Timeout,
		Slow:    st.Slow,
	}
	if st.Outcome == OutcomePending {
		t.Pending = true
		return t
	}
	t.Fn, t.AsyncFn = b.body(st)
	t.Source = sourceFor(st)
	return t
}

func (b *builder) hook(st Step) *runner.Hook {
	h := &runner.Hook{Name: st.Name, Timeout: st.Timeout}
	h.Fn, h.AsyncFn = b.body(st)
	return h
}

// after runs f once delay has passed, immediately when there is none.
func (b *builder) after(delay time.Duration, f func()) {
	if delay <= 0 {
		f()
		return
	}
	b.clock.AfterFunc(delay, f)
}

func (b *builder) body(st Step) (runnable.Func, runnable.AsyncFunc) {
	failure := func() error {
		return pkgerrors.New(messageOr(st.Message, defaultFailure))
	}

	// Panics and assertion failures happen on the body's own goroutine
	// whatever the declared style.
	switch st.Outcome {
	case OutcomePanic:
		raise := func() {
			b.sleep(st.Delay)
			panic(failure())
		}
		if st.Style == StyleAsync {
			return nil, func(*runnable.Context, runnable.Done) { raise() }
		}
		return func(*runnable.Context) any { raise(); return nil }, nil
	case OutcomeAssert:
		check := func(ctx *runnable.Context) {
			b.sleep(st.Delay)
			require.Fail(ctx, messageOr(st.Message, defaultFailure))
		}
		if st.Style == StyleAsync {
			return nil, func(ctx *runnable.Context, _ runnable.Done) { check(ctx) }
		}
		return func(ctx *runnable.Context) any { check(ctx); return nil }, nil
	}

	switch st.Style {
	case StyleAsync:
		return nil, func(_ *runnable.Context, done runnable.Done) {
			switch st.Outcome {
			case OutcomePass:
				b.after(st.Delay, func() { done(nil) })
			case OutcomeFail:
				b.after(st.Delay, func() { done(failure()) })
			case OutcomeDoubleDone:
				b.after(st.Delay, func() {
					done(nil)
					done(nil)
				})
			case OutcomeNonError:
				b.after(st.Delay, func() { done(messageOr(st.Message, defaultNonError)) })
			case OutcomeTimeout:
				// done is never called
			}
		}

	case StyleAwait:
		return func(*runnable.Context) any {
			d := runnable.NewDeferred()
			switch st.Outcome {
			case OutcomePass:
				b.after(st.Delay, d.Resolve)
			case OutcomeFail, OutcomeReject:
				b.after(st.Delay, func() { d.Reject(failure()) })
			case OutcomeNonError:
				b.after(st.Delay, func() { d.Reject(messageOr(st.Message, defaultNonError)) })
			case OutcomeFalsyReject:
				b.after(st.Delay, func() { d.Reject(nil) })
			case OutcomeTimeout:
				// never settles
			}
			return d
		}, nil
	}

	return func(*runnable.Context) any {
		b.sleep(st.Delay)
		if st.Outcome == OutcomeFail {
			return failure()
		}
		return nil
	}, nil
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

// sourceFor renders a Go rendition of the simulated body for display.
func sourceFor(st Step) string {
	msg := strconv.Quote(messageOr(st.Message, defaultFailure))
	nonError := strconv.Quote(messageOr(st.Message, defaultNonError))

	var lines []string
	if st.Delay > 0 && (st.Style == StyleSync || st.Outcome == OutcomePanic || st.Outcome == OutcomeAssert) {
		lines = append(lines, fmt.Sprintf("time.Sleep(%s)", durationLiteral(st.Delay)))
	}

	signature := "func(ctx *runnable.Context) any {"
	switch {
	case st.Outcome == OutcomePanic:
		lines = append(lines, "panic(errors.New("+msg+"))")
	case st.Outcome == OutcomeAssert:
		lines = append(lines, "require.Fail(ctx, "+msg+")")
	case st.Style == StyleAsync:
		var call []string
		switch st.Outcome {
		case OutcomePass:
			call = []string{"done(nil)"}
		case OutcomeFail:
			call = []string{"done(errors.New(" + msg + "))"}
		case OutcomeDoubleDone:
			call = []string{"done(nil)", "done(nil)"}
		case OutcomeNonError:
			call = []string{"done(" + nonError + ")"}
		case OutcomeTimeout:
			call = []string{"// never calls done"}
		}
		lines = append(lines, delayed(st.Delay, call)...)
	case st.Style == StyleAwait:
		var settle []string
		switch st.Outcome {
		case OutcomePass:
			settle = []string{"d.Resolve()"}
		case OutcomeFail, OutcomeReject:
			settle = []string{"d.Reject(errors.New(" + msg + "))"}
		case OutcomeNonError:
			settle = []string{"d.Reject(" + nonError + ")"}
		case OutcomeFalsyReject:
			settle = []string{"d.Reject(nil)"}
		case OutcomeTimeout:
			settle = []string{"// never settles"}
		}
		lines = append(lines, "d := runnable.NewDeferred()")
		lines = append(lines, delayed(st.Delay, settle)...)
		lines = append(lines, "return d")
	case st.Outcome == OutcomeFail:
		lines = append(lines, "return errors.New("+msg+")")
	default:
		lines = append(lines, "return nil")
	}

	switch {
	case st.Outcome == OutcomePanic || st.Outcome == OutcomeAssert:
		if st.Style == StyleAsync {
			signature = "func(ctx *runnable.Context, done runnable.Done) {"
		} else {
			lines = append(lines, "return nil")
		}
	case st.Style == StyleAsync:
		signature = "func(ctx *runnable.Context, done runnable.Done) {"
	}

	var sb strings.Builder
	sb.WriteString(signature)
	for _, l := range lines {
		sb.WriteString("\n\t")
		sb.WriteString(l)
	}
	sb.WriteString("\n}")
	return sb.String()
}

func delayed(d time.Duration, body []string) []string {
	if d <= 0 {
		return body
	}
	out := []string{fmt.Sprintf("time.AfterFunc(%s, func() {", durationLiteral(d))}
	for _, l := range body {
		out = append(out, "\t"+l)
	}
	return append(out, "})")
}

func durationLiteral(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%d*time.Second", d/time.Second)
	}
	return fmt.Sprintf("%d*time.Millisecond", d/time.Millisecond)
}

// Verify compares stats with the script's expectation. It returns nil when
// the script pins nothing.
func (s *Script) Verify(stats runner.Stats) error {
	if s.Expect == nil {
		return nil
	}
	var errs []error
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Errorf("%s: got %d, want %d", name, got, *want))
		}
	}
	check("passes", s.Expect.Passes, stats.Passes)
	check("failures", s.Expect.Failures, stats.Failures)
	check("pending", s.Expect.Pending, stats.Pending)
	return errors.Join(errs...)
}
