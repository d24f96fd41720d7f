package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/runview/internal/clock"
	"github.com/roach88/runview/internal/event"
	"github.com/roach88/runview/internal/runnable"
)

// Options control how a run executes.
type Options struct {
	// Grep restricts the run to tests whose full title contains it.
	Grep string

	// AllowUncaught disables fault isolation in every runnable.
	AllowUncaught bool

	// AsyncOnly rejects bodies that neither take done nor return an awaitable.
	AsyncOnly bool

	// Timeout is the default per-runnable limit. Zero uses
	// runnable.DefaultTimeout; NoTimeout disables it.
	Timeout time.Duration

	// Slow is the default slow threshold. Zero uses runnable.DefaultSlow.
	Slow time.Duration
}

// Stats summarizes a finished run.
type Stats struct {
	Suites   int           `json:"suites"`
	Tests    int           `json:"tests"`
	Passes   int           `json:"passes"`
	Failures int           `json:"failures"`
	Pending  int           `json:"pending"`
	Duration time.Duration `json:"duration"`
}

// Runner walks a suite tree, executes every runnable through its Executor
// and emits lifecycle events.
//
// Events are emitted in this order:
//
//	start
//	  suite
//	    hook, hook end            (before all)
//	    hook, hook end            (before each, outermost first)
//	    test, pass|fail, test end
//	    hook, hook end            (after each, innermost first)
//	    ...
//	    hook, hook end            (after all)
//	  suite end
//	end
//
// A failing hook emits fail instead of hook end and skips the rest of its
// suite; after all hooks still run.
type Runner struct {
	root     *Suite
	emitter  event.Emitter
	opts     Options
	executor runnable.Executor
	clock    clock.Clock
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor sets the completion strategy. Defaults to
// runnable.DefaultExecutor.
func WithExecutor(e runnable.Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithClock sets the clock used for timers and durations.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// New creates a runner for root that reports to emitter.
func New(root *Suite, emitter event.Emitter, opts Options, options ...Option) *Runner {
	if opts.Timeout == 0 {
		opts.Timeout = runnable.DefaultTimeout
	}
	if opts.Slow == 0 {
		opts.Slow = runnable.DefaultSlow
	}
	r := &Runner{
		root:     root,
		emitter:  emitter,
		opts:     opts,
		executor: runnable.DefaultExecutor{},
		clock:    clock.Real{},
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Total returns the number of tests the run will report.
func (r *Runner) Total() int {
	return r.root.Total(r.opts.Grep)
}

// Run executes the whole tree. It returns early with ctx.Err() when the
// context is cancelled between runnables; end is emitted either way.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	r.stats = Stats{}
	r.mu.Unlock()

	total := r.Total()
	started := r.clock.Now()
	r.logger.Info("run starting", "total", total, "grep", r.opts.Grep)

	r.emitter.Emit(event.Start, event.Payload{Total: total})
	err := r.runSuite(ctx, r.root)
	r.emitter.Emit(event.End, event.Payload{})

	r.mu.Lock()
	r.stats.Duration = clock.Since(r.clock, started)
	stats := r.stats
	r.mu.Unlock()

	r.logger.Info("run finished",
		"passes", stats.Passes,
		"failures", stats.Failures,
		"pending", stats.Pending,
		"duration", stats.Duration,
	)
	return stats, err
}

func (r *Runner) runSuite(ctx context.Context, s *Suite) error {
	if s.Total(r.opts.Grep) == 0 {
		return nil
	}

	info := &event.SuiteInfo{Title: s.Title, FullTitle: s.FullTitle(), Root: s.root}
	r.emitter.Emit(event.Suite, event.Payload{Suite: info})
	r.count(func(st *Stats) { st.Suites++ })

	err := r.runSuiteBody(ctx, s)

	// after all hooks run even when the body was cut short
	for _, h := range s.Hooks(AfterAll) {
		if hookErr := r.runHook(ctx, s, AfterAll, h, nil); hookErr != nil {
			break
		}
	}

	r.emitter.Emit(event.SuiteEnd, event.Payload{Suite: info})
	return err
}

// runSuiteBody runs before all hooks, tests and nested suites. A hook
// failure stops the suite without failing the run; only cancellation is
// returned.
func (r *Runner) runSuiteBody(ctx context.Context, s *Suite) error {
	for _, h := range s.Hooks(BeforeAll) {
		if err := r.runHook(ctx, s, BeforeAll, h, nil); err != nil {
			return ctx.Err()
		}
	}

	for _, t := range s.Tests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !matches(t, r.opts.Grep) {
			continue
		}
		if aborted := r.runTest(ctx, s, t); aborted {
			return ctx.Err()
		}
	}

	for _, child := range s.Suites {
		if err := r.runSuite(ctx, child); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// runTest runs one test wrapped in its each-hooks. It reports whether an
// each-hook failed, which aborts the enclosing suite.
func (r *Runner) runTest(ctx context.Context, s *Suite, t *Test) bool {
	info := &event.TestInfo{
		Title:     t.Title,
		FullTitle: t.FullTitle(),
		Type:      event.UnitTest,
		Slow:      effective(t.Slow, s.slow(r.opts.Slow)),
		Source:    t.Source,
	}
	if info.Source == "" {
		info.Source = bodySource(t.Fn, t.AsyncFn)
	}
	r.count(func(st *Stats) { st.Tests++ })

	if t.Pending {
		info.Pending = true
		info.State = event.StatePending
		r.count(func(st *Stats) { st.Pending++ })
		r.emitter.Emit(event.Pending, event.Payload{Test: info})
		r.emitter.Emit(event.TestEnd, event.Payload{Test: info})
		return false
	}

	// before each hooks run outermost first
	chain := ancestry(s)
	for _, owner := range chain {
		for _, h := range owner.Hooks(BeforeEach) {
			if err := r.runHook(ctx, owner, BeforeEach, h, t); err != nil {
				return true
			}
		}
	}

	ru := &runnable.Runnable{
		Title:         t.Title,
		Fn:            t.Fn,
		AsyncFn:       t.AsyncFn,
		AllowUncaught: r.opts.AllowUncaught,
		AsyncOnly:     r.opts.AsyncOnly,
		Clock:         r.clock,
	}
	ru.SetTimeout(effective(t.Timeout, s.timeout(r.opts.Timeout)))
	ru.SetSlow(info.Slow)

	r.logger.Debug("running test", "title", info.FullTitle, "mode", ru.Mode().String())
	r.emitter.Emit(event.Test, event.Payload{Test: info})

	err := r.execute(ctx, ru, info)
	info.Duration = ru.Duration()
	info.Slow = ru.Slow()
	r.settle(info, err)
	r.emitter.Emit(event.TestEnd, event.Payload{Test: info})

	// after each hooks run innermost first
	for i := len(chain) - 1; i >= 0; i-- {
		owner := chain[i]
		for _, h := range owner.Hooks(AfterEach) {
			if err := r.runHook(ctx, owner, AfterEach, h, t); err != nil {
				return true
			}
		}
	}
	return false
}

// runHook runs one hook. The returned error is non-nil when the hook failed.
func (r *Runner) runHook(ctx context.Context, s *Suite, kind HookKind, h *Hook, t *Test) error {
	title := hookTitle(kind, h, t)
	info := &event.TestInfo{
		Title:     title,
		FullTitle: joinTitle(s.FullTitle(), title),
		Type:      event.UnitHook,
		Source:    bodySource(h.Fn, h.AsyncFn),
	}

	ru := &runnable.Runnable{
		Title:         title,
		Fn:            h.Fn,
		AsyncFn:       h.AsyncFn,
		AllowUncaught: r.opts.AllowUncaught,
		Clock:         r.clock,
	}
	ru.SetTimeout(effective(h.Timeout, s.timeout(r.opts.Timeout)))

	r.emitter.Emit(event.Hook, event.Payload{Test: info})

	err := r.execute(ctx, ru, info)
	info.Duration = ru.Duration()
	if err != nil {
		r.logger.Warn("hook failed", "hook", info.FullTitle, "error", err)
		r.fail(info, err)
		return err
	}
	r.emitter.Emit(event.HookEnd, event.Payload{Test: info})
	return nil
}

// execute hands ru to the executor and waits for its single outcome.
// Faults raised after completion are reported as additional failures of
// the same unit.
//
// A late fault may arrive on any goroutine, so it is reported on a copy
// of info taken before the body starts; info itself is only written by the
// runner goroutine.
func (r *Runner) execute(ctx context.Context, ru *runnable.Runnable, info *event.TestInfo) error {
	snapshot := *info
	ru.OnFault = func(err error) {
		r.logger.Warn("late completion fault", "title", snapshot.FullTitle, "error", err)
		late := snapshot
		r.fail(&late, err)
	}
	if ru.Fn == nil && ru.AsyncFn == nil {
		ru.Fn = func(*runnable.Context) any { return nil }
	}

	outcome := make(chan error, 1)
	r.executor.Execute(ru, func(err error) { outcome <- err })

	select {
	case err := <-outcome:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", info.FullTitle, ctx.Err())
	}
}

func (r *Runner) settle(info *event.TestInfo, err error) {
	if err != nil {
		r.fail(info, err)
		return
	}
	info.State = event.StatePassed
	r.count(func(st *Stats) { st.Passes++ })
	r.emitter.Emit(event.Pass, event.Payload{Test: info})
}

func (r *Runner) fail(info *event.TestInfo, err error) {
	info.State = event.StateFailed
	info.Err = event.NewErrorRecord(err)
	r.count(func(st *Stats) { st.Failures++ })
	r.emitter.Emit(event.Fail, event.Payload{Test: info, Err: err})
}

func (r *Runner) count(f func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(&r.stats)
}

func hookTitle(kind HookKind, h *Hook, t *Test) string {
	title := fmt.Sprintf("%q hook", kind.String())
	if h.Name != "" {
		title += ": " + h.Name
	}
	if t != nil {
		title += fmt.Sprintf(" for %q", t.Title)
	}
	return title
}

// ancestry returns the suites from the root down to s.
func ancestry(s *Suite) []*Suite {
	var chain []*Suite
	for cur := s; cur != nil; cur = cur.parent {
		chain = append([]*Suite{cur}, chain...)
	}
	return chain
}

func bodySource(fn runnable.Func, async runnable.AsyncFunc) string {
	if async != nil {
		return runnable.SourceOf(async)
	}
	if fn != nil {
		return runnable.SourceOf(fn)
	}
	return ""
}
