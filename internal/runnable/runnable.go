package runnable

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/roach88/runview/internal/clock"
)

// Done is the completion callback handed to callback-style bodies.
//
// Calling it with nil, false, 0 or "" signals success. Calling it with an
// error signals failure. Any other value is reported as a misuse.
type Done func(v any)

// Func is a body that completes when it returns, or, if it returns an
// Awaitable, when that settles. A returned non-nil error is a failure.
type Func func(ctx *Context) any

// AsyncFunc is a body that completes when it invokes done.
type AsyncFunc func(ctx *Context, done Done)

// Mode is the calling convention a runnable declares.
type Mode int

const (
	// ModeSyncOrAwait is a Func body: plain return or returned Awaitable.
	ModeSyncOrAwait Mode = iota
	// ModeAsync is an AsyncFunc body completed through its callback.
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// Default limits applied when a runnable is created through New.
const (
	DefaultTimeout = 2000 * time.Millisecond
	DefaultSlow    = 75 * time.Millisecond
)

// Runnable is one executable unit (test or hook) together with the state
// the completion protocol needs.
//
// Run reports completion exactly once. Later completion signals are either
// ignored (after a timeout) or surfaced once through OnFault.
//
// Thread-safety: Run must not be called concurrently with itself. The done
// callback, ResetTimeout and the timer may race freely; internal state is
// guarded by a mutex.
type Runnable struct {
	Title   string
	Fn      Func
	AsyncFn AsyncFunc

	// Pending runnables are reported as complete without running a body.
	Pending bool

	// AllowUncaught disables fault isolation: non-assertion panics and errors
	// passed to done are re-raised on the calling goroutine.
	AllowUncaught bool

	// AsyncOnly rejects bodies that complete synchronously.
	AsyncOnly bool

	// Clock drives durations and timers. Nil means the wall clock.
	Clock clock.Clock

	// OnFault receives faults raised after completion was already reported,
	// such as a second done() call.
	OnFault func(error)

	mu       sync.Mutex
	timeout  time.Duration
	slow     time.Duration
	clk      clock.Clock
	timer    clock.Timer
	timerGen uint64
	started  time.Time
	duration time.Duration
	finished bool
	timedOut bool
	emitted  bool
	settle   func(err error, expired bool)
}

// New creates a Func runnable with default limits.
func New(title string, fn Func) *Runnable {
	return &Runnable{Title: title, Fn: fn, timeout: DefaultTimeout, slow: DefaultSlow}
}

// NewAsync creates an AsyncFunc runnable with default limits.
func NewAsync(title string, fn AsyncFunc) *Runnable {
	return &Runnable{Title: title, AsyncFn: fn, timeout: DefaultTimeout, slow: DefaultSlow}
}

// Mode reports the declared calling convention.
func (r *Runnable) Mode() Mode {
	if r.AsyncFn != nil {
		return ModeAsync
	}
	return ModeSyncOrAwait
}

// SetTimeout sets the completion limit. Zero disables timeouts. When called
// while the runnable is running, the timer is re-armed.
func (r *Runnable) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d < 0 {
		d = 0
	}
	r.timeout = d
	if r.timer != nil {
		r.resetTimeoutLocked()
	}
}

// Timeout returns the completion limit.
func (r *Runnable) Timeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeout
}

// SetSlow sets the threshold above which the unit is displayed as slow.
func (r *Runnable) SetSlow(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slow = d
}

// Slow returns the slow threshold.
func (r *Runnable) Slow() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slow
}

// Duration returns the elapsed time between invocation and completion.
func (r *Runnable) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.duration
}

// TimedOut reports whether completion was forced by the timer.
func (r *Runnable) TimedOut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timedOut
}

// ResetTimeout restarts the timer from now. Long-running bodies call it
// (through Context.ResetTimeout) to signal progress.
func (r *Runnable) ResetTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetTimeoutLocked()
}

func (r *Runnable) resetTimeoutLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
	if r.timeout <= 0 || r.finished || r.clk == nil {
		return
	}
	gen, limit := r.timerGen, r.timeout
	r.timer = r.clk.AfterFunc(limit, func() {
		r.mu.Lock()
		stale := gen != r.timerGen
		settle := r.settle
		r.mu.Unlock()
		if stale || settle == nil {
			return
		}
		settle(newTimeoutFault(limit), true)
	})
}

// Run executes the body and calls fn exactly once with the outcome: nil for
// success, the failure otherwise.
//
// Completion is detected, in order of precedence, from the done callback of
// an AsyncFunc, from the settlement of an Awaitable returned by a Func, or
// from the Func returning.
func (r *Runnable) Run(fn func(error)) {
	clk := clock.OrReal(r.Clock)
	ctx := &Context{runnable: r}

	r.mu.Lock()
	r.clk = clk
	r.started = clk.Now()
	r.duration = 0
	r.finished, r.timedOut, r.emitted = false, false, false
	settle := r.completion(ctx, fn)
	r.settle = settle
	done := func(err error) { settle(err, false) }
	r.mu.Unlock()

	if r.Pending {
		done(nil)
		return
	}

	if r.AsyncFn != nil {
		r.ResetTimeout()
		defer r.recoverInto(done)
		r.callAsync(ctx, done)
		return
	}

	defer r.recoverInto(done)
	r.call(ctx, done)
}

// completion builds the single settle function shared by the body, the
// awaitable and the timer.
func (r *Runnable) completion(ctx *Context, fn func(error)) func(error, bool) {
	return func(err error, expired bool) {
		r.mu.Lock()
		if r.timedOut {
			r.mu.Unlock()
			return
		}
		if r.finished {
			report := !r.emitted && !expired
			r.emitted = true
			onFault := r.OnFault
			r.mu.Unlock()
			if report && onFault != nil {
				onFault(newMultipleDoneFault(err))
			}
			return
		}

		r.finished = true
		r.timedOut = expired
		if r.timer != nil {
			r.timer.Stop()
			r.timer = nil
		}
		r.timerGen++
		r.duration = clock.Since(r.clk, r.started)
		if err == nil {
			err = ctx.failure()
		}
		if err == nil && r.timeout > 0 && r.duration > r.timeout {
			err = newTimeoutFault(r.timeout)
		}
		r.mu.Unlock()

		fn(err)
	}
}

// recoverInto converts a panic raised by the body into a failure. With
// AllowUncaught set, only assertion failures are converted and everything
// else keeps unwinding.
func (r *Runnable) recoverInto(done func(error)) {
	v := recover()
	if v == nil {
		return
	}
	err := newPanicFault(v, debug.Stack())
	if r.AllowUncaught && !IsAssertion(err) {
		panic(v)
	}
	done(err)
}

func (r *Runnable) call(ctx *Context, done func(error)) {
	result := r.Fn(ctx)

	if a, ok := result.(Awaitable); ok && a != nil {
		r.ResetTimeout()
		a.Then(
			func() { done(nil) },
			func(reason any) { done(rejectionError(reason)) },
		)
		return
	}

	if err, ok := result.(error); ok && err != nil {
		done(err)
		return
	}

	if r.AsyncOnly {
		done(newAsyncOnlyFault())
		return
	}
	done(nil)
}

func (r *Runnable) callAsync(ctx *Context, done func(error)) {
	r.AsyncFn(ctx, func(v any) {
		if err, ok := v.(error); ok && err != nil {
			if r.AllowUncaught && !IsAssertion(err) {
				panic(err)
			}
			done(err)
			return
		}
		if !isFalsy(v) {
			done(newNonErrorFault(v))
			return
		}
		done(nil)
	})
}

func rejectionError(reason any) error {
	if isFalsy(reason) {
		return newFalsyRejectionFault()
	}
	if err, ok := reason.(error); ok {
		return err
	}
	return newFault(FaultNonError, "Promise rejected with non-Error: %s", serializeValue(reason))
}
