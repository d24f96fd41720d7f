package runnable_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/runview/internal/runnable"
	"github.com/roach88/runview/internal/testutil"
)

// outcome records every call to the completion callback.
type outcome struct {
	calls  int
	err    error
	faults []error
}

func (o *outcome) done(err error) {
	o.calls++
	o.err = err
}

func (o *outcome) fault(err error) {
	o.faults = append(o.faults, err)
}

func newSync(clk *testutil.FakeClock, o *outcome, fn runnable.Func) *runnable.Runnable {
	r := runnable.New("unit", fn)
	r.Clock = clk
	r.OnFault = o.fault
	return r
}

func newAsync(clk *testutil.FakeClock, o *outcome, fn runnable.AsyncFunc) *runnable.Runnable {
	r := runnable.NewAsync("unit", fn)
	r.Clock = clk
	r.OnFault = o.fault
	return r
}

func TestRun_SyncReturn(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	r := newSync(clk, o, func(*runnable.Context) any { return nil })

	r.Run(o.done)

	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.err)
	assert.Equal(t, runnable.ModeSyncOrAwait, r.Mode())
	assert.Equal(t, 0, clk.Pending(), "sync bodies arm no timer")
}

func TestRun_SyncReturnedErrorFails(t *testing.T) {
	o := &outcome{}
	boom := errors.New("boom")
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return boom })

	r.Run(o.done)

	assert.Equal(t, 1, o.calls)
	assert.ErrorIs(t, o.err, boom)
}

func TestRun_DurationFromClock(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	r := newSync(clk, o, func(*runnable.Context) any {
		clk.Advance(40 * time.Millisecond)
		return nil
	})

	r.Run(o.done)

	assert.NoError(t, o.err)
	assert.Equal(t, 40*time.Millisecond, r.Duration())
}

func TestRun_SyncOverrunFailsWithTimeout(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	r := newSync(clk, o, func(*runnable.Context) any {
		clk.Advance(2500 * time.Millisecond)
		return nil
	})

	r.Run(o.done)

	require.Error(t, o.err)
	assert.True(t, runnable.IsTimeout(o.err))
	assert.Equal(t, "timeout of 2000ms exceeded. Ensure the done() callback is being called in this test.", o.err.Error())
}

func TestRun_AsyncDoneOnce(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	r := newAsync(clk, o, func(_ *runnable.Context, done runnable.Done) { done(nil) })

	r.Run(o.done)

	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.err)
	assert.Empty(t, o.faults)
	assert.Equal(t, runnable.ModeAsync, r.Mode())
	assert.Equal(t, 0, clk.Pending(), "timer is cleared on completion")
}

func TestRun_AsyncDoneTwiceRaisesMultipleDoneOnce(t *testing.T) {
	o := &outcome{}
	r := newAsync(testutil.NewFakeClock(), o, func(_ *runnable.Context, done runnable.Done) {
		done(nil)
		done(nil)
		done(errors.New("third"))
	})

	r.Run(o.done)

	assert.Equal(t, 1, o.calls, "terminal callback fires exactly once")
	assert.NoError(t, o.err)
	require.Len(t, o.faults, 1)
	assert.True(t, runnable.IsMultipleDone(o.faults[0]))
	assert.Contains(t, o.faults[0].Error(), "done() called multiple times")
}

func TestRun_LateDoneAfterAwaitableSettles(t *testing.T) {
	o := &outcome{}
	d := runnable.NewDeferred()
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return d })

	r.Run(o.done)
	assert.Equal(t, 0, o.calls)

	d.Resolve()
	d.Resolve()

	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.err)
	assert.Empty(t, o.faults, "a Deferred settles once")
}

func TestRun_TimeoutThenLateDoneIsIgnored(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	var late runnable.Done
	r := newAsync(clk, o, func(_ *runnable.Context, done runnable.Done) { late = done })

	r.Run(o.done)
	assert.Equal(t, 0, o.calls)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(1999 * time.Millisecond)
	assert.Equal(t, 0, o.calls)

	clk.Advance(time.Millisecond)
	require.Equal(t, 1, o.calls)
	assert.True(t, runnable.IsTimeout(o.err))
	assert.Contains(t, o.err.Error(), "2000ms")
	assert.True(t, r.TimedOut())

	late(nil)
	late(errors.New("late failure"))

	assert.Equal(t, 1, o.calls)
	assert.Empty(t, o.faults)
}

func TestRun_ZeroTimeoutDisablesTimer(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	var done runnable.Done
	r := newAsync(clk, o, func(_ *runnable.Context, d runnable.Done) { done = d })
	r.SetTimeout(0)

	r.Run(o.done)
	clk.Advance(time.Hour)
	assert.Equal(t, 0, o.calls)

	done(nil)
	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.err)
}

func TestRun_ContextResetTimeoutRearms(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	var ctx *runnable.Context
	r := newAsync(clk, o, func(c *runnable.Context, _ runnable.Done) { ctx = c })

	r.Run(o.done)
	clk.Advance(1500 * time.Millisecond)
	ctx.ResetTimeout()
	clk.Advance(1500 * time.Millisecond)
	assert.Equal(t, 0, o.calls)

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, 1, o.calls)
	assert.True(t, runnable.IsTimeout(o.err))
}

func TestRun_ContextTimeoutOverridesLimit(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	r := newAsync(clk, o, func(c *runnable.Context, _ runnable.Done) { c.Timeout(50 * time.Millisecond) })

	r.Run(o.done)
	clk.Advance(50 * time.Millisecond)

	require.Equal(t, 1, o.calls)
	assert.Equal(t, "timeout of 50ms exceeded. Ensure the done() callback is being called in this test.", o.err.Error())
}

func TestRun_CallbackValueClassification(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantErr string
	}{
		{name: "nil", value: nil},
		{name: "false", value: false},
		{name: "zero", value: 0},
		{name: "empty string", value: ""},
		{name: "error", value: errors.New("expected failure"), wantErr: "expected failure"},
		{name: "string", value: "oops", wantErr: "done() invoked with non-Error: oops"},
		{name: "number", value: 42, wantErr: "done() invoked with non-Error: 42"},
		{name: "object", value: map[string]int{"a": 1}, wantErr: `done() invoked with non-Error: {"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &outcome{}
			r := newAsync(testutil.NewFakeClock(), o, func(_ *runnable.Context, done runnable.Done) { done(tt.value) })

			r.Run(o.done)

			require.Equal(t, 1, o.calls)
			if tt.wantErr == "" {
				assert.NoError(t, o.err)
				return
			}
			require.Error(t, o.err)
			assert.Equal(t, tt.wantErr, o.err.Error())
		})
	}
}

func TestRun_NonErrorValueIsNonErrorFault(t *testing.T) {
	o := &outcome{}
	r := newAsync(testutil.NewFakeClock(), o, func(_ *runnable.Context, done runnable.Done) { done(true) })

	r.Run(o.done)

	assert.True(t, runnable.IsFault(o.err, runnable.FaultNonError))
}

func TestRun_AwaitableRejection(t *testing.T) {
	boom := errors.New("rejected")
	tests := []struct {
		name    string
		reason  any
		wantErr string
		code    runnable.FaultCode
	}{
		{name: "error reason", reason: boom, wantErr: "rejected"},
		{name: "nil reason", reason: nil, wantErr: "Promise rejected with no or falsy reason", code: runnable.FaultFalsyRejection},
		{name: "false reason", reason: false, wantErr: "Promise rejected with no or falsy reason", code: runnable.FaultFalsyRejection},
		{name: "string reason", reason: "nope", wantErr: "Promise rejected with non-Error: nope", code: runnable.FaultNonError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &outcome{}
			d := runnable.NewDeferred()
			r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return d })

			r.Run(o.done)
			d.Reject(tt.reason)

			require.Equal(t, 1, o.calls)
			require.Error(t, o.err)
			assert.Equal(t, tt.wantErr, o.err.Error())
			if tt.code != "" {
				assert.True(t, runnable.IsFault(o.err, tt.code))
			}
		})
	}
}

func TestRun_AwaitableTimesOut(t *testing.T) {
	clk := testutil.NewFakeClock()
	o := &outcome{}
	d := runnable.NewDeferred()
	r := newSync(clk, o, func(*runnable.Context) any { return d })

	r.Run(o.done)
	clk.Advance(runnable.DefaultTimeout)
	d.Resolve()

	assert.Equal(t, 1, o.calls)
	assert.True(t, runnable.IsTimeout(o.err))
	assert.Empty(t, o.faults)
}

func TestRun_GoDeferredResolves(t *testing.T) {
	o := &outcome{}
	settled := make(chan struct{})
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any {
		return runnable.Go(func() error { return nil })
	})

	r.Run(func(err error) {
		o.done(err)
		close(settled)
	})

	select {
	case <-settled:
	case <-time.After(5 * time.Second):
		t.Fatal("awaitable never settled")
	}
	assert.NoError(t, o.err)
}

func TestRun_PanicIsRecovered(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { panic("kaboom") })

	require.NotPanics(t, func() { r.Run(o.done) })

	require.Equal(t, 1, o.calls)
	assert.True(t, runnable.IsFault(o.err, runnable.FaultPanic))
	assert.Equal(t, "kaboom", o.err.Error())

	var f *runnable.Fault
	require.ErrorAs(t, o.err, &f)
	assert.Contains(t, f.ErrorStack(), "runtime/debug.Stack")
}

func TestRun_AsyncPanicIsRecovered(t *testing.T) {
	o := &outcome{}
	r := newAsync(testutil.NewFakeClock(), o, func(*runnable.Context, runnable.Done) { panic(errors.New("async kaboom")) })

	r.Run(o.done)

	require.Equal(t, 1, o.calls)
	assert.Equal(t, "async kaboom", o.err.Error())
}

func TestRun_AllowUncaughtRepanics(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { panic("escape") })
	r.AllowUncaught = true

	assert.PanicsWithValue(t, "escape", func() { r.Run(o.done) })
	assert.Equal(t, 0, o.calls)
}

func TestRun_AllowUncaughtRepanicsCallbackError(t *testing.T) {
	o := &outcome{}
	boom := errors.New("escape")
	r := newAsync(testutil.NewFakeClock(), o, func(_ *runnable.Context, done runnable.Done) { done(boom) })
	r.AllowUncaught = true

	assert.PanicsWithError(t, "escape", func() { r.Run(o.done) })
	assert.Equal(t, 0, o.calls)
}

func TestRun_AllowUncaughtStillFunnelsAssertions(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(ctx *runnable.Context) any {
		require.Equal(ctx, 1, 2)
		return nil
	})
	r.AllowUncaught = true

	require.NotPanics(t, func() { r.Run(o.done) })

	require.Equal(t, 1, o.calls)
	assert.True(t, runnable.IsAssertion(o.err))
}

func TestRun_RequireFailureCarriesLocation(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(ctx *runnable.Context) any {
		require.True(ctx, false, "flag must be set")
		return nil
	})

	r.Run(o.done)

	require.True(t, runnable.IsAssertion(o.err))
	assert.Contains(t, o.err.Error(), "flag must be set")

	var ae *runnable.AssertionError
	require.ErrorAs(t, o.err, &ae)
	file, line := ae.Location()
	assert.True(t, strings.HasSuffix(file, "runnable_test.go"), file)
	assert.Positive(t, line)
}

func TestRun_AssertFailuresCollected(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(ctx *runnable.Context) any {
		assert.Equal(ctx, "a", "b")
		assert.Equal(ctx, 1, 1)
		return nil
	})

	r.Run(o.done)

	require.Error(t, o.err)
	assert.True(t, runnable.IsAssertion(o.err))
}

func TestRun_AsyncOnlyRejectsSyncBody(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return nil })
	r.AsyncOnly = true

	r.Run(o.done)

	require.Error(t, o.err)
	assert.True(t, runnable.IsFault(o.err, runnable.FaultAsyncOnly))
	assert.Contains(t, o.err.Error(), "--async-only option in use")
}

func TestRun_AsyncOnlyAcceptsAwaitable(t *testing.T) {
	o := &outcome{}
	d := runnable.NewDeferred()
	d.Resolve()
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return d })
	r.AsyncOnly = true

	r.Run(o.done)

	assert.NoError(t, o.err)
}

func TestRun_PendingSkipsBody(t *testing.T) {
	o := &outcome{}
	called := false
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any {
		called = true
		return nil
	})
	r.Pending = true

	r.Run(o.done)

	assert.False(t, called)
	assert.Equal(t, 1, o.calls)
	assert.NoError(t, o.err)
}

func TestRun_RerunResetsState(t *testing.T) {
	o := &outcome{}
	r := newAsync(testutil.NewFakeClock(), o, func(_ *runnable.Context, done runnable.Done) { done(nil) })

	r.Run(o.done)
	r.Run(o.done)

	assert.Equal(t, 2, o.calls)
	assert.Empty(t, o.faults)
}

func TestDefaultExecutor(t *testing.T) {
	o := &outcome{}
	r := newSync(testutil.NewFakeClock(), o, func(*runnable.Context) any { return nil })

	var exec runnable.Executor = runnable.DefaultExecutor{}
	exec.Execute(r, o.done)

	assert.Equal(t, 1, o.calls)
}

func TestExecutorFunc(t *testing.T) {
	var seen string
	exec := runnable.ExecutorFunc(func(r *runnable.Runnable, fn func(error)) {
		seen = r.Title
		fn(nil)
	})
	o := &outcome{}

	exec.Execute(runnable.New("wrapped", nil), o.done)

	assert.Equal(t, "wrapped", seen)
	assert.Equal(t, 1, o.calls)
}

func TestSourceOf(t *testing.T) {
	fn := func(ctx *runnable.Context) any {
		marker := "source-of-marker"
		return marker
	}

	src := runnable.SourceOf(fn)

	assert.True(t, strings.HasPrefix(src, "func(ctx *runnable.Context) any {"), src)
	assert.Contains(t, src, "source-of-marker")
	assert.True(t, strings.HasSuffix(src, "}"))
	assert.Empty(t, runnable.SourceOf(nil))
	assert.Empty(t, runnable.SourceOf(42))
}

func TestSourceOf_NestedLiterals(t *testing.T) {
	async := func(ctx *runnable.Context, done runnable.Done) {
		time.AfterFunc(time.Millisecond, func() { done(nil) })
	}
	build := func() runnable.Func {
		return func(*runnable.Context) any { return "inner-marker" }
	}

	src := runnable.SourceOf(async)
	assert.True(t, strings.HasPrefix(src, "func(ctx *runnable.Context, done runnable.Done) {"), src)
	assert.Contains(t, src, "time.AfterFunc")

	assert.Equal(t, `func(*runnable.Context) any { return "inner-marker" }`, runnable.SourceOf(build()))
}
