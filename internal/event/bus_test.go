package event

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *Bus {
	return NewBus(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	b := newTestBus()
	var got []string

	b.Subscribe(Pass, func(Payload) { got = append(got, "first") })
	b.Subscribe(Pass, func(Payload) { got = append(got, "second") })
	b.SubscribeAll(func(k Kind, _ Payload) { got = append(got, "all:"+k.String()) })
	b.Subscribe(Fail, func(Payload) { got = append(got, "fail") })

	b.Emit(Pass, Payload{})

	assert.Equal(t, []string{"first", "second", "all:pass"}, got)
}

func TestBus_SubscribeAllDuringDispatchStartsWithNextEvent(t *testing.T) {
	b := newTestBus()
	var got []string

	added := false
	b.SubscribeAll(func(k Kind, _ Payload) {
		got = append(got, "first:"+k.String())
		if !added {
			added = true
			b.SubscribeAll(func(k Kind, _ Payload) { got = append(got, "late:"+k.String()) })
		}
	})

	b.Emit(Start, Payload{})
	b.Emit(End, Payload{})

	assert.Equal(t, []string{"first:start", "first:end", "late:end"}, got)
}

func TestBus_ReentrantEmitRunsAfterCurrentEvent(t *testing.T) {
	b := newTestBus()
	var got []string

	b.Subscribe(Fail, func(p Payload) {
		got = append(got, "fail:start")
		b.Emit(TestEnd, Payload{Test: p.Test, Synthetic: true})
		got = append(got, "fail:end")
	})
	b.Subscribe(TestEnd, func(p Payload) {
		got = append(got, "test end")
		assert.True(t, p.Synthetic)
	})

	b.Emit(Fail, Payload{Test: &TestInfo{Title: "hook"}})

	assert.Equal(t, []string{"fail:start", "fail:end", "test end"}, got)
	assert.Equal(t, 0, b.queue.Len())
}

func TestBus_ConcurrentEmitNeverOverlapsHandlers(t *testing.T) {
	b := newTestBus()

	var (
		active int
		maxSeen int
		count  int
	)
	b.Subscribe(Pass, func(Payload) {
		active++
		if active > maxSeen {
			maxSeen = active
		}
		count++
		active--
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(Pass, Payload{})
		}()
	}
	wg.Wait()

	// The last emitter may still be draining; Do waits for it.
	b.Do(func() {})
	b.Do(func() {
		assert.Equal(t, 50, count)
		assert.Equal(t, 1, maxSeen)
	})
}

func TestBus_PanickingHandlerReleasesDispatch(t *testing.T) {
	b := newTestBus()
	calls := 0
	b.Subscribe(Start, func(Payload) { panic("boom") })
	b.Subscribe(End, func(Payload) { calls++ })

	require.Panics(t, func() { b.Emit(Start, Payload{}) })

	b.Emit(End, Payload{})
	assert.Equal(t, 1, calls)
}

func TestKind_StringAndParse(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "suite end", SuiteEnd.String())
	assert.Equal(t, "kind(99)", Kind(99).String())

	_, err := ParseKind("bogus")
	assert.Error(t, err)
}
