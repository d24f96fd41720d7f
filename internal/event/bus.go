package event

import (
	"log/slog"
	"sync"
)

// Handler consumes one event payload.
type Handler func(Payload)

// Emitter is the publishing side of a bus.
type Emitter interface {
	Emit(kind Kind, p Payload)
}

// Source is what consumers need: subscribe to kinds and, for compensating
// behaviour, emit.
type Source interface {
	Emitter
	Subscribe(kind Kind, h Handler)
}

// Bus delivers events to subscribers in emission order.
//
// Thread-safety model:
//   - Emit(): safe from any goroutine and from inside handlers
//   - Subscribe(): safe from any goroutine; takes effect for later events
//   - Do(): runs a function exclusively with respect to all handlers
//
// Handlers for one bus never run concurrently. A handler must not call Do.
type Bus struct {
	guard  sync.Mutex // held while handlers run
	mu     sync.RWMutex
	byKind map[Kind][]Handler
	all    []func(Kind, Payload)
	queue  *eventQueue
	logger *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = l
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		byKind: make(map[Kind][]Handler),
		queue:  newEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for one kind. Handlers run in subscription order.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], h)
}

// SubscribeAll registers h for every kind. Catch-all handlers run after the
// kind-specific ones.
func (b *Bus) SubscribeAll(h func(Kind, Payload)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Emit queues an event. If no dispatch is in progress the calling goroutine
// drains the queue before returning; otherwise the current dispatcher
// delivers it after the event it is handling.
func (b *Bus) Emit(kind Kind, p Payload) {
	if !b.queue.push(envelope{kind: kind, payload: p}) {
		return
	}
	b.drain()
}

// Do runs f while no handler is running.
func (b *Bus) Do(f func()) {
	b.guard.Lock()
	defer b.guard.Unlock()
	f()
}

func (b *Bus) drain() {
	b.guard.Lock()
	defer b.guard.Unlock()

	completed := false
	defer func() {
		if !completed {
			b.queue.abandon()
		}
	}()

	for {
		e, ok := b.queue.tryPop()
		if !ok {
			completed = true
			return
		}
		b.dispatch(e)
	}
}

func (b *Bus) dispatch(e envelope) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.byKind[e.kind]...)
	all := append([]func(Kind, Payload){}, b.all...)
	b.mu.RUnlock()

	b.logger.Debug("dispatching event",
		"kind", e.kind.String(),
		"handlers", len(handlers)+len(all),
		"synthetic", e.payload.Synthetic,
	)

	for _, h := range handlers {
		h(e.payload)
	}
	for _, h := range all {
		h(e.kind, e.payload)
	}
}
