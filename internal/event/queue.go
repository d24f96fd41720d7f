package event

import "sync"

// envelope pairs a kind with its payload while it waits in the queue.
type envelope struct {
	kind    Kind
	payload Payload
}

// eventQueue is a thread-safe FIFO of pending emissions.
//
// The queue is unbounded so a handler can re-emit without blocking. The
// draining flag records whether some goroutine currently owns dispatch.
type eventQueue struct {
	mu       sync.Mutex
	events   []envelope
	draining bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{events: make([]envelope, 0, 16)}
}

// push appends an emission and reports whether the caller must become the
// dispatcher (true when nobody is draining yet).
func (q *eventQueue) push(e envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, e)
	if q.draining {
		return false
	}
	q.draining = true
	return true
}

// tryPop removes the front emission. When the queue is empty it releases
// dispatch ownership and returns false.
func (q *eventQueue) tryPop() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		q.draining = false
		return envelope{}, false
	}

	e := q.events[0]
	// Clear the slot so the payload pointers can be collected.
	q.events[0] = envelope{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// abandon drops everything still queued and releases ownership. Used when a
// handler panics mid-drain.
func (q *eventQueue) abandon() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = q.events[:0]
	q.draining = false
}

// Len returns the number of queued emissions.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
