package runnable

import "sync"

// Awaitable is a value that settles later. A Func body returning one is
// complete when the awaitable settles.
//
// Any type with this method qualifies; the check is structural.
type Awaitable interface {
	Then(onResolve func(), onReject func(reason any))
}

// Deferred is an Awaitable settled explicitly by its owner.
//
// Only the first Resolve or Reject takes effect. Callbacks registered after
// settlement run immediately on the registering goroutine.
type Deferred struct {
	mu       sync.Mutex
	settled  bool
	rejected bool
	reason   any
	waiters  []waiter
}

type waiter struct {
	onResolve func()
	onReject  func(any)
}

// NewDeferred creates an unsettled Deferred.
func NewDeferred() *Deferred {
	return &Deferred{}
}

// Go runs f on a new goroutine and returns a Deferred that resolves when f
// returns nil and rejects with its error otherwise.
func Go(f func() error) *Deferred {
	d := NewDeferred()
	go func() {
		if err := f(); err != nil {
			d.Reject(err)
			return
		}
		d.Resolve()
	}()
	return d
}

// Then registers settlement callbacks.
func (d *Deferred) Then(onResolve func(), onReject func(reason any)) {
	d.mu.Lock()
	if !d.settled {
		d.waiters = append(d.waiters, waiter{onResolve: onResolve, onReject: onReject})
		d.mu.Unlock()
		return
	}
	rejected, reason := d.rejected, d.reason
	d.mu.Unlock()
	notify(waiter{onResolve: onResolve, onReject: onReject}, rejected, reason)
}

// Resolve settles the Deferred successfully.
func (d *Deferred) Resolve() { d.settle(false, nil) }

// Reject settles the Deferred as failed. A nil reason is allowed and is
// reported by the normalizer as a falsy rejection.
func (d *Deferred) Reject(reason any) { d.settle(true, reason) }

func (d *Deferred) settle(rejected bool, reason any) {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return
	}
	d.settled, d.rejected, d.reason = true, rejected, reason
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, w := range waiters {
		notify(w, rejected, reason)
	}
}

func notify(w waiter, rejected bool, reason any) {
	if rejected {
		if w.onReject != nil {
			w.onReject(reason)
		}
		return
	}
	if w.onResolve != nil {
		w.onResolve()
	}
}
