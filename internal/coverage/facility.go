// Package coverage supplies the coverage facility the reporter chains onto
// and renders Go cover profiles into the report document.
package coverage

import "sync"

// Facility holds the callback run once all tests are done.
//
// The reporter replaces the callback with one that calls the previous
// callback first, so consumers only ever call Finish.
//
// Thread-safety: all methods are safe for concurrent use.
type Facility struct {
	mu       sync.Mutex
	done     func()
	finished bool
}

// NewFacility returns a facility whose initial completion callback is done.
func NewFacility(done func()) *Facility {
	return &Facility{done: done}
}

// TestsDone returns the current completion callback.
func (f *Facility) TestsDone() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// SetTestsDone replaces the completion callback.
func (f *Facility) SetTestsDone(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = fn
}

// Finish runs the completion callback. Only the first call has an effect.
// Reports whether the callback ran.
func (f *Facility) Finish() bool {
	f.mu.Lock()
	if f.finished || f.done == nil {
		f.mu.Unlock()
		return false
	}
	f.finished = true
	fn := f.done
	f.mu.Unlock()

	fn()
	return true
}
