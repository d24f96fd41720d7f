// Package event defines the lifecycle events a test run emits and the bus
// that delivers them.
//
// ARCHITECTURE:
//
// Single-Writer Dispatch:
// Every emission is appended to a FIFO queue. Whoever finds the bus idle
// becomes the dispatcher and drains the queue, one event at a time, until it
// is empty. This gives:
//   - handlers that never run concurrently with each other
//   - emission order preserved across goroutines
//   - safe re-emission from inside a handler (the nested event is queued and
//     delivered right after the current one finishes)
//
// The eleven event kinds are fixed and dispatched through a table keyed by
// Kind, never by name.
package event
