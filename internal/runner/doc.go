// Package runner executes a tree of suites, tests and hooks and reports
// their lifecycle on an event.Emitter.
//
// Execution is sequential. Every runnable is handed to an injected
// runnable.Executor, and the runner waits for its single outcome before
// moving on, so subscribers observe events for one unit at a time.
package runner
