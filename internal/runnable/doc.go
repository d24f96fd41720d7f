// Package runnable normalizes how a test body signals completion.
//
// Three conventions are supported:
//
//   - AsyncFunc: the body receives a Done callback and calls it when finished
//   - Func returning an Awaitable: completion is the awaitable's settlement
//   - Func returning anything else: completion is the return itself
//
// Whatever the convention, Runnable.Run reports the outcome exactly once.
// A second completion signal raises a MULTIPLE_DONE fault through OnFault,
// unless the runnable already timed out, in which case it is dropped.
//
// Panics are recovered into failures. With AllowUncaught set they keep
// unwinding instead, except for assertion failures, which are always
// reported as ordinary failures.
package runnable
