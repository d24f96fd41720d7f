package runnable

// Executor runs one runnable and reports its outcome through fn.
//
// The runner calls its Executor for every test and hook, so alternative
// completion strategies can be injected without touching the runner.
type Executor interface {
	Execute(r *Runnable, fn func(error))
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(r *Runnable, fn func(error))

// Execute calls f.
func (f ExecutorFunc) Execute(r *Runnable, fn func(error)) { f(r, fn) }

// DefaultExecutor runs the completion protocol implemented by Runnable.Run.
type DefaultExecutor struct{}

// Execute calls r.Run.
func (DefaultExecutor) Execute(r *Runnable, fn func(error)) { r.Run(fn) }
