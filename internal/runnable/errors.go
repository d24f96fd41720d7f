package runnable

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// FaultCode categorizes failures synthesized by the normalizer.
type FaultCode string

const (
	// FaultMultipleDone indicates a second completion signal for one runnable.
	FaultMultipleDone FaultCode = "MULTIPLE_DONE"

	// FaultTimeout indicates the runnable did not complete within its timeout.
	FaultTimeout FaultCode = "TIMEOUT"

	// FaultNonError indicates done() was invoked with a value that is not an error.
	FaultNonError FaultCode = "NON_ERROR"

	// FaultFalsyRejection indicates an awaitable rejected with no reason.
	FaultFalsyRejection FaultCode = "FALSY_REJECTION"

	// FaultAsyncOnly indicates a synchronous body under the async-only option.
	FaultAsyncOnly FaultCode = "ASYNC_ONLY"

	// FaultPanic indicates the body panicked.
	FaultPanic FaultCode = "PANIC"
)

// Fault is a failure synthesized by the normalizer rather than returned by
// the body itself.
//
// The wrapped error is created with github.com/pkg/errors, so every Fault
// carries the stack of the point where it was detected.
type Fault struct {
	Code FaultCode
	err  error

	// panicStack holds the goroutine stack captured when recovering a panic.
	panicStack string
}

func (f *Fault) Error() string { return f.err.Error() }

// Unwrap exposes the underlying error chain.
func (f *Fault) Unwrap() error { return f.err }

// StackTrace returns the stack recorded when the fault was created.
func (f *Fault) StackTrace() pkgerrors.StackTrace {
	var st interface{ StackTrace() pkgerrors.StackTrace }
	if errors.As(f.err, &st) {
		return st.StackTrace()
	}
	return nil
}

// ErrorStack returns the recovered panic stack, when there is one.
// Otherwise it falls back to the formatted creation stack.
func (f *Fault) ErrorStack() string {
	if f.panicStack != "" {
		return f.Error() + "\n" + f.panicStack
	}
	return fmt.Sprintf("%s%+v", f.Error(), f.StackTrace())
}

func newFault(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, err: pkgerrors.Errorf(format, args...)}
}

func newTimeoutFault(timeout time.Duration) *Fault {
	return newFault(FaultTimeout,
		"timeout of %dms exceeded. Ensure the done() callback is being called in this test.",
		timeout.Milliseconds())
}

func newMultipleDoneFault(cause error) *Fault {
	if cause != nil {
		return &Fault{Code: FaultMultipleDone, err: pkgerrors.Wrap(cause, "done() called multiple times")}
	}
	return newFault(FaultMultipleDone, "done() called multiple times; stacktrace may be inaccurate")
}

func newNonErrorFault(v any) *Fault {
	return newFault(FaultNonError, "done() invoked with non-Error: %s", serializeValue(v))
}

func newFalsyRejectionFault() *Fault {
	return newFault(FaultFalsyRejection, "Promise rejected with no or falsy reason")
}

func newAsyncOnlyFault() *Fault {
	return newFault(FaultAsyncOnly, "--async-only option in use without declaring `done()` or returning a promise")
}

// newPanicFault converts a recovered panic value into an error. Errors are
// returned as is, so assertion failures keep their identity.
func newPanicFault(v any, stack []byte) error {
	if err, ok := v.(error); ok {
		var ae *AssertionError
		if errors.As(err, &ae) {
			return err
		}
		return &Fault{Code: FaultPanic, err: pkgerrors.WithStack(err), panicStack: string(stack)}
	}
	return &Fault{Code: FaultPanic, err: pkgerrors.Errorf("%v", v), panicStack: string(stack)}
}

// IsFault reports whether err is a Fault with the given code.
// Uses errors.As to handle wrapped errors.
func IsFault(err error, code FaultCode) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code == code
	}
	return false
}

// IsTimeout reports whether err is a timeout fault.
func IsTimeout(err error) bool { return IsFault(err, FaultTimeout) }

// IsMultipleDone reports whether err is a multiple-completion fault.
func IsMultipleDone(err error) bool { return IsFault(err, FaultMultipleDone) }

// serializeValue renders a non-error completion value for diagnostics:
// composite values as JSON, everything else with %v.
func serializeValue(v any) string {
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}

// isFalsy mirrors the completion protocol's notion of "no value": nil, false,
// zero numbers and the empty string.
func isFalsy(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.String:
		return rv.Len() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// AssertionError is raised by assertion helpers running against a Context.
type AssertionError struct {
	Message string
	file    string
	line    int
}

func (e *AssertionError) Error() string { return e.Message }

// AssertionFailure marks the error as originating from the assertion layer.
func (e *AssertionError) AssertionFailure() bool { return true }

// Location returns the first caller outside the assertion machinery.
func (e *AssertionError) Location() (string, int) { return e.file, e.line }

// IsAssertion reports whether err originates from the assertion layer.
// Recognition is by capability (an AssertionFailure() method), not by type,
// so assertion errors from other packages qualify too.
func IsAssertion(err error) bool {
	var a interface{ AssertionFailure() bool }
	if errors.As(err, &a) {
		return a.AssertionFailure()
	}
	return false
}

func newAssertionError(message string) *AssertionError {
	e := &AssertionError{Message: message}
	e.file, e.line = callerOutside("github.com/stretchr/testify/", "github.com/roach88/runview/internal/runnable.")
	return e
}

// callerOutside walks the stack and returns the first frame whose function
// does not start with one of the skipped prefixes.
func callerOutside(skip ...string) (string, int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		skipped := false
		for _, prefix := range skip {
			if strings.HasPrefix(frame.Function, prefix) {
				skipped = true
				break
			}
		}
		if !skipped && frame.File != "" {
			return frame.File, frame.Line
		}
		if !more {
			return "", 0
		}
	}
}
