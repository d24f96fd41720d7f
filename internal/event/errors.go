package event

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrorRecord is the display form of a failure: message, optional stack
// text and optional source location.
//
// ErrorRecord itself implements error, so a recorded failure can be fed back
// through a bus (replay) and yield the same record.
type ErrorRecord struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Line      int    `json:"line,omitempty"`
}

func (e *ErrorRecord) Error() string { return e.Message }

// ErrorStack returns the recorded stack text.
func (e *ErrorRecord) ErrorStack() string { return e.Stack }

// Location returns the recorded source location.
func (e *ErrorRecord) Location() (string, int) { return e.SourceURL, e.Line }

// HasLocation reports whether a file and line were recorded.
func (e *ErrorRecord) HasLocation() bool { return e.SourceURL != "" && e.Line > 0 }

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

type stackTexter interface {
	ErrorStack() string
}

type locator interface {
	Location() (string, int)
}

// NewErrorRecord extracts the display form of err.
//
// The stack comes from the first error in the chain that carries one,
// either a github.com/pkg/errors stack trace or an ErrorStack() string.
// The location comes from the first error exposing Location().
// Returns nil for a nil error.
func NewErrorRecord(err error) *ErrorRecord {
	if err == nil {
		return nil
	}
	rec := &ErrorRecord{Message: err.Error()}

	var st stackTexter
	var tr stackTracer
	switch {
	case errors.As(err, &st):
		rec.Stack = st.ErrorStack()
	case errors.As(err, &tr):
		rec.Stack = fmt.Sprintf("%s%+v", err.Error(), tr.StackTrace())
	}

	var loc locator
	if errors.As(err, &loc) {
		rec.SourceURL, rec.Line = loc.Location()
	}
	return rec
}
