package event

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type locatedError struct{}

func (locatedError) Error() string            { return "expected 1 to equal 2" }
func (locatedError) Location() (string, int) { return "math_test.go", 12 }

func TestNewErrorRecord_Nil(t *testing.T) {
	assert.Nil(t, NewErrorRecord(nil))
}

func TestNewErrorRecord_PlainError(t *testing.T) {
	rec := NewErrorRecord(fmt.Errorf("plain"))
	require.NotNil(t, rec)
	assert.Equal(t, "plain", rec.Message)
	assert.Empty(t, rec.Stack)
	assert.False(t, rec.HasLocation())
}

func TestNewErrorRecord_StackFromPkgErrors(t *testing.T) {
	rec := NewErrorRecord(pkgerrors.New("kaboom"))
	require.NotNil(t, rec)
	assert.Equal(t, "kaboom", rec.Message)
	assert.Contains(t, rec.Stack, "kaboom")
	assert.Contains(t, rec.Stack, "TestNewErrorRecord_StackFromPkgErrors")
}

func TestNewErrorRecord_Location(t *testing.T) {
	rec := NewErrorRecord(fmt.Errorf("wrapped: %w", locatedError{}))
	require.NotNil(t, rec)
	assert.Equal(t, "wrapped: expected 1 to equal 2", rec.Message)
	assert.Equal(t, "math_test.go", rec.SourceURL)
	assert.Equal(t, 12, rec.Line)
	assert.True(t, rec.HasLocation())
}

func TestNewErrorRecord_RoundTrip(t *testing.T) {
	orig := &ErrorRecord{Message: "m", Stack: "m\n  at x", SourceURL: "f.go", Line: 3}
	assert.Equal(t, orig, NewErrorRecord(orig))
}
