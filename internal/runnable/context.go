package runnable

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Context is handed to every body. It satisfies testify's require.TestingT,
// so assertion helpers can be used directly inside bodies:
//
//	func(ctx *runnable.Context) any {
//		require.Equal(ctx, 2, sum(1, 1))
//		return nil
//	}
//
// A failed require.* call aborts the body with an *AssertionError. Failed
// assert.* calls are collected and fail the runnable when it completes.
type Context struct {
	runnable *Runnable

	mu       sync.Mutex
	messages []string
	file     string
	line     int
}

// Title returns the title of the running unit.
func (c *Context) Title() string { return c.runnable.Title }

// Timeout changes the running unit's timeout and re-arms its timer.
func (c *Context) Timeout(d time.Duration) { c.runnable.SetTimeout(d) }

// Slow changes the running unit's slow threshold.
func (c *Context) Slow(d time.Duration) { c.runnable.SetSlow(d) }

// ResetTimeout restarts the running unit's timer.
func (c *Context) ResetTimeout() { c.runnable.ResetTimeout() }

// Errorf records an assertion failure.
func (c *Context) Errorf(format string, args ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	file, line := callerOutside("github.com/stretchr/testify/", "github.com/roach88/runview/internal/runnable.")

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	if c.file == "" {
		c.file, c.line = file, line
	}
}

// FailNow aborts the body with the assertion failures recorded so far.
func (c *Context) FailNow() {
	err := c.failure()
	if err == nil {
		err = newAssertionError("FailNow called")
	}
	panic(err)
}

// Helper is a no-op; it lets testify skip this frame in its traces.
func (c *Context) Helper() {}

// Failed reports whether any assertion failed.
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) > 0
}

// failure returns the recorded assertion failures as one error, or nil.
func (c *Context) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return &AssertionError{
		Message: strings.Join(c.messages, "\n"),
		file:    c.file,
		line:    c.line,
	}
}
