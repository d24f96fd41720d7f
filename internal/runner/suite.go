package runner

import (
	"strings"
	"time"

	"github.com/roach88/runview/internal/runnable"
)

// NoTimeout disables the timeout for a suite or test, overriding any
// inherited limit.
const NoTimeout time.Duration = -1

// HookKind identifies when a hook runs.
type HookKind int

const (
	BeforeAll HookKind = iota
	AfterAll
	BeforeEach
	AfterEach
)

func (k HookKind) String() string {
	switch k {
	case BeforeAll:
		return "before all"
	case AfterAll:
		return "after all"
	case BeforeEach:
		return "before each"
	case AfterEach:
		return "after each"
	}
	return "hook"
}

// Hook is setup or teardown code attached to a suite.
type Hook struct {
	Name    string
	Fn      runnable.Func
	AsyncFn runnable.AsyncFunc
	Timeout time.Duration
}

// Test is one executable test case.
type Test struct {
	Title   string
	Fn      runnable.Func
	AsyncFn runnable.AsyncFunc
	Pending bool
	Timeout time.Duration
	Slow    time.Duration

	// Source is displayed by reporters. When empty it is looked up from the
	// body's compiled position.
	Source string

	parent *Suite
}

// FullTitle returns the titles of every enclosing suite and the test,
// space-separated.
func (t *Test) FullTitle() string {
	return joinTitle(t.parent.FullTitle(), t.Title)
}

// Parent returns the suite the test was declared in.
func (t *Test) Parent() *Suite { return t.parent }

// Suite is a named group of tests, hooks and nested suites.
type Suite struct {
	Title   string
	Pending bool
	Timeout time.Duration
	Slow    time.Duration

	Suites []*Suite
	Tests  []*Test

	hooks  map[HookKind][]*Hook
	parent *Suite
	root   bool
}

// NewRoot creates the untitled root suite.
func NewRoot() *Suite {
	return &Suite{root: true, hooks: make(map[HookKind][]*Hook)}
}

// IsRoot reports whether s is a root suite.
func (s *Suite) IsRoot() bool { return s.root }

// Parent returns the enclosing suite, nil for the root.
func (s *Suite) Parent() *Suite { return s.parent }

// FullTitle returns the space-separated titles from the root down to s.
func (s *Suite) FullTitle() string {
	if s.parent == nil {
		return s.Title
	}
	return joinTitle(s.parent.FullTitle(), s.Title)
}

// Describe adds a child suite and calls fn to populate it.
func (s *Suite) Describe(title string, fn func(*Suite)) *Suite {
	child := &Suite{Title: title, Pending: s.Pending, parent: s, hooks: make(map[HookKind][]*Hook)}
	s.Suites = append(s.Suites, child)
	if fn != nil {
		fn(child)
	}
	return child
}

// AddTest attaches t to s.
func (s *Suite) AddTest(t *Test) *Test {
	t.parent = s
	if s.Pending {
		t.Pending = true
	}
	s.Tests = append(s.Tests, t)
	return t
}

// It adds a test completed by its return value.
func (s *Suite) It(title string, fn runnable.Func) *Test {
	return s.AddTest(&Test{Title: title, Fn: fn})
}

// ItAsync adds a test completed through its done callback.
func (s *Suite) ItAsync(title string, fn runnable.AsyncFunc) *Test {
	return s.AddTest(&Test{Title: title, AsyncFn: fn})
}

// Skip adds a pending test.
func (s *Suite) Skip(title string) *Test {
	return s.AddTest(&Test{Title: title, Pending: true})
}

// AddHook attaches h to s.
func (s *Suite) AddHook(kind HookKind, h *Hook) {
	s.hooks[kind] = append(s.hooks[kind], h)
}

// Before adds a hook run once before the suite's tests.
func (s *Suite) Before(fn runnable.Func) { s.AddHook(BeforeAll, &Hook{Fn: fn}) }

// After adds a hook run once after the suite's tests.
func (s *Suite) After(fn runnable.Func) { s.AddHook(AfterAll, &Hook{Fn: fn}) }

// BeforeEach adds a hook run before every test in the suite and below.
func (s *Suite) BeforeEach(fn runnable.Func) { s.AddHook(BeforeEach, &Hook{Fn: fn}) }

// AfterEach adds a hook run after every test in the suite and below.
func (s *Suite) AfterEach(fn runnable.Func) { s.AddHook(AfterEach, &Hook{Fn: fn}) }

// Hooks returns the hooks of one kind in declaration order.
func (s *Suite) Hooks(kind HookKind) []*Hook { return s.hooks[kind] }

// Total counts the tests under s whose full title contains grep.
func (s *Suite) Total(grep string) int {
	n := 0
	for _, t := range s.Tests {
		if matches(t, grep) {
			n++
		}
	}
	for _, child := range s.Suites {
		n += child.Total(grep)
	}
	return n
}

// timeout resolves the effective limit: the closest explicit setting wins.
func (s *Suite) timeout(fallback time.Duration) time.Duration {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Timeout != 0 {
			return cur.Timeout
		}
	}
	return fallback
}

func (s *Suite) slow(fallback time.Duration) time.Duration {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Slow != 0 {
			return cur.Slow
		}
	}
	return fallback
}

func matches(t *Test, grep string) bool {
	return grep == "" || strings.Contains(t.FullTitle(), grep)
}

func joinTitle(parent, title string) string {
	if parent == "" {
		return title
	}
	return parent + " " + title
}

func effective(explicit, inherited time.Duration) time.Duration {
	d := inherited
	if explicit != 0 {
		d = explicit
	}
	if d == NoTimeout {
		return 0
	}
	return d
}
