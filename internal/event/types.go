package event

import (
	"fmt"
	"time"
)

// Kind identifies one of the lifecycle events emitted during a run.
type Kind int

const (
	// Start fires once before the first suite.
	Start Kind = iota + 1
	// End fires once after the last suite.
	End
	// Suite fires when a suite starts executing.
	Suite
	// SuiteEnd fires when a suite has finished executing.
	SuiteEnd
	// Test fires when a test starts executing.
	Test
	// TestEnd fires when a test has finished, whatever its outcome.
	TestEnd
	// Hook fires when a setup/teardown hook starts executing.
	Hook
	// HookEnd fires when a hook finished without error.
	HookEnd
	// Pass fires when a test passed.
	Pass
	// Fail fires when a test or hook failed.
	Fail
	// Pending fires for tests that are declared but not executed.
	Pending
)

// Kinds lists every event kind in emission-table order.
var Kinds = []Kind{Start, End, Suite, SuiteEnd, Test, TestEnd, Hook, HookEnd, Pass, Fail, Pending}

var kindNames = map[Kind]string{
	Start:    "start",
	End:      "end",
	Suite:    "suite",
	SuiteEnd: "suite end",
	Test:     "test",
	TestEnd:  "test end",
	Hook:     "hook",
	HookEnd:  "hook end",
	Pass:     "pass",
	Fail:     "fail",
	Pending:  "pending",
}

// String returns the wire name of the event ("suite end", "test end", ...).
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// UnitType distinguishes tests from setup/teardown hooks.
type UnitType string

const (
	UnitTest UnitType = "test"
	UnitHook UnitType = "hook"
)

// State is the terminal state of a test.
type State string

const (
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StatePending State = "pending"
)

// SuiteInfo describes a suite as seen by event consumers.
type SuiteInfo struct {
	Title     string `json:"title"`
	FullTitle string `json:"full_title"`
	Root      bool   `json:"root,omitempty"`
}

// TestInfo describes a test or hook as seen by event consumers.
//
// The same *TestInfo is handed to every event concerning one unit, so
// consumers may annotate it (the reporter attaches Err on fail).
type TestInfo struct {
	Title     string        `json:"title"`
	FullTitle string        `json:"full_title"`
	Type      UnitType      `json:"type"`
	State     State         `json:"state,omitempty"`
	Pending   bool          `json:"pending,omitempty"`
	Duration  time.Duration `json:"duration"`
	Slow      time.Duration `json:"slow"`
	Source    string        `json:"source,omitempty"`
	Err       *ErrorRecord  `json:"err,omitempty"`
}

// Payload is the argument delivered to handlers.
//
// Which fields are set depends on the kind: Suite for suite events, Test
// for test/hook/pass/pending events, Test and Err for fail, Total for start.
type Payload struct {
	Suite *SuiteInfo
	Test  *TestInfo
	Err   error
	Total int

	// Synthetic marks events emitted by a consumer rather than the runner.
	Synthetic bool
}
