// Package script loads declarative run scripts: YAML suites whose tests and
// hooks simulate every completion convention a body can use.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a declarative test tree.
type Script struct {
	// Name identifies the script in logs and recorded runs.
	Name string `yaml:"name"`

	// Description explains what the script exercises.
	Description string `yaml:"description,omitempty"`

	// Title is the page title shown above the report. Defaults to Name.
	Title string `yaml:"title,omitempty"`

	// Tests declared at the root, outside any suite.
	Tests []Step `yaml:"tests,omitempty"`

	Suites []SuiteSpec `yaml:"suites"`

	// Expect optionally pins the counts the run must produce.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// SuiteSpec declares one suite.
type SuiteSpec struct {
	Title   string        `yaml:"title"`
	Pending bool          `yaml:"pending,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	Slow    time.Duration `yaml:"slow,omitempty"`

	Before     []Step `yaml:"before,omitempty"`
	BeforeEach []Step `yaml:"before_each,omitempty"`
	AfterEach  []Step `yaml:"after_each,omitempty"`
	After      []Step `yaml:"after,omitempty"`

	Tests  []Step      `yaml:"tests,omitempty"`
	Suites []SuiteSpec `yaml:"suites,omitempty"`
}

// Step declares a test (Title) or a hook (Name) and how its body completes.
type Step struct {
	Title string `yaml:"title,omitempty"`
	Name  string `yaml:"name,omitempty"`

	// Outcome is how the body ends. Defaults to "pass".
	Outcome Outcome `yaml:"outcome,omitempty"`

	// Style is the completion convention. Defaults to the outcome's
	// natural style.
	Style Style `yaml:"style,omitempty"`

	// Delay postpones completion. Sync bodies block for it.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Message is the failure message or non-error value.
	Message string `yaml:"message,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
	Slow    time.Duration `yaml:"slow,omitempty"`
}

// Expectation pins the counts of a run.
type Expectation struct {
	Passes   *int `yaml:"passes,omitempty"`
	Failures *int `yaml:"failures,omitempty"`
	Pending  *int `yaml:"pending,omitempty"`
}

// Outcome is how a simulated body ends.
type Outcome string

const (
	OutcomePass        Outcome = "pass"
	OutcomeFail        Outcome = "fail"
	OutcomePending     Outcome = "pending"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeDoubleDone  Outcome = "double-done"
	OutcomeNonError    Outcome = "non-error"
	OutcomeReject      Outcome = "reject"
	OutcomeFalsyReject Outcome = "falsy-reject"
	OutcomePanic       Outcome = "panic"
	OutcomeAssert      Outcome = "assert"
)

// Style is a completion convention.
type Style string

const (
	// StyleSync bodies complete by returning.
	StyleSync Style = "sync"
	// StyleAsync bodies complete by calling done.
	StyleAsync Style = "async"
	// StyleAwait bodies return an awaitable.
	StyleAwait Style = "await"
)

// outcomeStyles lists the styles each outcome supports; the first is the
// default.
var outcomeStyles = map[Outcome][]Style{
	OutcomePass:        {StyleSync, StyleAsync, StyleAwait},
	OutcomeFail:        {StyleSync, StyleAsync, StyleAwait},
	OutcomePending:     {StyleSync},
	OutcomeTimeout:     {StyleAsync, StyleAwait, StyleSync},
	OutcomeDoubleDone:  {StyleAsync},
	OutcomeNonError:    {StyleAsync, StyleAwait},
	OutcomeReject:      {StyleAwait},
	OutcomeFalsyReject: {StyleAwait},
	OutcomePanic:       {StyleSync, StyleAsync},
	OutcomeAssert:      {StyleSync, StyleAsync},
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid script")

// Load reads and parses a script YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or fails validation.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates a script. Defaults are filled in.
func Parse(r io.Reader) (*Script, error) {
	var s Script
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

// PageTitle returns the title the report page should carry.
func (s *Script) PageTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

func (s *Script) normalize() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(s.Suites) == 0 && len(s.Tests) == 0 {
		return fmt.Errorf("%w: at least one suite or test is required", ErrInvalid)
	}
	for i := range s.Tests {
		if err := s.Tests[i].normalize(fmt.Sprintf("tests[%d]", i), false); err != nil {
			return err
		}
	}
	for i := range s.Suites {
		if err := s.Suites[i].normalize(fmt.Sprintf("suites[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (sp *SuiteSpec) normalize(path string) error {
	if sp.Title == "" {
		return fmt.Errorf("%w: %s: title is required", ErrInvalid, path)
	}
	hooks := []struct {
		field string
		steps []Step
	}{
		{"before", sp.Before},
		{"before_each", sp.BeforeEach},
		{"after_each", sp.AfterEach},
		{"after", sp.After},
	}
	for _, h := range hooks {
		for i := range h.steps {
			if err := h.steps[i].normalize(fmt.Sprintf("%s.%s[%d]", path, h.field, i), true); err != nil {
				return err
			}
		}
	}
	for i := range sp.Tests {
		if err := sp.Tests[i].normalize(fmt.Sprintf("%s.tests[%d]", path, i), false); err != nil {
			return err
		}
	}
	for i := range sp.Suites {
		if err := sp.Suites[i].normalize(fmt.Sprintf("%s.suites[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (st *Step) normalize(path string, hook bool) error {
	if !hook && st.Title == "" {
		return fmt.Errorf("%w: %s: title is required", ErrInvalid, path)
	}
	if hook && st.Title != "" {
		return fmt.Errorf("%w: %s: hooks take a name, not a title", ErrInvalid, path)
	}
	if st.Outcome == "" {
		st.Outcome = OutcomePass
	}
	styles, ok := outcomeStyles[st.Outcome]
	if !ok {
		return fmt.Errorf("%w: %s: unknown outcome %q", ErrInvalid, path, st.Outcome)
	}
	if hook && st.Outcome == OutcomePending {
		return fmt.Errorf("%w: %s: hooks cannot be pending", ErrInvalid, path)
	}
	if st.Style == "" {
		st.Style = styles[0]
	}
	if !containsStyle(styles, st.Style) {
		return fmt.Errorf("%w: %s: outcome %q does not support style %q", ErrInvalid, path, st.Outcome, st.Style)
	}
	if st.Outcome == OutcomeTimeout && st.Style == StyleSync && st.Delay <= 0 {
		return fmt.Errorf("%w: %s: a sync timeout needs a delay longer than the timeout", ErrInvalid, path)
	}
	if st.Delay < 0 {
		return fmt.Errorf("%w: %s: negative delay", ErrInvalid, path)
	}
	return nil
}

func containsStyle(styles []Style, s Style) bool {
	for _, candidate := range styles {
		if candidate == s {
			return true
		}
	}
	return false
}
