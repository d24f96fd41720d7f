// Package page models the browser location the reporter reads and writes:
// ordered query parameters, the URL fragment and a reload trigger.
package page

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Query parameter names used by the reporter.
const (
	ParamGrep       = "grep"
	ParamCoverage   = "coverage"
	ParamNoTryCatch = "no_try_catch"
)

type param struct {
	name  string
	value string
	bare  bool // present without "=value"
}

// Location is a mutable URL with an observable reload.
//
// Parameter order is preserved so rewritten URLs stay stable.
//
// Thread-safety: all methods are safe for concurrent use. OnReload runs
// without the internal lock held.
type Location struct {
	mu      sync.Mutex
	path    string
	params  []param
	hash    string
	reloads int

	onReload func(*Location)
}

// Parse reads a URL such as "/tests?grep=foo#hide_passed".
func Parse(raw string) (*Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", raw, err)
	}
	l := &Location{path: u.Path, hash: u.Fragment}
	if l.path == "" {
		l.path = "/"
	}
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		name, err = url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", raw, err)
		}
		value, err = url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("parse location %q: %w", raw, err)
		}
		l.params = append(l.params, param{name: name, value: value, bare: !hasValue})
	}
	return l, nil
}

// MustParse is Parse for literals.
func MustParse(raw string) *Location {
	l, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return l
}

// OnReload sets the function run by Reload.
func (l *Location) OnReload(f func(*Location)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = f
}

// Path returns the URL path.
func (l *Location) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Param returns the first value of name and whether it is present. A
// parameter given without a value is present with "".
func (l *Location) Param(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.params {
		if p.name == name {
			return p.value, true
		}
	}
	return "", false
}

// HasParam reports whether name is present.
func (l *Location) HasParam(name string) bool {
	_, ok := l.Param(name)
	return ok
}

// SetParam replaces the first occurrence of name, or appends it.
func (l *Location) SetParam(name, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.params {
		if p.name == name {
			l.params[i] = param{name: name, value: value}
			l.params = append(l.params[:i+1], without(l.params[i+1:], name)...)
			return
		}
	}
	l.params = append(l.params, param{name: name, value: value})
}

// ClearParam removes every occurrence of name.
func (l *Location) ClearParam(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = without(l.params, name)
}

// Hash returns the fragment without its leading "#".
func (l *Location) Hash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hash
}

// SetHash sets the fragment. A leading "#" is ignored, so "#" clears it.
func (l *Location) SetHash(hash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hash = strings.TrimPrefix(hash, "#")
}

// Reload counts a reload and runs the OnReload function.
func (l *Location) Reload() {
	l.mu.Lock()
	l.reloads++
	f := l.onReload
	l.mu.Unlock()
	if f != nil {
		f(l)
	}
}

// Reloads returns how many times Reload was called.
func (l *Location) Reloads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloads
}

// Search returns the encoded query including its "?", or "" when empty.
func (l *Location) Search() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return search(l.params)
}

// String returns path, query and fragment.
func (l *Location) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.path + search(l.params)
	if l.hash != "" {
		s += "#" + l.hash
	}
	return s
}

// GrepURL returns a URL for the current page that filters the run by
// pattern. Any grep parameter already present is dropped first.
func (l *Location) GrepURL(pattern string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := search(without(l.params, ParamGrep))
	if prefix == "" {
		prefix = "?"
	} else {
		prefix += "&"
	}
	return l.path + prefix + ParamGrep + "=" + EncodeComponent(pattern)
}

// EncodeComponent escapes s the way URI components are escaped in links:
// spaces become %20, not "+".
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func search(params []param) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.bare {
			parts = append(parts, EncodeComponent(p.name))
			continue
		}
		parts = append(parts, EncodeComponent(p.name)+"="+EncodeComponent(p.value))
	}
	return "?" + strings.Join(parts, "&")
}

func without(params []param, name string) []param {
	kept := make([]param, 0, len(params))
	for _, p := range params {
		if p.name != name {
			kept = append(kept, p)
		}
	}
	return kept
}
