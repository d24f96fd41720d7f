// Package reporter renders a run's lifecycle events into a live HTML report.
//
// The Reporter subscribes to every event kind and mutates its document
// synchronously inside each handler. Suites nest through an explicit stack
// of insertion points; counters, mood, duration and the progress gauge are
// updated incrementally, never by re-rendering the whole view.
package reporter

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/roach88/runview/internal/clock"
	"github.com/roach88/runview/internal/dom"
	"github.com/roach88/runview/internal/event"
	"github.com/roach88/runview/internal/page"
)

// ErrMissingRoot is returned by New when the document has no #mocha element.
var ErrMissingRoot = errors.New("#mocha missing, ensure it is in your document")

// Session is the state of the run being reported.
type Session struct {
	StartedAt time.Time     `json:"started_at"`
	Passes    int           `json:"passes"`
	Failures  int           `json:"failures"`
	Total     int           `json:"total"`
	Mood      Mood          `json:"mood"`
	Progress  int           `json:"progress"`
	Duration  time.Duration `json:"duration"`
	Ended     bool          `json:"ended"`
}

// Diagnostics receives full stack dumps requested from the report.
type Diagnostics interface {
	DumpStack(title, stack string)
}

type logDiagnostics struct{ logger *slog.Logger }

func (d logDiagnostics) DumpStack(title, stack string) {
	d.logger.Info("stack dump", "test", title, "stack", stack)
}

type handler func(event.Payload)

// Reporter is the live event-to-DOM renderer.
//
// Thread-safety: handlers run on the event source's dispatch goroutine.
// Everything else that touches the document (Toggle, Session, rendering)
// must be serialized with dispatch by the caller, e.g. via event.Bus.Do.
type Reporter struct {
	src      event.Source
	doc      *dom.Document
	loc      *page.Location
	clock    clock.Clock
	logger   *slog.Logger
	diag     Diagnostics
	canvas   Canvas
	coverage CoverageFacility
	linters  []string

	session  Session
	handlers map[event.Kind]handler

	stats       *goquery.Selection
	report      *goquery.Selection
	stack       []*goquery.Selection
	orphan      *goquery.Selection
	hidePassed  *goquery.Selection
	coverageBox *goquery.Selection
	noTryCatch  *goquery.Selection
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the clock used for the duration display.
func WithClock(c clock.Clock) Option {
	return func(r *Reporter) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = l
	}
}

// WithDiagnostics sets where "Dump stack" actions write. Defaults to the
// logger.
func WithDiagnostics(d Diagnostics) Option {
	return func(r *Reporter) {
		r.diag = d
	}
}

// WithCanvas replaces the progress gauge surface. Defaults to the <svg>
// inside .mocha-progress.
func WithCanvas(c Canvas) Option {
	return func(r *Reporter) {
		r.canvas = c
	}
}

// WithCoverage attaches a coverage facility whose completion callback the
// reporter chains onto.
func WithCoverage(f CoverageFacility) Option {
	return func(r *Reporter) {
		r.coverage = f
	}
}

// WithLinters overrides the suite prefixes grouped at the end of a run.
func WithLinters(names ...string) Option {
	return func(r *Reporter) {
		r.linters = names
	}
}

// New builds the report skeleton inside doc's #mocha element and
// subscribes to src.
func New(src event.Source, doc *dom.Document, loc *page.Location, opts ...Option) (*Reporter, error) {
	root := doc.Find("#mocha")
	if root.Length() == 0 {
		return nil, ErrMissingRoot
	}

	r := &Reporter{
		src:     src,
		doc:     doc,
		loc:     loc,
		clock:   clock.Real{},
		logger:  slog.Default(),
		linters: DefaultLinters,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.diag == nil {
		r.diag = logDiagnostics{logger: r.logger}
	}

	skeleton, err := doc.Fragment(template)
	if err != nil {
		return nil, fmt.Errorf("build report skeleton: %w", err)
	}
	root.AppendSelection(skeleton)
	doc.Find("#test-title").SetText(doc.Title())

	r.stats = doc.Find("#mocha-stats")
	r.report = doc.Find("#mocha-report")
	r.stack = []*goquery.Selection{r.report}
	if r.canvas == nil {
		r.canvas = NewSVGCanvas(r.stats.Find(".mocha-progress svg"))
	}

	r.setupToggles()
	r.setupCoverage()
	r.setupEvents()
	return r, nil
}

// setupEvents binds the fixed dispatch table.
func (r *Reporter) setupEvents() {
	r.handlers = map[event.Kind]handler{
		event.Start:    r.onStart,
		event.End:      r.onEnd,
		event.Suite:    r.onSuite,
		event.SuiteEnd: r.onSuiteEnd,
		event.Test:     r.ignore,
		event.TestEnd:  r.onTestEnd,
		event.Hook:     r.ignore,
		event.HookEnd:  r.ignore,
		event.Pass:     r.onPass,
		event.Fail:     r.onFail,
		event.Pending:  r.ignore,
	}
	for _, kind := range event.Kinds {
		h := r.handlers[kind]
		r.src.Subscribe(kind, event.Handler(h))
	}
}

// Session returns a copy of the session state.
func (r *Reporter) Session() Session {
	return r.session
}

// Document returns the document being rendered.
func (r *Reporter) Document() *dom.Document {
	return r.doc
}

// Location returns the page location the reporter reads and rewrites.
func (r *Reporter) Location() *page.Location {
	return r.loc
}

func (r *Reporter) ignore(event.Payload) {}

func (r *Reporter) onStart(p event.Payload) {
	r.session.StartedAt = r.clock.Now()
	r.session.Total = p.Total
	r.logger.Debug("report started", "total", p.Total)
}

func (r *Reporter) onEnd(event.Payload) {
	if r.session.Mood != MoodSad {
		r.setMood(MoodHappy)
	}
	r.updateDuration()
	r.session.Ended = true

	for _, linter := range r.linters {
		r.groupDescribes(linter)
	}
}

func (r *Reporter) onSuite(p event.Payload) {
	if p.Suite == nil || p.Suite.Root {
		return
	}
	frag := r.doc.MustFragment(suiteMarkup)
	frag.Find("a").SetText(p.Suite.Title).SetAttr("href", r.loc.GrepURL(p.Suite.FullTitle))

	r.top().AppendSelection(frag)
	r.stack = append(r.stack, frag.Find("ul"))
}

func (r *Reporter) onSuiteEnd(p event.Payload) {
	if p.Suite == nil || p.Suite.Root {
		return
	}
	if len(r.stack) == 0 {
		r.logger.Warn("suite end without open suite", "suite", p.Suite.FullTitle)
		return
	}
	ul := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]

	suite := ul.Parent()
	if !suite.HasClass("suite") {
		return
	}
	if ul.Find(".fail").Length() > 0 {
		suite.AddClass("fail")
	} else {
		suite.AddClass("pass")
	}
}

func (r *Reporter) onTestEnd(p event.Payload) {
	if p.Test == nil {
		return
	}
	r.updateDuration()

	frag := r.fragmentForTest(p.Test)
	r.top().AppendSelection(frag)

	r.updateProgress()
}

func (r *Reporter) onPass(event.Payload) {
	r.session.Passes++
	r.stats.Find(".passes .value").SetText(fmt.Sprint(r.session.Passes))
}

func (r *Reporter) onFail(p event.Payload) {
	r.session.Failures++
	r.stats.Find(".failures .value").SetText(fmt.Sprint(r.session.Failures))
	r.setMood(MoodSad)

	if p.Test == nil {
		return
	}
	if p.Err != nil {
		p.Test.Err = event.NewErrorRecord(p.Err)
	}
	if p.Test.Type == event.UnitHook {
		// Hooks never get a test end of their own.
		r.src.Emit(event.TestEnd, event.Payload{Test: p.Test, Synthetic: true})
	}
}

func (r *Reporter) top() *goquery.Selection {
	if len(r.stack) == 0 {
		r.pushOrphan()
	}
	return r.stack[len(r.stack)-1]
}

// pushOrphan reopens the orphan suite, creating it on first use.
func (r *Reporter) pushOrphan() {
	if r.orphan == nil {
		frag := r.doc.MustFragment(orphanMarkup)
		frag.Find("h1").SetText(orphanTitle)
		r.report.AppendSelection(frag)
		r.orphan = frag.Find("ul")
	}
	r.stack = append(r.stack, r.orphan)
}

func (r *Reporter) setMood(mood Mood) {
	if applyMood(r.doc, r.stats, &r.session, mood) {
		r.logger.Debug("mood changed", "mood", string(mood))
	}
}

func (r *Reporter) updateDuration() {
	r.session.Duration = clock.Since(r.clock, r.session.StartedAt)
	r.stats.Find(".duration .value").SetText(fmt.Sprintf("%.2f", r.session.Duration.Seconds()))
}

// updateProgress redraws the gauge. Drawing problems never reach the run.
func (r *Reporter) updateProgress() {
	r.session.Progress = Percent(r.session.Passes+r.session.Failures, r.session.Total)
	if r.canvas == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Debug("progress render panicked", "panic", v)
		}
	}()
	if err := renderProgressRing(r.canvas, r.session.Progress); err != nil {
		r.logger.Debug("progress render failed", "error", err)
	}
}
