package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/runview/internal/config"
	"github.com/roach88/runview/internal/console"
	"github.com/roach88/runview/internal/coverage"
	"github.com/roach88/runview/internal/dom"
	"github.com/roach88/runview/internal/event"
	"github.com/roach88/runview/internal/page"
	"github.com/roach88/runview/internal/reporter"
	"github.com/roach88/runview/internal/runner"
	"github.com/roach88/runview/internal/script"
	"github.com/roach88/runview/internal/store"
)

// sessionConfig is everything one run of a script needs.
type sessionConfig struct {
	cfg       config.Config
	script    *script.Script
	title     string
	location  string
	asyncOnly bool

	// db enables recording when non-nil.
	db *store.Store

	diagnostics reporter.Diagnostics
	summaryOpts []console.SummaryOption
	logger      *slog.Logger
}

// session wires a script run to a fresh document: bus, reporter, summary,
// optional recorder and optional coverage facility.
type session struct {
	bus      *event.Bus
	doc      *dom.Document
	loc      *page.Location
	rep      *reporter.Reporter
	summary  *console.Summary
	recorder *store.Recorder
	facility *coverage.Facility
	runner   *runner.Runner
	logger   *slog.Logger
}

func newSession(ctx context.Context, sc sessionConfig) (*session, error) {
	loc, err := page.Parse(sc.location)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid location", err)
	}

	doc := dom.New()
	doc.Find("title").SetText(sc.title)

	s := &session{
		bus:     event.NewBus(event.WithLogger(sc.logger)),
		doc:     doc,
		loc:     loc,
		summary: console.NewSummary(sc.summaryOpts...),
		logger:  sc.logger,
	}

	repOpts := []reporter.Option{
		reporter.WithLogger(sc.logger),
		reporter.WithLinters(sc.cfg.Linters...),
	}
	if sc.diagnostics != nil {
		repOpts = append(repOpts, reporter.WithDiagnostics(sc.diagnostics))
	}
	if cov := sc.cfg.Coverage; cov.Profile != "" {
		s.facility = coverage.NewFacility(func() { s.renderCoverage(cov) })
		repOpts = append(repOpts, reporter.WithCoverage(s.facility))
	}

	s.rep, err = reporter.New(s.bus, doc, loc, repOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create reporter", err)
	}
	s.summary.Attach(s.bus)

	if sc.db != nil {
		s.recorder = store.NewRecorder(ctx, sc.db, sc.title, loc.String(), store.WithRecorderLogger(sc.logger))
		s.recorder.Attach(s.bus)
	}

	// Replays feed the bus themselves.
	if sc.script == nil {
		return s, nil
	}
	opts := s.rep.RunnerOptions(runner.Options{
		Timeout:   sc.cfg.Timeout,
		Slow:      sc.cfg.Slow,
		AsyncOnly: sc.asyncOnly,
	})
	s.runner = runner.New(script.Build(sc.script), s.bus, opts, runner.WithLogger(sc.logger))
	return s, nil
}

// renderCoverage runs as the facility's completion callback, before the
// reporter's own post-processing.
func (s *session) renderCoverage(cov config.Coverage) {
	root := cov.Root
	if root == "" {
		root = "."
	}
	rep, err := coverage.Load(cov.Profile, coverage.DirSource(root, cov.Module))
	if err != nil {
		s.logger.Warn("coverage report unavailable", "profile", cov.Profile, "error", err)
		return
	}
	if err := coverage.Render(s.doc, rep, cov.Threshold); err != nil {
		s.logger.Warn("coverage render failed", "error", err)
		return
	}
	s.logger.Info("coverage rendered", "files", len(rep.Files), "percent", fmt.Sprintf("%.1f", rep.Percent()))
}

// run executes the script. Coverage is finished once the run has ended if
// the location asks for it.
func (s *session) run(ctx context.Context) (runner.Stats, error) {
	stats, err := s.runner.Run(ctx)
	if s.facility != nil && s.loc.HasParam(page.ParamCoverage) {
		s.bus.Do(func() { s.facility.Finish() })
	}
	if s.recorder != nil {
		if recErr := s.recorder.Err(); recErr != nil {
			return stats, WrapExitError(ExitCommandError, "failed to record run", recErr)
		}
	}
	return stats, err
}

// render writes the document to w, serialized with event dispatch.
func (s *session) render(w io.Writer) error {
	var err error
	s.bus.Do(func() { err = s.doc.Render(w) })
	return err
}

// writeOutput saves the final document to path.
func (s *session) writeOutput(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	if err := s.render(f); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "failed to write output file", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output file", err)
	}
	return nil
}

func (s *session) runID() string {
	if s.recorder == nil {
		return ""
	}
	return s.recorder.RunID()
}

// openStore opens the run log, mapping failures to a command error.
func openStore(path string, logger *slog.Logger) (*store.Store, func(), error) {
	logger.Debug("opening database", "path", path)
	st, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}
	return st, closeFn, nil
}

// pageTitle picks the report title: an explicit title, then the script's.
func pageTitle(explicit string, s *script.Script) string {
	if explicit != "" {
		return explicit
	}
	return s.PageTitle()
}
