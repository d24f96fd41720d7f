package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/runview/internal/config"
	"github.com/roach88/runview/internal/console"
	"github.com/roach88/runview/internal/page"
	"github.com/roach88/runview/internal/runner"
	"github.com/roach88/runview/internal/script"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Location   string
	Output     string
	Title      string
	Grep       string
	Coverage   string
	NoTryCatch bool
	AsyncOnly  bool
	Stacks     bool
	Timeout    time.Duration
	Slow       time.Duration
	Threshold  float64
	Listen     string
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID      string `json:"run_id,omitempty"`
	Title      string `json:"title"`
	Location   string `json:"location"`
	Tests      int    `json:"tests"`
	Passes     int    `json:"passes"`
	Failures   int    `json:"failures"`
	Pending    int    `json:"pending"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`

	summary *console.Summary
	color   console.ColorMode
	stats   runner.Stats
}

// Text renders the closing summary.
func (r RunResult) Text() string {
	var sb strings.Builder
	if r.summary != nil {
		r.summary.Write(&sb, console.Totals{ //nolint:errcheck
			Passes:   r.Passes,
			Failures: r.Failures,
			Pending:  r.Pending,
			Duration: r.stats.Duration,
		}, r.color)
	}
	if r.Output != "" {
		fmt.Fprintf(&sb, "Report written to %s\n", r.Output)
	}
	if r.RunID != "" {
		fmt.Fprintf(&sb, "Run recorded as %s\n", r.RunID)
	}
	return sb.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a script and report the result",
		Long: `Run a YAML test script, render its live report and print a summary.

The location (--url) drives the report exactly as a browser address would:
grep filters tests, coverage enables the coverage report and no_try_catch
lets failures escape to the caller.

Exit codes:
  0 - All tests passed and expectations were met
  1 - Tests failed or the script's expectations were not met
  2 - Command error (invalid script, database error, etc.)

Examples:
  runview run ./suites/demo.yaml
  runview run ./suites/demo.yaml --grep math -o report.html
  runview run ./suites/demo.yaml --db ./runs.db --coverage cover.out`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	addRunFlags(cmd, opts)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the final report HTML to this file")
	cmd.Flags().BoolVar(&opts.Stacks, "stacks", false, "print failure stacks in the summary")

	return cmd
}

// addRunFlags registers the flags run and serve share.
func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run to this SQLite database")
	cmd.Flags().StringVar(&opts.Location, "url", "/", "page location the report reads its options from")
	cmd.Flags().StringVar(&opts.Title, "title", "", "page title (defaults to the script's title)")
	cmd.Flags().StringVarP(&opts.Grep, "grep", "g", "", "only run tests whose full title contains this")
	cmd.Flags().StringVar(&opts.Coverage, "coverage", "", "Go cover profile to report; enables coverage")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", config.DefaultThreshold, "coverage percentage below which a file fails")
	cmd.Flags().BoolVar(&opts.NoTryCatch, "no-try-catch", false, "let failures escape instead of isolating them")
	cmd.Flags().BoolVar(&opts.AsyncOnly, "async-only", false, "require every body to take done or return an awaitable")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", config.DefaultTimeout, "default test timeout")
	cmd.Flags().DurationVar(&opts.Slow, "slow", config.DefaultSlow, "default slow threshold")
}

// resolveConfig applies explicitly set flags over the config file.
func (o *RunOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.Timeout
	}
	if flags.Changed("slow") {
		cfg.Slow = o.Slow
	}
	if flags.Changed("threshold") {
		cfg.Coverage.Threshold = o.Threshold
	}
	if o.Coverage != "" {
		cfg.Coverage.Profile = o.Coverage
	}
	if flags.Lookup("output") != nil && flags.Changed("output") {
		cfg.Output = o.Output
	}
	if flags.Lookup("listen") != nil && flags.Changed("listen") {
		cfg.Listen = o.Listen
	}
	return cfg, nil
}

// resolveLocation folds the location-shaped flags into the URL.
func (o *RunOptions) resolveLocation() (string, error) {
	loc, err := page.Parse(o.Location)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid --url", err)
	}
	if o.Grep != "" {
		loc.SetParam(page.ParamGrep, o.Grep)
	}
	if o.Coverage != "" {
		loc.SetParam(page.ParamCoverage, "true")
	}
	if o.NoTryCatch {
		loc.SetParam(page.ParamNoTryCatch, "true")
	}
	return loc.String(), nil
}

// resolveTitle picks --title, then a title set in the config file, then
// the script's own.
func (o *RunOptions) resolveTitle(cfg config.Config, s *script.Script) string {
	if o.Title != "" {
		return o.Title
	}
	if cfg.Title != config.DefaultTitle {
		return cfg.Title
	}
	return pageTitle("", s)
}

func loadScript(path string) (*script.Script, error) {
	s, err := script.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load script", err)
	}
	return s, nil
}

func runScript(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)
	colorMode := console.ParseColorMode(opts.Color)

	s, err := loadScript(path)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded script %s from %s", s.Name, path)

	location, err := opts.resolveLocation()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	sc := sessionConfig{
		cfg:         cfg,
		script:      s,
		title:       opts.resolveTitle(cfg, s),
		location:    location,
		asyncOnly:   opts.AsyncOnly,
		diagnostics: console.NewDiagnostics(cmd.ErrOrStderr(), colorMode),
		logger:      logger,
	}
	if cfg.Database != "" {
		st, closeStore, err := openStore(cfg.Database, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		sc.db = st
	}

	if opts.Stacks {
		sc.summaryOpts = append(sc.summaryOpts, console.WithStacks())
	}

	sess, err := newSession(ctx, sc)
	if err != nil {
		return err
	}

	stats, runErr := sess.run(ctx)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return WrapExitError(ExitFailure, "run interrupted", runErr)
		}
		return runErr
	}

	result := RunResult{
		RunID:      sess.runID(),
		Title:      sc.title,
		Location:   location,
		Tests:      stats.Tests,
		Passes:     stats.Passes,
		Failures:   stats.Failures,
		Pending:    stats.Pending,
		DurationMS: stats.Duration.Milliseconds(),
		summary:    sess.summary,
		color:      colorMode,
		stats:      stats,
	}
	if cfg.Output != "" {
		if err := sess.writeOutput(cfg.Output); err != nil {
			return err
		}
		result.Output = cfg.Output
	}

	return reportOutcome(formatter, result, s.Verify(stats))
}

// reportOutcome prints result and maps failures to exit code 1.
func reportOutcome(formatter *OutputFormatter, result RunResult, verifyErr error) error {
	var failure *CLIError
	switch {
	case verifyErr != nil:
		failure = &CLIError{Code: ErrCodeExpectation, Message: verifyErr.Error()}
	case result.Failures > 0:
		failure = &CLIError{Code: ErrCodeRunFailed, Message: fmt.Sprintf("%d failing", result.Failures)}
	}

	if err := formatter.Result(result, failure); err != nil {
		return err
	}
	if failure == nil {
		return nil
	}
	if verifyErr != nil {
		return WrapExitError(ExitFailure, "expectations not met", verifyErr)
	}
	return NewExitError(ExitFailure, failure.Message)
}
