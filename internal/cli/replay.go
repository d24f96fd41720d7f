package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/runview/internal/console"
	"github.com/roach88/runview/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Output   string
	List     bool
}

// RunList is the output of replay --list.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

// Text renders one line per run.
func (l RunList) Text() string {
	if len(l.Runs) == 0 {
		return "No runs recorded\n"
	}
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTITLE\tPASSES\tFAILURES\tPENDING")
	for _, r := range l.Runs {
		status := ""
		if !r.Ended() {
			status = " (incomplete)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%d\t%d\t%d\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Title, status, r.Passes, r.Failures, r.Pending)
	}
	tw.Flush() //nolint:errcheck
	return sb.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-render a recorded run",
		Long: `Replay a run recorded with --db through a fresh report.

The recorded events are emitted in their original order, so the report,
summary and output file match what the live run produced. The replayed
counts are checked against the counts stored with the run.

Exit codes:
  0 - Run replayed and its counts match the recording
  1 - Replayed counts differ from the recording
  2 - Command error (database not found, unknown run, etc.)

Examples:
  runview replay --db ./runs.db
  runview replay --db ./runs.db --run 0190f1e4-... -o report.html
  runview replay --db ./runs.db --list`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay this run instead of the latest")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the replayed report HTML to this file")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs instead of replaying")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	formatter := opts.formatter(cmd)
	colorMode := console.ParseColorMode(opts.Color)

	if _, err := os.Stat(opts.Database); err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil) //nolint:errcheck
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, closeStore, err := openStore(opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if opts.List {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return formatter.Success(RunList{Runs: runs})
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, store.ErrRunNotFound) {
		formatter.Error(ErrCodeNotFound, "run not found", opts.RunID) //nolint:errcheck
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Replaying run %s (%s)", run.ID, run.Title)

	sess, err := newSession(ctx, sessionConfig{
		cfg:         cfg,
		title:       run.Title,
		location:    run.Location,
		diagnostics: console.NewDiagnostics(cmd.ErrOrStderr(), colorMode),
		logger:      logger,
	})
	if err != nil {
		return err
	}

	n, err := st.Replay(ctx, run.ID, sess.bus)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	logger.Info("run replayed", "run_id", run.ID, "events", n)

	var duration int64
	if run.Ended() {
		duration = run.EndedAt.Sub(run.StartedAt).Milliseconds()
	}
	result := RunResult{
		RunID:      run.ID,
		Title:      run.Title,
		Location:   run.Location,
		Tests:      run.Total,
		Passes:     run.Passes,
		Failures:   run.Failures,
		Pending:    run.Pending,
		DurationMS: duration,
		summary:    sess.summary,
		color:      colorMode,
	}
	result.stats.Duration = time.Duration(duration) * time.Millisecond

	if opts.Output != "" {
		if err := sess.writeOutput(opts.Output); err != nil {
			return err
		}
		result.Output = opts.Output
	}

	var mismatch *CLIError
	if got := sess.rep.Session(); run.Ended() && (got.Passes != run.Passes || got.Failures != run.Failures) {
		mismatch = &CLIError{
			Code: ErrCodeExpectation,
			Message: fmt.Sprintf("replayed %d passes and %d failures, recorded %d and %d",
				got.Passes, got.Failures, run.Passes, run.Failures),
		}
	}
	if err := formatter.Result(result, mismatch); err != nil {
		return err
	}
	if mismatch != nil {
		return NewExitError(ExitFailure, mismatch.Message)
	}
	return nil
}
