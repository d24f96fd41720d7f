package cli

import (
	"context"
	"errors"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/runview/internal/console"
	"github.com/roach88/runview/internal/metrics"
	"github.com/roach88/runview/internal/page"
	"github.com/roach88/runview/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	RunOptions

	// ready receives the bound address once the server listens (for testing).
	ready chan<- net.Addr
	// finished receives each completed run (for testing).
	finished chan<- RunResult
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RunOptions: RunOptions{RootOptions: rootOpts}}
	return newServeCommand(opts)
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <script.yaml>",
		Short: "Run a script behind a live HTTP view",
		Long: `Run a YAML test script and serve its report while it runs.

The report is served at /, websocket clients on /ws receive a snapshot
after every change, POST /toggle/{id} flips a report option and
/metrics exposes Prometheus metrics. Toggles that change the location
re-run the script with the new options.

Runs until interrupted.

Examples:
  runview serve ./suites/demo.yaml
  runview serve ./suites/demo.yaml --listen :9000 --db ./runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveScript(opts, args[0], cmd)
		},
	}

	addRunFlags(cmd, &opts.RunOptions)
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address to serve on (defaults to the config's listen)")

	return cmd
}

func serveScript(opts *ServeOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	s, err := loadScript(path)
	if err != nil {
		return err
	}
	location, err := opts.resolveLocation()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.New(reg)
	srv := server.New(server.WithLogger(logger), server.WithGatherer(reg))

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	sc := sessionConfig{
		cfg:         cfg,
		script:      s,
		title:       opts.resolveTitle(cfg, s),
		asyncOnly:   opts.AsyncOnly,
		diagnostics: console.NewDiagnostics(cmd.ErrOrStderr(), console.ParseColorMode(opts.Color)),
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

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Listen, opts.ready)
	})
	g.Go(func() error {
		for {
			sc.location = location
			sess, err := newSession(gctx, sc)
			if err != nil {
				return err
			}
			reload := make(chan string, 1)
			sess.loc.OnReload(func(l *page.Location) {
				select {
				case reload <- l.String():
				default:
				}
			})
			collector.Attach(sess.bus)
			srv.Attach(sess.bus, sess.rep)

			stats, err := sess.run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("run complete, waiting for reload",
				"passes", stats.Passes, "failures", stats.Failures, "location", location)
			if opts.finished != nil {
				opts.finished <- RunResult{
					RunID:    sess.runID(),
					Title:    sc.title,
					Location: location,
					Tests:    stats.Tests,
					Passes:   stats.Passes,
					Failures: stats.Failures,
					Pending:  stats.Pending,
				}
			}

			select {
			case <-gctx.Done():
				return nil
			case next := <-reload:
				logger.Info("reloading", "location", next)
				location = next
			}
		}
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	return nil
}
