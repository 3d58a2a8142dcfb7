// cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/browser"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/demo"
	"github.com/xkilldash9x/chatprobe/internal/observability"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/reporting"
	"github.com/xkilldash9x/chatprobe/internal/runner"
	"github.com/xkilldash9x/chatprobe/internal/scenarios"
)

const shutdownTimeout = 30 * time.Second

// launcherFactory creates the browser launcher for a run and the function
// that releases it.
type launcherFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, func(context.Context) error)

func chromeLauncher(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (browser.Launcher, func(context.Context) error) {
	mgr := browser.NewManager(ctx, cfg, logger)
	return mgr, mgr.Shutdown
}

// runDeps are the collaborators of a run that tests replace.
type runDeps struct {
	launcher   launcherFactory
	stores     storeProvider
	engineOpts []runner.EngineOption
}

type runOptions struct {
	serveDemo bool
	list      bool
}

func newRunCmd() *cobra.Command {
	return newRunCmdWith(runDeps{launcher: chromeLauncher, stores: NewStoreProvider()})
}

func newRunCmdWith(deps runDeps) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run chat widget scenarios in real browsers",
		Long: `Runs the built-in UI scenarios and response suites (plus any YAML suite
files) against the configured chat widget. Every test gets its own browser.
Reports are written to report.dir; the exit code is non-zero when a test fails.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{runLogAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runTests(ctx, cfg, opts, deps, cmd.OutOrStdout())
		},
	}

	fs := runCmd.Flags()
	fs.StringSliceP("suite", "s", nil, "scenario tags to run (ui, responses, laraigo, examples, all)")
	bindKey(fs, "suite", "run.suites")
	fs.StringSlice("suite-file", nil, "extra YAML response suite files")
	bindKey(fs, "suite-file", "run.suite_files")
	fs.IntP("parallel", "n", 0, "number of tests run at once")
	bindKey(fs, "parallel", "run.parallelism")
	fs.Bool("headless", true, "run browsers without a window")
	bindKey(fs, "headless", "browser.headless")
	fs.String("url", "", "page hosting the chat widget")
	bindKey(fs, "url", "target.url")
	fs.String("widget", "", "chat widget variant (demo, laraigo)")
	bindKey(fs, "widget", "target.widget")
	fs.Bool("fail-fast", false, "stop scheduling tests after the first failure")
	bindKey(fs, "fail-fast", "run.fail_fast")
	fs.String("report-dir", "", "directory for report artifacts")
	bindKey(fs, "report-dir", "report.dir")
	fs.BoolVar(&opts.serveDemo, "serve-demo", false, "serve the bundled demo widget for the duration of the run")
	fs.BoolVar(&opts.list, "list", false, "print the selected test ids and exit")
	return runCmd
}

// selectCases registers the built-in scenarios plus the configured suite
// files and returns the cases the run configuration selects.
func selectCases(cfg config.Interface) ([]runner.Case, error) {
	reg := runner.NewRegistry()
	if err := scenarios.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("registering built-in scenarios: %w", err)
	}
	for _, path := range cfg.Run().SuiteFiles {
		s, err := scenarios.LoadSuiteFile(path)
		if err != nil {
			return nil, err
		}
		if err := s.Register(reg); err != nil {
			return nil, err
		}
	}

	tags := append(append([]string(nil), cfg.Run().Suites...), cfg.Run().Tags...)
	cases := reg.Cases(runner.Filter{Tags: tags, Widget: cfg.Target().Widget})
	if len(cases) == 0 {
		return nil, fmt.Errorf("no scenarios match suites %v for widget %q (known tags: %v)", tags, cfg.Target().Widget, reg.Tags())
	}
	return cases, nil
}

func runTests(ctx context.Context, cfg *config.Config, opts runOptions, deps runDeps, out io.Writer) error {
	logger := observability.GetLogger()

	if opts.serveDemo {
		if cfg.Target().Widget != config.WidgetDemo {
			return fmt.Errorf("--serve-demo needs target.widget %q, got %q", config.WidgetDemo, cfg.Target().Widget)
		}
		srv := demo.New(cfg.Demo(), logger)
		url, err := srv.Start(ctx)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := browser.TeardownContext(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("Demo server did not shut down cleanly.", zap.Error(err))
			}
		}()
		cfg.SetTargetURL(url)
	}

	cases, err := selectCases(cfg)
	if err != nil {
		return err
	}
	if opts.list {
		for _, c := range cases {
			fmt.Fprintln(out, c.ID)
		}
		return nil
	}

	started := time.Now()
	pipeOpts := []reporting.Option{}
	execLog, err := observability.NewExecutionLog(cfg.Logger(), cfg.Logger().LogsDir, started)
	if err != nil {
		logger.Warn("Execution log disabled.", zap.Error(err))
	} else {
		defer func() { _ = execLog.Sync() }()
		pipeOpts = append(pipeOpts, reporting.WithExecutionLog(execLog))
	}

	if cfg.Database().Driver != "" {
		st, err := deps.stores.Open(ctx, cfg.Database(), logger)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Warn("Failed to close run history.", zap.Error(err))
			}
		}()
		pipeOpts = append(pipeOpts, reporting.WithExtraWriters(&reporting.StoreWriter{Store: st}))
	}

	pipeline := reporting.NewPipeline(recorder.New(), cfg.Report(), logger, pipeOpts...)
	launcher, release := deps.launcher(ctx, cfg.Browser(), logger)
	defer func() {
		sctx, cancel := browser.TeardownContext(ctx, shutdownTimeout)
		defer cancel()
		if err := release(sctx); err != nil {
			logger.Warn("Browser shutdown incomplete.", zap.Error(err))
		}
	}()

	logger.Info("Target selected.",
		zap.String("url", cfg.Target().URL),
		zap.String("browser", cfg.Browser().Kind),
		zap.Bool("headless", cfg.Browser().Headless),
		zap.String("report_dir", pipeline.Dir()),
	)
	res, runErr := runner.NewEngine(cfg, launcher, pipeline, logger, deps.engineOpts...).Run(ctx, cases)
	printResult(out, res, pipeline.Dir(), execLog)

	if runErr != nil {
		return runErr
	}
	if res.ReportErr != nil {
		logger.Warn("Some report artifacts were not written.", zap.Error(res.ReportErr))
	}
	if !res.OK() {
		return ErrTestsFailed
	}
	return nil
}

func printResult(out io.Writer, res runner.Result, dir string, execLog *observability.ExecutionLog) {
	s := res.Summary
	fmt.Fprintf(out, "\n%d passed, %d failed", s.Passed(), s.Failed())
	if res.Skipped > 0 {
		fmt.Fprintf(out, ", %d skipped", res.Skipped)
	}
	fmt.Fprintf(out, " in %s (run %s)\n", s.Elapsed().Round(10*time.Millisecond), res.RunID)
	for _, row := range s.Rows {
		if row.Failed() {
			msg := ""
			if row.Error != nil {
				msg = reporting.ShortMessage(*row.Error)
			}
			fmt.Fprintf(out, "  FAILED %s: %s\n", row.Name, msg)
		}
	}
	fmt.Fprintf(out, "Reports: %s\n", dir)
	if execLog != nil && execLog.Path() != "" {
		fmt.Fprintf(out, "Execution log: %s\n", execLog.Path())
	}
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
