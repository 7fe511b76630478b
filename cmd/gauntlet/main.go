package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	gauntlet "github.com/gauntlet-eval/gauntlet"
	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/broker"
	"github.com/gauntlet-eval/gauntlet/dist"
	"github.com/gauntlet-eval/gauntlet/flags"
	"github.com/gauntlet-eval/gauntlet/grader"
	"github.com/gauntlet-eval/gauntlet/metrics"
	"github.com/gauntlet-eval/gauntlet/reporting"
	"github.com/gauntlet-eval/gauntlet/runner"
	"github.com/gauntlet-eval/gauntlet/stats"
	"github.com/gauntlet-eval/gauntlet/store"
	"github.com/gauntlet-eval/gauntlet/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "gauntlet"
	app.Usage = "Agent evaluation engine"
	app.Description = "gauntlet runs evaluation suites against agents, locally or across workers, and compares the results"
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run a suite and report the results",
			Flags:  flags.RunFlags,
			Action: runCmd,
		},
		{
			Name:   "worker",
			Usage:  "Consume tasks from the broker until interrupted",
			Flags:  flags.WorkerFlags,
			Action: workerCmd,
		},
		{
			Name:   "list",
			Usage:  "List stored runs",
			Flags:  flags.ListFlags,
			Action: listCmd,
		},
		{
			Name:   "compare",
			Usage:  "Compare two groups of stored runs",
			Flags:  flags.CompareFlags,
			Action: compareCmd,
		},
		{
			Name:   "workers",
			Usage:  "List live workers on the broker",
			Flags:  []cli.Flag{flags.BrokerURL, flags.LogLevel},
			Action: workersCmd,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			switch {
			case gauntlet.IsRuntimeError(err),
				gauntlet.IsBrokerUnavailableError(err),
				gauntlet.IsInvocationError(err),
				gauntlet.IsTimeoutError(err):
				cli.HandleExitCoder(cli.Exit(err.Error(), 2))
			default:
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newLogger(ctx *cli.Context) log.Logger {
	level := slog.LevelInfo
	switch ctx.String(flags.LogLevel.Name) {
	case "trace":
		level = log.LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true))
	log.SetDefault(logger)
	return logger
}

func serveMetrics(logger log.Logger, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server stopped", "err", err)
		}
	}()
}

func runCmd(ctx *cli.Context) error {
	logger := newLogger(ctx)
	cfg, err := gauntlet.NewConfig(ctx, logger)
	if err != nil {
		return gauntlet.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	serveMetrics(logger, cfg.MetricsAddr)

	svc, err := gauntlet.New(cfg)
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}
	defer svc.Close()

	run, err := svc.RunSuite(ctx.Context)
	if err != nil {
		if gauntlet.IsDistributionTimeoutError(err) && run != nil {
			// Recoverable: the run completed through the local fallback.
			logger.Warn("Remote collection timed out, run finished locally", "err", err)
		} else {
			return gauntlet.NewRuntimeError(err)
		}
	}

	if ctx.Bool(flags.JSONOutput.Name) {
		if err := reporting.FormatRunJSON(os.Stdout, run); err != nil {
			return gauntlet.NewRuntimeError(err)
		}
	} else {
		reporting.FormatRunText(os.Stdout, run)
	}

	if run.Summary.Failed > 0 {
		return gauntlet.NewFailureError(
			fmt.Sprintf("%d of %d cases failed", run.Summary.Failed, run.Summary.Total))
	}
	return nil
}

func workerCmd(ctx *cli.Context) error {
	logger := newLogger(ctx)
	brokerURL := ctx.String(flags.BrokerURL.Name)
	if brokerURL == "" {
		return gauntlet.NewRuntimeError(errors.New("broker URL is required for worker mode"))
	}
	serveMetrics(logger, ctx.String(flags.MetricsAddr.Name))

	queue, err := broker.NewRedisQueue(brokerURL, logger)
	if err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			return gauntlet.NewBrokerUnavailableError(err)
		}
		return gauntlet.NewRuntimeError(err)
	}
	defer queue.Close()

	agents := agent.DefaultRegistry()
	var agentCfg map[string]any
	if url := ctx.String(flags.AgentURL.Name); url != "" {
		agentCfg = map[string]any{"url": url}
	}
	localRunner, err := runner.NewRunner(runner.Config{
		Log:     logger,
		Graders: grader.DefaultRegistry(),
		Timeout: ctx.Duration(flags.Timeout.Name),
	})
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}

	w, err := dist.NewWorker(dist.WorkerConfig{
		Log:         logger,
		Queue:       queue,
		Agents:      agents,
		AgentConfig: agentCfg,
		Runner:      localRunner,
		ID:          ctx.String(flags.WorkerID.Name),
		Concurrency: ctx.Int(flags.Concurrency.Name),
	})
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}

	if err := w.Run(ctx.Context); err != nil {
		return gauntlet.NewRuntimeError(err)
	}
	return nil
}

func listCmd(ctx *cli.Context) error {
	logger := newLogger(ctx)
	st, err := store.NewSQLiteStore(ctx.String(flags.StorePath.Name), logger)
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx.Context, store.ListFilter{
		Suite: ctx.String(flags.FilterSuite.Name),
		Limit: ctx.Int(flags.Limit.Name),
	})
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}

	if ctx.Bool(flags.JSONOutput.Name) {
		for _, run := range runs {
			if err := reporting.FormatRunJSON(os.Stdout, run); err != nil {
				return gauntlet.NewRuntimeError(err)
			}
		}
		return nil
	}
	reporting.FormatRunsTable(os.Stdout, runs)
	return nil
}

func compareCmd(ctx *cli.Context) error {
	logger := newLogger(ctx)
	baseIDs := ctx.StringSlice(flags.BaseRuns.Name)
	targetIDs := ctx.StringSlice(flags.TargetRuns.Name)
	if len(baseIDs) == 0 || len(targetIDs) == 0 {
		return gauntlet.NewRuntimeError(errors.New("both --base and --target need at least one run ID"))
	}

	st, err := store.NewSQLiteStore(ctx.String(flags.StorePath.Name), logger)
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}
	defer st.Close()

	baseRuns, err := loadRuns(ctx.Context, st, baseIDs)
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}
	targetRuns, err := loadRuns(ctx.Context, st, targetIDs)
	if err != nil {
		return gauntlet.NewRuntimeError(err)
	}

	report := stats.CompareRuns(baseRuns, targetRuns,
		ctx.Float64(flags.Alpha.Name), ctx.Float64(flags.Threshold.Name))

	if ctx.Bool(flags.JSONOutput.Name) {
		if err := reporting.FormatComparisonJSON(os.Stdout, report); err != nil {
			return gauntlet.NewRuntimeError(err)
		}
	} else {
		reporting.FormatComparisonText(os.Stdout, report)
	}

	if regressions := report.Regressions(); len(regressions) > 0 {
		return gauntlet.NewFailureError(fmt.Sprintf("%d regressed cases", len(regressions)))
	}
	return nil
}

func workersCmd(ctx *cli.Context) error {
	logger := newLogger(ctx)
	brokerURL := ctx.String(flags.BrokerURL.Name)
	if brokerURL == "" {
		return gauntlet.NewRuntimeError(errors.New("broker URL is required"))
	}
	queue, err := broker.NewRedisQueue(brokerURL, logger)
	if err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			return gauntlet.NewBrokerUnavailableError(err)
		}
		return gauntlet.NewRuntimeError(err)
	}
	defer queue.Close()

	cctx, cancel := context.WithTimeout(ctx.Context, 10*time.Second)
	defer cancel()
	workers, err := queue.ListLive(cctx)
	if err != nil {
		if cctx.Err() != nil {
			return gauntlet.NewTimeoutError(fmt.Errorf("listing workers: %w", err))
		}
		if errors.Is(err, broker.ErrUnavailable) {
			return gauntlet.NewBrokerUnavailableError(err)
		}
		return gauntlet.NewRuntimeError(err)
	}
	if len(workers) == 0 {
		fmt.Println("no live workers")
		return nil
	}
	for _, id := range workers {
		fmt.Println(id)
	}
	return nil
}

func loadRuns(ctx context.Context, st store.Store, ids []string) ([]*types.Run, error) {
	runs := make([]*types.Run, 0, len(ids))
	for _, id := range ids {
		run, err := st.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
