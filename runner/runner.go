// Package runner executes evaluation suites against an agent with bounded
// concurrency. Results always come back in the suite's declared case order,
// and no single case failure can abort a run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/grader"
	"github.com/gauntlet-eval/gauntlet/metrics"
	"github.com/gauntlet-eval/gauntlet/types"
)

const (
	// DefaultTimeout bounds a single agent invocation.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency runs cases strictly sequentially.
	DefaultConcurrency = 1

	// DefaultGrader is applied when a case names no grader.
	DefaultGrader = "exact"
)

// Observer is notified of each completed case in completion order. Calls are
// serialized; an observer never runs concurrently with itself.
type Observer func(index int, result types.CaseResult)

// Config configures a Runner.
type Config struct {
	Log         log.Logger
	Graders     *grader.Registry
	Concurrency int
	Timeout     time.Duration
}

// RunOptions carries per-run overrides.
type RunOptions struct {
	// RunID overrides the generated run identifier.
	RunID string

	// AgentRef overrides the suite's agent reference recorded on the run.
	AgentRef string

	// Observer streams completed cases as they finish.
	Observer Observer
}

// Runner executes suites in-process.
type Runner struct {
	cfg Config
	log log.Logger
}

// NewRunner validates the config and builds a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Graders == nil {
		return nil, fmt.Errorf("grader registry is required")
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Runner{
		cfg: cfg,
		log: cfg.Log.New("component", "runner"),
	}, nil
}

// Concurrency reports the configured concurrency limit.
func (r *Runner) Concurrency() int {
	return r.cfg.Concurrency
}

// RunSuite executes every case in the suite and returns a complete run:
// exactly one result per case, in declared order. Case-level failures and
// timeouts are encoded in their results; cancellation marks the unresolved
// remainder as cancelled.
func (r *Runner) RunSuite(ctx context.Context, suite *types.Suite, ag agent.Agent, opts RunOptions) (*types.Run, error) {
	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = types.NewRunID()
	}
	agentRef := opts.AgentRef
	if agentRef == "" {
		agentRef = suite.AgentRef
	}

	start := time.Now()
	r.log.Info("Starting suite run",
		"run", runID, "suite", suite.Name, "cases", len(suite.Cases), "concurrency", r.cfg.Concurrency)

	var results []types.CaseResult
	if r.cfg.Concurrency == 1 {
		results = r.runSequential(ctx, suite, ag, opts.Observer)
	} else {
		results = r.runParallel(ctx, suite, ag, opts.Observer)
	}

	for i := range results {
		if results[i].Status == "" {
			results[i] = cancelledResult(suite.Cases[i].Name)
		}
		metrics.RecordCaseResult(suite.Name, results[i].Status)
	}

	run := &types.Run{
		ID:        runID,
		Suite:     suite.Name,
		AgentRef:  agentRef,
		Results:   results,
		Summary:   types.Summarize(results),
		CreatedAt: time.Now().UTC(),
	}
	metrics.RecordRun(suite.Name, "local", run.Summary.PassRate)

	r.log.Info("Suite run complete",
		"run", runID, "suite", suite.Name,
		"passed", run.Summary.Passed, "failed", run.Summary.Failed,
		"duration", time.Since(start))
	return run, nil
}

func (r *Runner) runSequential(ctx context.Context, suite *types.Suite, ag agent.Agent, observer Observer) []types.CaseResult {
	results := make([]types.CaseResult, len(suite.Cases))
	for i, c := range suite.Cases {
		if ctx.Err() != nil {
			break
		}
		results[i] = r.RunCase(ctx, c, ag)
		if observer != nil {
			observer(i, results[i])
		}
	}
	return results
}

// RunCase executes one case: invoke the agent under a deadline, grade the
// output, and fold any failure into the returned result. It never returns an
// error; the result's status carries the outcome.
func (r *Runner) RunCase(ctx context.Context, c types.Case, ag agent.Agent) types.CaseResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	start := time.Now()
	agentRes, err := invokeWithDeadline(ctx, ag, c.Input, timeout)
	elapsedMS := time.Since(start).Milliseconds()

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			r.log.Warn("Case timed out", "case", c.Name, "timeout", timeout)
			return types.CaseResult{
				CaseName:  c.Name,
				Status:    types.CaseStatusTimeout,
				Details:   map[string]any{"error": fmt.Sprintf("agent call timed out after %s", timeout)},
				LatencyMS: timeout.Milliseconds(),
			}
		case ctx.Err() != nil:
			return cancelledResult(c.Name)
		default:
			r.log.Warn("Agent invocation failed", "case", c.Name, "err", err)
			return types.CaseResult{
				CaseName:  c.Name,
				Status:    types.CaseStatusError,
				Details:   map[string]any{"error": fmt.Sprintf("agent error: %v", err)},
				LatencyMS: elapsedMS,
			}
		}
	}
	if agentRes.LatencyMS == 0 {
		agentRes.LatencyMS = elapsedMS
	}

	graderName := c.Grader
	if graderName == "" {
		graderName = DefaultGrader
	}
	g, err := r.cfg.Graders.Resolve(graderName, c.GraderConfig)
	if err != nil {
		return gradeErrorResult(c.Name, agentRes, err)
	}
	gradeRes, err := g.Grade(&c, agentRes)
	if err != nil {
		return gradeErrorResult(c.Name, agentRes, err)
	}

	status := types.CaseStatusFail
	if gradeRes.Passed {
		status = types.CaseStatusPass
	}
	return types.CaseResult{
		CaseName:    c.Name,
		Status:      status,
		Passed:      gradeRes.Passed,
		Score:       gradeRes.Score,
		Details:     map[string]any{"reason": gradeRes.Reason},
		AgentOutput: agentRes.Output,
		ToolCalls:   agentRes.ToolCalls,
		TokensIn:    agentRes.TokensIn,
		TokensOut:   agentRes.TokensOut,
		CostUSD:     agentRes.CostUSD,
		LatencyMS:   agentRes.LatencyMS,
	}
}

type invokeOutcome struct {
	res *types.AgentResult
	err error
}

// invokeWithDeadline calls the agent in its own goroutine so a subject that
// ignores context cancellation cannot block sibling cases past the deadline.
// On timeout the invocation goroutine is abandoned.
func invokeWithDeadline(ctx context.Context, ag agent.Agent, input string, timeout time.Duration) (*types.AgentResult, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- invokeOutcome{err: fmt.Errorf("agent panicked: %v", rec)}
			}
		}()
		res, err := ag.Invoke(cctx, input)
		done <- invokeOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.res == nil {
			return nil, fmt.Errorf("agent returned no result")
		}
		return out.res, nil
	case <-cctx.Done():
		return nil, cctx.Err()
	}
}

func cancelledResult(caseName string) types.CaseResult {
	return types.CaseResult{
		CaseName: caseName,
		Status:   types.CaseStatusCancelled,
		Details:  map[string]any{"error": "run cancelled before case completed"},
	}
}

func gradeErrorResult(caseName string, agentRes *types.AgentResult, err error) types.CaseResult {
	return types.CaseResult{
		CaseName:    caseName,
		Status:      types.CaseStatusError,
		Details:     map[string]any{"error": fmt.Sprintf("grader error: %v", err)},
		AgentOutput: agentRes.Output,
		ToolCalls:   agentRes.ToolCalls,
		TokensIn:    agentRes.TokensIn,
		TokensOut:   agentRes.TokensOut,
		CostUSD:     agentRes.CostUSD,
		LatencyMS:   agentRes.LatencyMS,
	}
}
