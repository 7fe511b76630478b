package dist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/broker"
	"github.com/gauntlet-eval/gauntlet/metrics"
	"github.com/gauntlet-eval/gauntlet/runner"
	"github.com/gauntlet-eval/gauntlet/types"
)

const (
	// DefaultWaitBudget bounds how long a coordinator waits for remote
	// results before finishing stragglers locally.
	DefaultWaitBudget = 300 * time.Second

	// DefaultCollectPoll bounds each blocking pop while collecting.
	DefaultCollectPoll = 5 * time.Second
)

// ErrWaitBudgetExceeded marks a run whose remote collection ran out of wait
// budget. The run returned alongside it is still complete: every unresolved
// case was executed locally.
var ErrWaitBudgetExceeded = errors.New("wait budget exceeded")

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Log   log.Logger
	Queue broker.Queue

	// Local executes fallback cases in-process.
	Local *runner.Runner

	// WaitBudget is the total time allowed for remote result collection.
	WaitBudget time.Duration

	// PollPeriod bounds each blocking pop on the result queue.
	PollPeriod time.Duration

	// CaseTimeout is stamped onto dispatched tasks when a case carries no
	// timeout of its own.
	CaseTimeout time.Duration
}

// Coordinator fans a suite out to remote workers and assembles the run. A
// case is resolved by the first result committed for it; anything still
// unresolved when the wait budget expires is executed locally, so the run
// always completes with one result per case.
type Coordinator struct {
	cfg CoordinatorConfig
	log log.Logger
}

// NewCoordinator validates the config and builds a coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("broker queue is required")
	}
	if cfg.Local == nil {
		return nil, fmt.Errorf("local runner is required")
	}
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = DefaultWaitBudget
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = DefaultCollectPoll
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &Coordinator{
		cfg: cfg,
		log: cfg.Log.New("component", "coordinator"),
	}, nil
}

// ListWorkers returns the IDs of workers with live heartbeats.
func (c *Coordinator) ListWorkers(ctx context.Context) ([]string, error) {
	return c.cfg.Queue.ListLive(ctx)
}

// Distribute runs the suite across live workers. localAgent is used whenever
// execution falls back in-process: for the whole suite when no workers are
// live, or for the unresolved remainder when the wait budget expires. In the
// latter case the returned run is still complete and the error wraps
// ErrWaitBudgetExceeded so callers can tell recovery happened.
func (c *Coordinator) Distribute(ctx context.Context, suite *types.Suite, localAgent agent.Agent, opts runner.RunOptions) (*types.Run, error) {
	if err := suite.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	if err := c.cfg.Queue.Ping(ctx); err != nil {
		return nil, fmt.Errorf("broker unreachable: %w", err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = types.NewRunID()
	}
	agentRef := opts.AgentRef
	if agentRef == "" {
		agentRef = suite.AgentRef
	}

	workers, err := c.cfg.Queue.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	if len(workers) == 0 {
		c.log.Warn("No live workers, running suite locally", "run", runID, "suite", suite.Name)
		opts.RunID = runID
		opts.AgentRef = agentRef
		return c.cfg.Local.RunSuite(ctx, suite, localAgent, opts)
	}

	c.log.Info("Distributing suite",
		"run", runID, "suite", suite.Name, "cases", len(suite.Cases), "workers", len(workers))

	if err := c.dispatch(ctx, runID, agentRef, suite); err != nil {
		return nil, err
	}

	results, recovered := c.collect(ctx, runID, suite, localAgent, opts.Observer)

	run := &types.Run{
		ID:        runID,
		Suite:     suite.Name,
		AgentRef:  agentRef,
		Results:   results,
		Summary:   types.Summarize(results),
		CreatedAt: time.Now().UTC(),
	}
	metrics.RecordRun(suite.Name, "distributed", run.Summary.PassRate)

	c.log.Info("Distributed run complete",
		"run", runID, "suite", suite.Name,
		"passed", run.Summary.Passed, "failed", run.Summary.Failed, "recovered", recovered)
	if recovered > 0 {
		return run, fmt.Errorf("%w: %d of %d cases recovered locally",
			ErrWaitBudgetExceeded, recovered, len(suite.Cases))
	}
	return run, nil
}

func (c *Coordinator) dispatch(ctx context.Context, runID, agentRef string, suite *types.Suite) error {
	for i := range suite.Cases {
		cs := suite.Cases[i]
		timeout := cs.Timeout
		if timeout <= 0 {
			timeout = c.cfg.CaseTimeout
		}
		payload, err := types.EncodeTask(&types.TaskMessage{
			RunID:          runID,
			AgentRef:       agentRef,
			Case:           cs,
			TimeoutSeconds: timeout.Seconds(),
			Attempt:        1,
		})
		if err != nil {
			return fmt.Errorf("encoding task for case %q: %w", cs.Name, err)
		}
		if err := c.cfg.Queue.Push(ctx, broker.TaskQueueKey(), payload); err != nil {
			metrics.RecordBrokerError("push")
			return fmt.Errorf("dispatching case %q: %w", cs.Name, err)
		}
	}
	return nil
}

// collect drains the run's result queue until every case is resolved, the
// wait budget expires, or the context is cancelled. The first committed
// result for a case wins; later duplicates are discarded. It reports how many
// cases had to be recovered by the local fallback.
func (c *Coordinator) collect(ctx context.Context, runID string, suite *types.Suite, localAgent agent.Agent, observer runner.Observer) ([]types.CaseResult, int) {
	indexByName := make(map[string]int, len(suite.Cases))
	for i, cs := range suite.Cases {
		indexByName[cs.Name] = i
	}
	results := make([]types.CaseResult, len(suite.Cases))
	committed := make([]bool, len(suite.Cases))
	remaining := len(suite.Cases)

	deadline := time.Now().Add(c.cfg.WaitBudget)
	resultKey := broker.ResultQueueKey(runID)

	for remaining > 0 {
		if ctx.Err() != nil {
			c.markCancelled(suite, results, committed)
			return results, 0
		}
		budget := time.Until(deadline)
		if budget <= 0 {
			break
		}
		poll := c.cfg.PollPeriod
		if budget < poll {
			poll = budget
		}

		payload, err := c.cfg.Queue.BlockingPop(ctx, resultKey, poll)
		if err != nil {
			if errors.Is(err, broker.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				c.markCancelled(suite, results, committed)
				return results, 0
			}
			metrics.RecordBrokerError("pop")
			c.log.Error("Result pop failed", "run", runID, "err", err)
			// Back off so a dead broker does not spin the loop for the
			// rest of the budget.
			select {
			case <-time.After(poll):
			case <-ctx.Done():
			}
			continue
		}

		msg, err := types.DecodeResult(payload)
		if err != nil {
			c.log.Warn("Discarding malformed result", "run", runID, "err", err)
			continue
		}
		if msg.RunID != runID {
			c.log.Warn("Discarding result for foreign run", "run", runID, "got", msg.RunID)
			continue
		}
		idx, ok := indexByName[msg.Result.CaseName]
		if !ok {
			c.log.Warn("Discarding result for unknown case", "run", runID, "case", msg.Result.CaseName)
			continue
		}
		if committed[idx] {
			c.log.Warn("Discarding duplicate result", "run", runID, "case", msg.Result.CaseName)
			continue
		}

		results[idx] = msg.Result
		committed[idx] = true
		remaining--
		metrics.RecordCaseResult(suite.Name, msg.Result.Status)
		if observer != nil {
			observer(idx, msg.Result)
		}
	}

	if remaining > 0 {
		c.log.Warn("Wait budget expired, finishing stragglers locally",
			"run", runID, "suite", suite.Name, "remaining", remaining, "budget", c.cfg.WaitBudget)
		c.runFallback(ctx, suite, results, committed, localAgent, observer)
	}
	return results, remaining
}

// runFallback executes every uncommitted case in-process, in declared order.
// Late remote results for these cases are simply never popped again.
func (c *Coordinator) runFallback(ctx context.Context, suite *types.Suite, results []types.CaseResult, committed []bool, localAgent agent.Agent, observer runner.Observer) {
	for i := range suite.Cases {
		if committed[i] {
			continue
		}
		if ctx.Err() != nil {
			results[i] = types.CaseResult{
				CaseName: suite.Cases[i].Name,
				Status:   types.CaseStatusCancelled,
				Details:  map[string]any{"error": "run cancelled before case completed"},
			}
			committed[i] = true
			continue
		}
		results[i] = c.cfg.Local.RunCase(ctx, suite.Cases[i], localAgent)
		committed[i] = true
		metrics.RecordCaseResult(suite.Name, results[i].Status)
		if observer != nil {
			observer(i, results[i])
		}
	}
}

func (c *Coordinator) markCancelled(suite *types.Suite, results []types.CaseResult, committed []bool) {
	for i := range suite.Cases {
		if committed[i] {
			continue
		}
		results[i] = types.CaseResult{
			CaseName: suite.Cases[i].Name,
			Status:   types.CaseStatusCancelled,
			Details:  map[string]any{"error": "run cancelled before case completed"},
		}
	}
}
