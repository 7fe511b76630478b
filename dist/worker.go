// Package dist implements the distributed execution mode: a coordinator that
// fans a suite out over a broker queue, and workers that consume tasks and
// push results back. Workers announce liveness through TTL'd heartbeats;
// there is no redelivery, so a task lost with its worker is recovered by the
// coordinator's wait-budget fallback rather than by the broker.
package dist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/broker"
	"github.com/gauntlet-eval/gauntlet/metrics"
	"github.com/gauntlet-eval/gauntlet/runner"
	"github.com/gauntlet-eval/gauntlet/types"
)

const (
	// DefaultWorkerConcurrency bounds tasks processed at once per worker.
	DefaultWorkerConcurrency = 4

	// heartbeatDivisor sets how many heartbeats fit in one TTL window.
	heartbeatDivisor = 3
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Log    log.Logger
	Queue  broker.Queue
	Agents *agent.Registry
	Runner *runner.Runner

	// AgentConfig is handed to the agent factory when a task's agent
	// reference is resolved, e.g. the http agent's "url".
	AgentConfig map[string]any

	// ID identifies the worker in heartbeats. Generated when empty.
	ID string

	// Concurrency bounds tasks processed simultaneously.
	Concurrency int

	// HeartbeatTTL is the liveness window published with each heartbeat.
	HeartbeatTTL time.Duration

	// PollPeriod bounds each blocking pop so shutdown stays responsive.
	PollPeriod time.Duration
}

// Worker consumes tasks from the shared queue, executes them, and pushes one
// result per dequeued task back onto the task's run-scoped result queue.
type Worker struct {
	cfg WorkerConfig
	log log.Logger
	id  string
}

// NewWorker validates the config and builds a worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("broker queue is required")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("agent registry is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = broker.DefaultWorkerTTL
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = broker.DefaultPollPeriod
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Worker{
		cfg: cfg,
		log: cfg.Log.New("component", "worker", "worker", id),
		id:  id,
	}, nil
}

// ID returns the worker's identifier.
func (w *Worker) ID() string {
	return w.id
}

// Run consumes tasks until the context is cancelled. It publishes heartbeats
// independently of the consume loop so a worker saturated with slow cases
// still appears live. In-flight tasks are drained before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.cfg.Queue.Ping(ctx); err != nil {
		return fmt.Errorf("worker %s: broker unreachable: %w", w.id, err)
	}

	w.log.Info("Worker starting", "concurrency", w.cfg.Concurrency, "heartbeat_ttl", w.cfg.HeartbeatTTL)
	w.publishHeartbeat(ctx)

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go w.heartbeatLoop(hbCtx)

	p := pool.New().WithMaxGoroutines(w.cfg.Concurrency)
	for {
		if ctx.Err() != nil {
			break
		}
		payload, err := w.cfg.Queue.BlockingPop(ctx, broker.TaskQueueKey(), w.cfg.PollPeriod)
		if err != nil {
			if errors.Is(err, broker.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			metrics.RecordBrokerError("pop")
			w.log.Error("Task pop failed", "err", err)
			// Back off so a dead broker does not spin the loop.
			select {
			case <-time.After(w.cfg.PollPeriod):
			case <-ctx.Done():
			}
			continue
		}
		task := payload
		p.Go(func() {
			w.processTask(ctx, task)
		})
	}

	w.log.Info("Worker draining in-flight tasks")
	p.Wait()
	w.log.Info("Worker stopped")
	return nil
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatTTL / heartbeatDivisor)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.publishHeartbeat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) publishHeartbeat(ctx context.Context) {
	if err := w.cfg.Queue.PublishHeartbeat(ctx, w.id, w.cfg.HeartbeatTTL); err != nil {
		if ctx.Err() == nil {
			metrics.RecordBrokerError("heartbeat")
			w.log.Warn("Heartbeat publish failed", "err", err)
		}
	}
}

// processTask executes one dequeued task. Every decodable task produces
// exactly one result message; a task that cannot even be decoded is logged
// and dropped, since it names no run to report to.
func (w *Worker) processTask(ctx context.Context, payload []byte) {
	task, err := types.DecodeTask(payload)
	if err != nil {
		w.log.Error("Discarding malformed task", "err", err)
		return
	}
	lg := w.log.New("run", task.RunID, "case", task.Case.Name)

	var result types.CaseResult
	ag, err := w.cfg.Agents.Resolve(task.AgentRef, w.cfg.AgentConfig)
	if err != nil {
		lg.Error("Agent resolution failed", "agent", task.AgentRef, "err", err)
		result = types.CaseResult{
			CaseName: task.Case.Name,
			Status:   types.CaseStatusError,
			Details:  map[string]any{"error": fmt.Sprintf("worker cannot resolve agent %q: %v", task.AgentRef, err)},
		}
	} else {
		c := task.Case
		if t := task.Timeout(); t > 0 {
			c.Timeout = t
		}
		result = w.cfg.Runner.RunCase(ctx, c, ag)
	}

	metrics.RecordWorkerTask(w.id, result.Status)
	w.pushResult(ctx, task.RunID, result)
}

func (w *Worker) pushResult(ctx context.Context, runID string, result types.CaseResult) {
	payload, err := types.EncodeResult(&types.ResultMessage{RunID: runID, Result: result})
	if err != nil {
		w.log.Error("Result encode failed", "run", runID, "case", result.CaseName, "err", err)
		return
	}
	// Push with a fresh context so a result for completed work still lands
	// during shutdown.
	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.cfg.Queue.Push(pctx, broker.ResultQueueKey(runID), payload); err != nil {
		metrics.RecordBrokerError("push")
		w.log.Error("Result push failed", "run", runID, "case", result.CaseName, "err", err)
		return
	}
	w.log.Debug("Result pushed", "run", runID, "case", result.CaseName, "status", result.Status)
}
