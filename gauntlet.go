// Package gauntlet wires the evaluation engine together: suite loading,
// local or distributed execution, persistence, and comparison.
package gauntlet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/gauntlet-eval/gauntlet/agent"
	"github.com/gauntlet-eval/gauntlet/broker"
	"github.com/gauntlet-eval/gauntlet/dist"
	"github.com/gauntlet-eval/gauntlet/grader"
	"github.com/gauntlet-eval/gauntlet/registry"
	"github.com/gauntlet-eval/gauntlet/runner"
	"github.com/gauntlet-eval/gauntlet/stats"
	"github.com/gauntlet-eval/gauntlet/store"
	"github.com/gauntlet-eval/gauntlet/types"
)

// Service is the assembled evaluation engine.
type Service struct {
	config   *Config
	log      log.Logger
	agents   *agent.Registry
	graders  *grader.Registry
	registry *registry.Registry
	runner   *runner.Runner
	queue    broker.Queue
	coord    *dist.Coordinator
	store    store.Store
}

// New builds a service from the config. Distributed mode is enabled by a
// non-empty broker URL; everything else runs in-process.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	logger := cfg.Log

	graders := grader.DefaultRegistry()
	agents := agent.DefaultRegistry()

	reg, err := registry.NewRegistry(registry.Config{
		Log:            logger,
		SuiteFile:      cfg.SuiteFile,
		DefaultTimeout: cfg.Timeout,
		Graders:        graders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	localRunner, err := runner.NewRunner(runner.Config{
		Log:         logger,
		Graders:     graders,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	s := &Service{
		config:   cfg,
		log:      logger,
		agents:   agents,
		graders:  graders,
		registry: reg,
		runner:   localRunner,
	}

	if cfg.BrokerURL != "" {
		queue, err := broker.NewRedisQueue(cfg.BrokerURL, logger)
		if err != nil {
			if errors.Is(err, broker.ErrUnavailable) {
				return nil, NewBrokerUnavailableError(err)
			}
			return nil, fmt.Errorf("failed to connect broker: %w", err)
		}
		coord, err := dist.NewCoordinator(dist.CoordinatorConfig{
			Log:         logger,
			Queue:       queue,
			Local:       localRunner,
			WaitBudget:  cfg.WaitBudget,
			CaseTimeout: cfg.Timeout,
		})
		if err != nil {
			queue.Close()
			return nil, fmt.Errorf("failed to create coordinator: %w", err)
		}
		s.queue = queue
		s.coord = coord
	}

	if cfg.StorePath != "" {
		st, err := store.NewSQLiteStore(cfg.StorePath, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		s.store = st
	}

	return s, nil
}

// RunSuite executes the loaded suite once and persists the run. The returned
// run is complete even when cases failed; callers decide what a failure
// means for them. A DistributionTimeoutError accompanies a run whose remote
// collection timed out and was finished by the local fallback; the run
// itself is complete and persisted.
func (s *Service) RunSuite(ctx context.Context) (*types.Run, error) {
	suite := s.registry.Suite().Filtered(s.config.Tags)
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("no cases match tags %v in suite %q", s.config.Tags, suite.Name)
	}

	agentRef := s.config.AgentRef
	if agentRef == "" {
		agentRef = suite.AgentRef
	}
	ag, err := s.agents.Resolve(agentRef, s.config.AgentConfig)
	if err != nil {
		return nil, NewInvocationError(fmt.Errorf("resolving agent: %w", err))
	}

	opts := runner.RunOptions{AgentRef: agentRef}
	var run *types.Run
	var budgetErr error
	if s.coord != nil {
		run, err = s.coord.Distribute(ctx, suite, ag, opts)
		if err != nil && errors.Is(err, dist.ErrWaitBudgetExceeded) && run != nil {
			budgetErr = NewDistributionTimeoutError(err)
			err = nil
		}
	} else {
		run, err = s.runner.RunSuite(ctx, suite, ag, opts)
	}
	if err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			return nil, NewBrokerUnavailableError(err)
		}
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveRun(ctx, run); err != nil {
			// The run itself succeeded; surface the persistence failure
			// without discarding the results.
			s.log.Error("Failed to persist run", "run", run.ID, "err", err)
			return run, fmt.Errorf("persisting run %s: %w", run.ID, err)
		}
	}
	return run, budgetErr
}

// GetRun loads a stored run with its results.
func (s *Service) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	return s.store.GetRun(ctx, runID)
}

// ListRuns returns stored run headers, newest first.
func (s *Service) ListRuns(ctx context.Context, filter store.ListFilter) ([]*types.Run, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	return s.store.ListRuns(ctx, filter)
}

// Compare loads the named runs and tests target against base per case.
func (s *Service) Compare(ctx context.Context, baseIDs, targetIDs []string, alpha, threshold float64) (*stats.ComparisonReport, error) {
	if s.store == nil {
		return nil, errors.New("no store configured")
	}
	baseRuns, err := s.loadRuns(ctx, baseIDs)
	if err != nil {
		return nil, fmt.Errorf("loading base runs: %w", err)
	}
	targetRuns, err := s.loadRuns(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("loading target runs: %w", err)
	}
	return stats.CompareRuns(baseRuns, targetRuns, alpha, threshold), nil
}

// ListWorkers reports live workers in distributed mode.
func (s *Service) ListWorkers(ctx context.Context) ([]string, error) {
	if s.coord == nil {
		return nil, errors.New("no broker configured")
	}
	workers, err := s.coord.ListWorkers(ctx)
	if err != nil {
		if errors.Is(err, broker.ErrUnavailable) {
			return nil, NewBrokerUnavailableError(err)
		}
		return nil, err
	}
	return workers, nil
}

func (s *Service) loadRuns(ctx context.Context, ids []string) ([]*types.Run, error) {
	runs := make([]*types.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.store.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Close releases the broker connection and the store.
func (s *Service) Close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
