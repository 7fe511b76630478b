package gauntlet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlet-eval/gauntlet/broker"
	"github.com/gauntlet-eval/gauntlet/store"
	"github.com/gauntlet-eval/gauntlet/types"
)

const echoSuiteYAML = `
name: echo-smoke
agent: echo
defaults:
  grader: exact
  timeout: 5s
cases:
  - name: greet
    input: "hello"
    expected:
      output: "hello"
  - name: number
    input: "42"
    expected:
      output: "42"
  - name: tagged
    input: "only-sometimes"
    expected:
      output: "only-sometimes"
    tags: [slow]
`

func writeSuite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(echoSuiteYAML), 0644))
	return path
}

func newService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	cfg := &Config{
		SuiteFile:   writeSuite(t),
		Concurrency: 2,
		Timeout:     5 * time.Second,
		StorePath:   filepath.Join(t.TempDir(), "runs.db"),
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServiceRunSuiteLocal(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	run, err := s.RunSuite(ctx)
	require.NoError(t, err)

	require.Len(t, run.Results, 3)
	assert.Equal(t, "echo-smoke", run.Suite)
	assert.Equal(t, "echo", run.AgentRef)
	assert.Equal(t, 3, run.Summary.Passed)

	// The run was persisted.
	stored, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, stored.ID)
	assert.Len(t, stored.Results, 3)
}

func TestServiceTagFilter(t *testing.T) {
	s := newService(t, func(cfg *Config) {
		cfg.Tags = []string{"slow"}
	})

	run, err := s.RunSuite(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "tagged", run.Results[0].CaseName)
}

func TestServiceTagFilterNoMatch(t *testing.T) {
	s := newService(t, func(cfg *Config) {
		cfg.Tags = []string{"no-such-tag"}
	})
	_, err := s.RunSuite(context.Background())
	require.ErrorContains(t, err, "no cases match")
}

func TestServiceUnknownAgent(t *testing.T) {
	s := newService(t, func(cfg *Config) {
		cfg.AgentRef = "not-an-agent"
	})
	_, err := s.RunSuite(context.Background())
	require.ErrorContains(t, err, "unknown agent")
	assert.True(t, IsInvocationError(err))
}

func TestServiceListAndCompare(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		run, err := s.RunSuite(ctx)
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx, store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 4)

	report, err := s.Compare(ctx, ids[:2], ids[2:], 0.05, 0.0)
	require.NoError(t, err)
	assert.Equal(t, "0 improved, 0 regressed, 3 unchanged", report.SummaryLine())
}

func TestServiceCompareMissingRun(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Compare(context.Background(), []string{"missing"}, nil, 0.05, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceWithoutStore(t *testing.T) {
	s := newService(t, func(cfg *Config) {
		cfg.StorePath = ""
	})
	run, err := s.RunSuite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, run.Summary.Passed)

	_, err = s.ListRuns(context.Background(), store.ListFilter{})
	require.ErrorContains(t, err, "no store configured")
}

func TestServiceWorkersRequireBroker(t *testing.T) {
	s := newService(t, nil)
	_, err := s.ListWorkers(context.Background())
	require.ErrorContains(t, err, "no broker configured")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Config{})
	require.ErrorContains(t, err, "suite file is required")

	_, err = New(&Config{SuiteFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.ErrorContains(t, err, "failed to create registry")
}

func TestErrorKinds(t *testing.T) {
	rt := NewRuntimeError(fmt.Errorf("broker down"))
	assert.True(t, IsRuntimeError(rt))
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", rt)))
	assert.False(t, IsFailureError(rt))
	assert.Contains(t, rt.Error(), "broker down")
	assert.Equal(t, "broker down", errors.Unwrap(rt).Error())

	fe := NewFailureError("2 cases failed")
	assert.True(t, IsFailureError(fe))
	assert.True(t, IsFailureError(fmt.Errorf("wrapped: %w", fe)))
	assert.False(t, IsRuntimeError(fe))
	assert.Contains(t, fe.Error(), "2 cases failed")

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsFailureError(nil))
}

func TestRunResultsFollowDeclaredOrder(t *testing.T) {
	s := newService(t, nil)
	run, err := s.RunSuite(context.Background())
	require.NoError(t, err)

	want := []string{"greet", "number", "tagged"}
	for i, res := range run.Results {
		assert.Equal(t, want[i], res.CaseName)
		assert.Equal(t, types.CaseStatusPass, res.Status)
	}
}

func TestRunSuiteWaitBudgetRecovery(t *testing.T) {
	srv := miniredis.RunT(t)

	// One live heartbeat with nothing consuming tasks: collection exhausts
	// its budget and the local fallback finishes the run.
	hb := broker.NewRedisQueueFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), nil)
	defer hb.Close()
	require.NoError(t, hb.PublishHeartbeat(context.Background(), "ghost", time.Minute))

	s := newService(t, func(cfg *Config) {
		cfg.BrokerURL = "redis://" + srv.Addr()
		cfg.WaitBudget = 200 * time.Millisecond
	})

	run, err := s.RunSuite(context.Background())
	require.Error(t, err)
	assert.True(t, IsDistributionTimeoutError(err))

	require.NotNil(t, run)
	require.Len(t, run.Results, 3)
	assert.Equal(t, 3, run.Summary.Passed)

	// The recovered run was still persisted.
	stored, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Results, 3)
}

func TestNewMapsUnreachableBroker(t *testing.T) {
	path := writeSuite(t)
	_, err := New(&Config{
		SuiteFile: path,
		BrokerURL: "redis://127.0.0.1:1", // nothing listens here
	})
	require.Error(t, err)
	assert.True(t, IsBrokerUnavailableError(err))
}
