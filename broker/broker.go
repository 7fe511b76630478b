// Package broker abstracts the queue used to hand tasks to remote workers
// and collect their results: a blocking FIFO plus a TTL'd membership set for
// worker heartbeats. Messages are consumed destructively by exactly one
// consumer; the broker provides no redelivery.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by BlockingPop when the poll window elapses with no
// message available. It is a normal outcome, not a failure.
var ErrEmpty = errors.New("broker: queue empty")

// ErrUnavailable wraps connectivity failures to the backing broker.
var ErrUnavailable = errors.New("broker: unavailable")

const (
	taskQueueKey      = "gauntlet:tasks"
	resultKeyPrefix   = "gauntlet:results:"
	workerKeyPrefix   = "gauntlet:worker:"
	DefaultWorkerTTL  = 60 * time.Second
	DefaultPollPeriod = 2 * time.Second
)

// Queue is the broker contract consumed by the coordinator and workers.
type Queue interface {
	// Push appends a message to the queue under key.
	Push(ctx context.Context, key string, payload []byte) error

	// BlockingPop removes and returns the oldest message under key,
	// waiting up to timeout. ErrEmpty signals an elapsed wait.
	BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)

	// PublishHeartbeat refreshes the worker's liveness key with the given TTL.
	PublishHeartbeat(ctx context.Context, workerID string, ttl time.Duration) error

	// ListLive returns the IDs of workers with unexpired heartbeats.
	ListLive(ctx context.Context) ([]string, error)

	// Ping verifies connectivity to the broker.
	Ping(ctx context.Context) error

	Close() error
}

// TaskQueueKey returns the shared queue all workers consume tasks from.
func TaskQueueKey() string {
	return taskQueueKey
}

// ResultQueueKey returns the run-scoped queue a coordinator collects from.
func ResultQueueKey(runID string) string {
	return resultKeyPrefix + runID
}

func workerKey(workerID string) string {
	return workerKeyPrefix + workerID
}
