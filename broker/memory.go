package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for tests and single-host runs. It
// mirrors the Redis implementation's semantics: FIFO per key, destructive
// pop, TTL'd heartbeats.
type MemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[string][][]byte
	beats  map[string]time.Time
}

// NewMemoryQueue returns an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		queues: make(map[string][][]byte),
		beats:  make(map[string]time.Time),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Push(ctx context.Context, key string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[key] = append(q.queues[key], payload)
	q.cond.Broadcast()
	return nil
}

func (q *MemoryQueue) BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if items := q.queues[key]; len(items) > 0 {
			head := items[0]
			q.queues[key] = items[1:]
			return head, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}

		// Wake on push, deadline, or context cancellation.
		timer := time.AfterFunc(remaining, q.cond.Broadcast)
		stop := context.AfterFunc(ctx, q.cond.Broadcast)
		q.cond.Wait()
		timer.Stop()
		stop()
	}
}

func (q *MemoryQueue) PublishHeartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.beats[workerID] = time.Now().Add(ttl)
	return nil
}

func (q *MemoryQueue) ListLive(ctx context.Context) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var live []string
	for id, expiry := range q.beats {
		if expiry.After(now) {
			live = append(live, id)
		} else {
			delete(q.beats, id)
		}
	}
	return live, nil
}

func (q *MemoryQueue) Ping(ctx context.Context) error {
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// Len reports the number of queued messages under key, for tests.
func (q *MemoryQueue) Len(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[key])
}
