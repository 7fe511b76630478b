package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"

	"github.com/gauntlet-eval/gauntlet/types"
)

// RedisQueue implements Queue on a Redis list per queue key (LPUSH/BRPOP)
// and a SETEX key per worker heartbeat, holding a JSON WorkerHeartbeat so an
// operator inspecting the key sees who published it and when.
type RedisQueue struct {
	client redis.UniversalClient
	log    log.Logger
}

// NewRedisQueue connects to Redis at the given URL and verifies the
// connection before returning.
func NewRedisQueue(url string, logger log.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}
	q := NewRedisQueueFromClient(redis.NewClient(opts), logger)
	if err := q.Ping(context.Background()); err != nil {
		return nil, err
	}
	return q, nil
}

// NewRedisQueueFromClient wraps an existing client, for tests and callers
// that manage their own connection.
func NewRedisQueueFromClient(client redis.UniversalClient, logger log.Logger) *RedisQueue {
	if logger == nil {
		logger = log.New()
	}
	return &RedisQueue{client: client, log: logger.New("component", "redis-queue")}
}

func (q *RedisQueue) Push(ctx context.Context, key string, payload []byte) error {
	if err := q.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("%w: push %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (q *RedisQueue) BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: pop %s: %v", ErrUnavailable, key, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

func (q *RedisQueue) PublishHeartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	payload, err := json.Marshal(types.WorkerHeartbeat{
		WorkerID:   workerID,
		LastSeen:   time.Now().UTC(),
		TTLSeconds: ttl.Seconds(),
	})
	if err != nil {
		return fmt.Errorf("encoding heartbeat for %s: %w", workerID, err)
	}
	if err := q.client.SetEx(ctx, workerKey(workerID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: heartbeat %s: %v", ErrUnavailable, workerID, err)
	}
	return nil
}

func (q *RedisQueue) ListLive(ctx context.Context) ([]string, error) {
	var (
		workers []string
		cursor  uint64
	)
	for {
		keys, next, err := q.client.Scan(ctx, cursor, workerKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan workers: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			workers = append(workers, strings.TrimPrefix(key, workerKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return workers, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
