package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue is the remote-queue Progress Observer: it publishes
// PROGRESS/STARTED/FINISHED/ABORTED messages to a Redis list via RPUSH,
// the queue a separate consumer (dashboard, websocket bridge) drains.
type RedisQueue struct {
	client *redis.Client
	key    string

	mu          sync.Mutex
	counter     int64
	lastSample  time.Time
	lastCounter int64
}

// NewRedisQueue creates a remote-queue sink against addr, publishing to
// the given list key.
func NewRedisQueue(addr, key string) *RedisQueue {
	return &RedisQueue{
		client:     redis.NewClient(&redis.Options{Addr: addr}),
		key:        key,
		lastSample: time.Now(),
	}
}

func (r *RedisQueue) Item(ctx context.Context, snap Snapshot) {
	r.mu.Lock()
	r.counter++
	due := r.counter%100 == 0
	var speed float64
	if due {
		now := time.Now()
		elapsed := now.Sub(r.lastSample).Seconds()
		delta := r.counter - r.lastCounter
		if elapsed > 0 {
			speed = float64(delta) / elapsed
		}
		r.lastSample = now
		r.lastCounter = r.counter
	}
	r.mu.Unlock()

	if !due {
		return
	}
	r.publish(ctx, itemMessage(snap, speed))
}

func (r *RedisQueue) Lifecycle(ctx context.Context, event Lifecycle, snap Snapshot) {
	r.publish(ctx, lifecycleMessage(event, snap))
}

func (r *RedisQueue) publish(ctx context.Context, msg progressMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.client.RPush(ctx, r.key, b)
}

// Close closes the underlying Redis client.
func (r *RedisQueue) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("progress: close redis client: %w", err)
	}
	return nil
}
