package limiter

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const slotKey = "jobs:split:inflight"

// slotTTL guards against leaked slots when a worker dies mid-job.
const slotTTL = 30 * time.Minute

// Inflight caps how many split jobs run at once across all service
// replicas, backed by a shared Redis counter.
type Inflight struct {
	rdb      *redis.Client
	maxSlots int
	backoff  time.Duration
}

type Options struct {
	RedisURL string
	MaxSlots int
	Backoff  time.Duration
}

func New(opts Options) (*Inflight, error) {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = 4
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(ro)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &Inflight{rdb: c, maxSlots: opts.MaxSlots, backoff: opts.Backoff}, nil
}

// Acquire blocks until a slot is free or the context is done.
func (l *Inflight) Acquire(ctx context.Context) error {
	for {
		n, err := l.rdb.Incr(ctx, slotKey).Result()
		if err != nil {
			return err
		}
		if n == 1 {
			_ = l.rdb.Expire(ctx, slotKey, slotTTL).Err()
		}
		if n <= int64(l.maxSlots) {
			return nil
		}
		// over capacity: give the slot back and wait
		_ = l.rdb.Decr(ctx, slotKey).Err()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

// Release frees a previously acquired slot.
func (l *Inflight) Release(ctx context.Context) {
	if n, err := l.rdb.Decr(ctx, slotKey).Result(); err == nil && n < 0 {
		_ = l.rdb.Set(ctx, slotKey, 0, slotTTL).Err()
	}
}

func (l *Inflight) Close() error { return l.rdb.Close() }
