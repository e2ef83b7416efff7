// Package ratelimit is the cross-session budget for external provider calls.
// Counters are fixed windows, kept either in process with atomics or in Redis
// when several instances share one provider quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/apperr"
)

// Counter increments the hit count of key inside the window starting at start.
type Counter interface {
	Incr(ctx context.Context, key string, start time.Time, window time.Duration) (int64, error)
}

// Limiter enforces per-provider call limits.
type Limiter struct {
	window  time.Duration
	limits  map[string]int
	counter Counter
	now     func() time.Time
}

// New builds a limiter; a nil counter means in-process counting.
func New(window time.Duration, counter Counter) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if counter == nil {
		counter = NewLocal()
	}
	return &Limiter{window: window, limits: map[string]int{}, counter: counter, now: time.Now}
}

// FromConfig wires the configured limits for the given search and LLM provider names.
func FromConfig(cfg config.RateLimitConfig, rdb redis.UniversalClient, searchProviders, llmProviders []string) *Limiter {
	var counter Counter
	if cfg.Shared && rdb != nil {
		counter = NewRedis(rdb, "sentiscope:ratelimit")
	}
	l := New(cfg.Window, counter)
	for _, name := range searchProviders {
		l.SetLimit(name, cfg.SearchPerMin)
	}
	for _, name := range llmProviders {
		l.SetLimit(name, cfg.LLMPerMin)
	}
	for name, n := range cfg.Overrides {
		l.SetLimit(name, n)
	}
	return l
}

// SetLimit sets the per-window budget for key; n <= 0 removes the limit.
// Not safe to call once the limiter is in use.
func (l *Limiter) SetLimit(key string, n int) {
	if n <= 0 {
		delete(l.limits, key)
		return
	}
	l.limits[key] = n
}

// Take charges one call to key, returning a RateLimitError when the window is spent.
func (l *Limiter) Take(ctx context.Context, key string) error {
	limit, ok := l.limits[key]
	if !ok {
		return nil
	}
	now := l.now()
	start := now.Truncate(l.window)
	n, err := l.counter.Incr(ctx, key, start, l.window)
	if err != nil {
		// a broken shared counter must not stall every session
		return nil
	}
	if n > int64(limit) {
		return &apperr.RateLimitError{Provider: key, RetryAfter: start.Add(l.window).Sub(now)}
	}
	return nil
}

type window struct {
	start int64
	count atomic.Int64
}

// Local counts in process memory.
type Local struct {
	windows sync.Map // key -> *atomic.Pointer[window]
}

func NewLocal() *Local { return &Local{} }

func (c *Local) Incr(_ context.Context, key string, start time.Time, _ time.Duration) (int64, error) {
	v, _ := c.windows.LoadOrStore(key, &atomic.Pointer[window]{})
	cur := v.(*atomic.Pointer[window])
	idx := start.UnixNano()
	for {
		w := cur.Load()
		if w != nil && w.start >= idx {
			return w.count.Add(1), nil
		}
		next := &window{start: idx}
		next.count.Store(1)
		if cur.CompareAndSwap(w, next) {
			return 1, nil
		}
	}
}

// Redis counts with INCR on a key per window so several instances share one budget.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (c *Redis) Incr(ctx context.Context, key string, start time.Time, window time.Duration) (int64, error) {
	k := fmt.Sprintf("%s:%s:%d", c.prefix, key, start.Unix())
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, window+time.Second)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ratelimit incr %s: %w", k, err)
	}
	return incr.Val(), nil
}
