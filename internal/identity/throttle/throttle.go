// Package throttle caps how many identity submissions one user may make per
// window. It sits in front of the verification flow; the flow itself allows
// unlimited resubmissions for a pending claim.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const keyPrefix = "identity:submit:"

// Redis is a fixed-window counter shared across instances.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

// Allow increments the key's counter and sets the window expiry on first use.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := keyPrefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, r.window)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decide(int(incr.Val()), r.limit, ttl.Val()), nil
}

func decide(count, limit int, remainingWindow time.Duration) Decision {
	if count > limit {
		return Decision{Allowed: false, RetryAfter: max(remainingWindow, 0)}
	}
	return Decision{Allowed: true, Remaining: limit - count}
}

// Memory is the single-instance fallback used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*memWindow
}

type memWindow struct {
	count   int
	resetAt time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, now: time.Now, windows: make(map[string]*memWindow)}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if len(m.windows) >= sweepThreshold {
		m.sweep(now)
	}
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memWindow{resetAt: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	return decide(w.count, m.limit, w.resetAt.Sub(now)), nil
}

const sweepThreshold = 10000

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}

var (
	_ Limiter = (*Redis)(nil)
	_ Limiter = (*Memory)(nil)
)
