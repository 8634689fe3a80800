package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

const Window = time.Minute

// Limiter counts generation requests per caller over a one minute window,
// backed by github.com/vnmchuo/ratelimiter. Callers with their own limit
// (API keys carrying rate_limit) get a store configured for that limit.
type Limiter struct {
	rdb        *redis.Client
	defaultRPM int64

	mu     sync.Mutex
	stores map[int64]extratelimit.Limiter
	fixed  extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, defaultRPM int64) *Limiter {
	return &Limiter{
		rdb:        rdb,
		defaultRPM: defaultRPM,
		stores:     make(map[int64]extratelimit.Limiter),
	}
}

// NewTestLimiter uses store for every caller regardless of limit.
func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{fixed: store}
}

func (l *Limiter) storeFor(limit int64) extratelimit.Limiter {
	if l.fixed != nil {
		return l.fixed
	}
	if limit <= 0 {
		limit = l.defaultRPM
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stores[limit]
	if !ok {
		s = extratelimit.NewRedisStore(l.rdb,
			extratelimit.WithLimit(int(limit)),
			extratelimit.WithWindow(Window),
		)
		l.stores[limit] = s
	}
	return s
}

func key(callerID string) string {
	return fmt.Sprintf("ratelimit:caller:%s", callerID)
}

// Allow takes one request from callerID's budget. limit <= 0 uses the
// default requests per minute.
func (l *Limiter) Allow(ctx context.Context, callerID string, limit int64) (bool, error) {
	res, err := l.storeFor(limit).Allow(ctx, key(callerID))
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, callerID string, limit int64) (*extratelimit.Result, error) {
	return l.storeFor(limit).Status(ctx, key(callerID))
}
