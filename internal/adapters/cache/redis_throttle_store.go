package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/identity-core/internal/ports"
)

const (
	lockoutPrefix   = keyPrefix + "lockout:"
	rateLimitPrefix = keyPrefix + "ratelimit:"
	failureTTL      = 24 * time.Hour
)

// ThrottleStore keeps login-failure lockouts and fixed-window request counters.
type ThrottleStore struct {
	client redis.UniversalClient
	nowFn  func() time.Time
}

func NewThrottleStore(client redis.UniversalClient) *ThrottleStore {
	return &ThrottleStore{client: client, nowFn: time.Now}
}

func (s *ThrottleStore) Get(ctx context.Context, key string) (ports.LockoutState, error) {
	data, err := s.client.HMGet(ctx, lockoutPrefix+key, "failed_count", "locked_until").Result()
	if err != nil {
		return ports.LockoutState{}, err
	}
	return lockoutFromFields(data), nil
}

func lockoutFromFields(fields []any) ports.LockoutState {
	var state ports.LockoutState
	if raw, ok := fields[0].(string); ok {
		state.FailedCount, _ = strconv.Atoi(raw)
	}
	if raw, ok := fields[1].(string); ok {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil && unix > 0 {
			t := time.Unix(unix, 0).UTC()
			state.LockedUntil = &t
		}
	}
	return state
}

// RecordFailure counts a failure and, once the threshold is reached, sets the
// lock deadline. Counters expire on their own.
func (s *ThrottleStore) RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	redisKey := lockoutPrefix + key

	var incr *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, redisKey, "failed_count", 1)
		p.Expire(ctx, redisKey, failureTTL)
		return nil
	}); err != nil {
		return ports.LockoutState{}, err
	}

	state := ports.LockoutState{FailedCount: int(incr.Val())}
	if threshold <= 0 || state.FailedCount < threshold {
		return state, nil
	}
	lockedUntil := now.Add(lockoutWindow).UTC()
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, redisKey, "locked_until", lockedUntil.Unix())
		p.Expire(ctx, redisKey, lockoutWindow)
		return nil
	}); err != nil {
		return ports.LockoutState{}, err
	}
	state.LockedUntil = &lockedUntil
	return state, nil
}

func (s *ThrottleStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutPrefix+key).Err()
}

// Allow implements a fixed window aligned to multiples of window. Each window
// has its own counter key, written together with its TTL in one MULTI/EXEC.
func (s *ThrottleStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window < time.Millisecond {
		return false, errors.New("rate-limit window must be at least 1ms")
	}
	slot := s.nowFn().UnixMilli() / window.Milliseconds()
	redisKey := rateLimitPrefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, window)
		return nil
	}); err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}
