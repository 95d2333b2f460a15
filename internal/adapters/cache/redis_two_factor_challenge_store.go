package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/identity-core/internal/ports"
)

const challengePrefix = keyPrefix + "2fa:challenge:"

// TwoFactorChallengeStore holds password-verified logins awaiting a code.
type TwoFactorChallengeStore struct {
	client redis.UniversalClient
}

func NewTwoFactorChallengeStore(client redis.UniversalClient) *TwoFactorChallengeStore {
	return &TwoFactorChallengeStore{client: client}
}

func (s *TwoFactorChallengeStore) Put(ctx context.Context, token string, challenge ports.TwoFactorChallenge, ttl time.Duration) error {
	raw, err := json.Marshal(challenge)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, challengePrefix+token, raw, ttl).Err()
}

func (s *TwoFactorChallengeStore) Get(ctx context.Context, token string) (*ports.TwoFactorChallenge, error) {
	raw, err := s.client.Get(ctx, challengePrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out ports.TwoFactorChallenge
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume deletes the challenge and reports whether this caller removed it.
func (s *TwoFactorChallengeStore) Consume(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Del(ctx, challengePrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
