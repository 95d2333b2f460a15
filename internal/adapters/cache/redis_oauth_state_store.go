package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/identity-core/internal/ports"
)

const oauthStatePrefix = keyPrefix + "oauth:state:"

// OAuthStateStore keeps authorize-step state until the provider calls back.
type OAuthStateStore struct {
	client redis.UniversalClient
}

func NewOAuthStateStore(client redis.UniversalClient) *OAuthStateStore {
	return &OAuthStateStore{client: client}
}

func (s *OAuthStateStore) Put(ctx context.Context, state string, value ports.OAuthState, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, oauthStatePrefix+state, raw, ttl).Err()
}

// Take reads and deletes in one command, so a replayed callback finds nothing.
func (s *OAuthStateStore) Take(ctx context.Context, state string) (*ports.OAuthState, error) {
	raw, err := s.client.GetDel(ctx, oauthStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out ports.OAuthState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
