package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Guard claims deliveries once per scope using Redis SETNX with a TTL.
// Keys follow the `bz:idempotency:claim:<scope>:<key>` pattern.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a guard whose claims expire after ttl.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim returns true when the caller is the first to see key within scope.
func (g *Guard) Claim(ctx context.Context, scope, key string) (bool, error) {
	redisKey, err := g.claimKey(scope, key)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, redisKey, "1", g.ttl)
}

// Release drops a claim so a failed delivery can be retried.
func (g *Guard) Release(ctx context.Context, scope, key string) error {
	redisKey, err := g.claimKey(scope, key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, redisKey)
}

func (g *Guard) claimKey(scope, key string) (string, error) {
	if strings.TrimSpace(scope) == "" {
		return "", errors.New("scope is required")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("key is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("claim:%s", scope), key), nil
}
