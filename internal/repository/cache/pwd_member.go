// Package cache fronts slow repository lookups with Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pwd-registry/support-desk/internal/domain"
	"github.com/pwd-registry/support-desk/internal/repository"
)

// DefaultMemberTTL is used when no TTL is configured.
const DefaultMemberTTL = 5 * time.Minute

const memberKeyPrefix = "support-desk:pwd-member:account:"

// PWDMemberRepository serves member lookups from Redis and falls through to next on a miss.
// Misses for unknown accounts are not cached, so a member registered later is found at once.
// Redis failures are logged and never fail the lookup.
type PWDMemberRepository struct {
	next   repository.PWDMemberRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewPWDMemberRepository wraps next with a Redis read-through cache.
func NewPWDMemberRepository(next repository.PWDMemberRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *PWDMemberRepository {
	if ttl <= 0 {
		ttl = DefaultMemberTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PWDMemberRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func (r *PWDMemberRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.PWDMember, error) {
	key := memberKeyPrefix + accountID

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var member domain.PWDMember
		if jsonErr := json.Unmarshal(raw, &member); jsonErr == nil {
			return &member, nil
		}
		r.logger.Warn("discarding unreadable member cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("member cache read failed", zap.String("key", key), zap.Error(err))
	}

	member, err := r.next.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(member)
	if err != nil {
		return member, nil
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		r.logger.Warn("member cache write failed", zap.String("key", key), zap.Error(err))
	}
	return member, nil
}
