package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users currently have a live realtime connection.
// Entries expire on their own, so a crashed server never leaves users stuck
// online.
type Presence interface {
	// SetOnline marks the user online for the TTL; called on connect and
	// refreshed by the connection's ping cycle.
	SetOnline(ctx context.Context, userID uint) error
	// SetOffline removes the user's presence entry immediately.
	SetOffline(ctx context.Context, userID uint) error
	IsOnline(ctx context.Context, userID uint) (bool, error)
	// OnlineSet resolves online status for a batch of users.
	OnlineSet(ctx context.Context, userIDs []uint) (map[uint]bool, error)
}

const presenceKeyPrefix = "presence:"

// redisPresence implements Presence on Redis TTL keys.
type redisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a Redis-backed presence tracker.
func NewRedisPresence(client *redis.Client, ttl time.Duration) Presence {
	return &redisPresence{client: client, ttl: ttl}
}

func presenceKey(userID uint) string {
	return presenceKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

func (p *redisPresence) SetOnline(ctx context.Context, userID uint) error {
	if err := p.client.Set(ctx, presenceKey(userID), "1", p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence for user %d: %w", userID, err)
	}
	return nil
}

func (p *redisPresence) SetOffline(ctx context.Context, userID uint) error {
	if err := p.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear presence for user %d: %w", userID, err)
	}
	return nil
}

func (p *redisPresence) IsOnline(ctx context.Context, userID uint) (bool, error) {
	count, err := p.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence for user %d: %w", userID, err)
	}
	return count > 0, nil
}

func (p *redisPresence) OnlineSet(ctx context.Context, userIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = presenceKey(id)
	}

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to batch check presence: %w", err)
	}
	for i, v := range values {
		result[userIDs[i]] = v != nil
	}
	return result, nil
}
