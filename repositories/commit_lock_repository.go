package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCommitLockRepository struct {
	redis *redis.Client
}

func NewRedisCommitLockRepository(redisClient *redis.Client) *RedisCommitLockRepository {
	return &RedisCommitLockRepository{redis: redisClient}
}

func commitLockKey(sessionID string) string {
	return fmt.Sprintf("upload:%s:commit", sessionID)
}

func (r *RedisCommitLockRepository) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return r.redis.SetNX(ctx, commitLockKey(sessionID), time.Now().Unix(), ttl).Result()
}

func (r *RedisCommitLockRepository) Release(ctx context.Context, sessionID string) error {
	return r.redis.Del(ctx, commitLockKey(sessionID)).Err()
}
