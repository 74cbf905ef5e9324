package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore shares attempt counters across processes. Each counter is a key
// <prefix>:<operation>:<pattern> incremented with INCR and expiring after TTL;
// the operation's keys are indexed in a set for Reset.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建基于 Redis 的计数器存储。ttl <= 0 时默认 24 小时。
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "agentquorum:recovery"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "recovery_redis_store")),
	}
}

func (s *RedisStore) counterKey(operationID string, pattern ErrorPattern) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, operationID, pattern)
}

func (s *RedisStore) indexKey(operationID string) string {
	return fmt.Sprintf("%s:%s:patterns", s.prefix, operationID)
}

func (s *RedisStore) Incr(ctx context.Context, operationID string, pattern ErrorPattern) (int, error) {
	key := s.counterKey(operationID, pattern)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	pipe.SAdd(ctx, s.indexKey(operationID), key)
	pipe.Expire(ctx, s.indexKey(operationID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Reset(ctx context.Context, operationID string) error {
	index := s.indexKey(operationID)
	keys, err := s.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("failed to list attempt counters: %w", err)
	}
	keys = append(keys, index)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt counters: %w", err)
	}
	s.logger.Debug("attempt counters reset", zap.String("operation_id", operationID), zap.Int("keys", len(keys)))
	return nil
}
