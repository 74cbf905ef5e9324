package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisArchive appends entries as JSON lines to a per-session Redis list.
type RedisArchive struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisArchive 创建 Redis 追踪归档。ttl <= 0 表示不过期。
func NewRedisArchive(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "agentquorum:trace"
	}
	return &RedisArchive{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "trace_redis_archive")),
	}
}

func (a *RedisArchive) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", a.prefix, sessionID)
}

// appendScript 以条目 ID 去重后追加，ID 集合与列表共用 TTL
var appendScript = redis.NewScript(`
	local ttl = tonumber(ARGV[1])
	local pushed = 0
	for i = 2, #ARGV, 2 do
		if redis.call('SADD', KEYS[2], ARGV[i]) == 1 then
			redis.call('RPUSH', KEYS[1], ARGV[i + 1])
			pushed = pushed + 1
		end
	end
	if ttl > 0 then
		redis.call('EXPIRE', KEYS[1], ttl)
		redis.call('EXPIRE', KEYS[2], ttl)
	end
	return pushed
`)

func (a *RedisArchive) idsKey(sessionID string) string {
	return a.key(sessionID) + ":ids"
}

// Write pushes entries grouped by session. Entries whose ID was archived
// before are skipped, so flushing the same snapshot twice is harmless.
func (a *RedisArchive) Write(ctx context.Context, entries []TraceEntry) error {
	bySession := make(map[string][]any)
	order := make([]string, 0, 1)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode trace entry %s: %w", e.ID, err)
		}
		if _, seen := bySession[e.SessionID]; !seen {
			order = append(order, e.SessionID)
		}
		bySession[e.SessionID] = append(bySession[e.SessionID], e.ID, string(line))
	}

	ttl := 0
	if a.ttl > 0 {
		ttl = int(math.Ceil(a.ttl.Seconds()))
	}
	pushed := 0
	for _, session := range order {
		args := append([]any{ttl}, bySession[session]...)
		n, err := appendScript.Run(ctx, a.client, []string{a.key(session), a.idsKey(session)}, args...).Int()
		if err != nil {
			return fmt.Errorf("archive trace entries: %w", err)
		}
		pushed += n
	}
	a.logger.Debug("trace entries archived",
		zap.Int("entries", pushed),
		zap.Int("skipped", len(entries)-pushed),
		zap.Int("sessions", len(order)))
	return nil
}

// Load reads the archived entries of a session in push order.
func (a *RedisArchive) Load(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	lines, err := a.client.LRange(ctx, a.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trace archive: %w", err)
	}
	out := make([]TraceEntry, 0, len(lines))
	for _, line := range lines {
		var e TraceEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("decode archived entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
