package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps drafts in Redis so a student can resume an attempt from
// another seat in a lab deployment. Keys expire after the configured TTL,
// which bounds how long an abandoned draft lingers.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects and validates the Redis backend.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration, log zerolog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Dur("ttl", ttl).
		Msg("Redis draft store connected")

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

func draftKey(moduleID string) string {
	return "draft:test:" + moduleID + ":answers"
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, moduleID string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, draftKey(moduleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get draft: %w", err)
	}
	return data, true, nil
}

// Set implements Store. Each save refreshes the TTL.
func (s *RedisStore) Set(ctx context.Context, moduleID string, data []byte) error {
	if err := s.rdb.Set(ctx, draftKey(moduleID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set draft: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, moduleID string) error {
	if err := s.rdb.Del(ctx, draftKey(moduleID)).Err(); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.rdb.Close() }
