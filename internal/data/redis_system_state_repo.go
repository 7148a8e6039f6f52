package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/creative-dispatch/internal/domain/model"
)

const defaultStateKeyPrefix = "creative-dispatch:system_state:"

// RedisSystemStateRepo stores system state as Redis hashes with no expiry.
type RedisSystemStateRepo struct {
	client       redis.UniversalClient
	prefix       string
	timeProvider TimeProvider
}

// RedisSystemStateOptions configures RedisSystemStateRepo.
type RedisSystemStateOptions struct {
	Client       redis.UniversalClient
	KeyPrefix    string
	TimeProvider TimeProvider
}

// NewRedisSystemStateRepo creates a Redis-backed system state store.
func NewRedisSystemStateRepo(opts RedisSystemStateOptions) (*RedisSystemStateRepo, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultStateKeyPrefix
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RedisSystemStateRepo{client: opts.Client, prefix: prefix, timeProvider: tp}, nil
}

func (r *RedisSystemStateRepo) redisKey(key string) string {
	return r.prefix + key
}

// Get returns (nil, nil) for a key that has never been written.
func (r *RedisSystemStateRepo) Get(ctx context.Context, key string) (*model.SystemState, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrStateKeyRequired
	}
	fields, err := r.client.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	value, ok := fields["value"]
	if !ok {
		return nil, nil //nolint:nilnil // absent key is not an error
	}
	st := &model.SystemState{Key: key, Value: json.RawMessage(value)}
	if ts := fields["updated_at"]; ts != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, ts); parseErr == nil {
			st.UpdatedAt = parsed.UTC()
		}
	}
	return st, nil
}

// Set writes value and updated_at atomically.
func (r *RedisSystemStateRepo) Set(ctx context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return ErrStateKeyRequired
	}
	if !json.Valid(value) {
		return fmt.Errorf("system state %s: value must be valid JSON", key)
	}
	now := r.timeProvider.Now().UTC().Format(time.RFC3339Nano)
	if err := r.client.HSet(ctx, r.redisKey(key), "value", string(value), "updated_at", now).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}
