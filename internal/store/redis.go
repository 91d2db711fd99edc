package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access for the counting store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis is the production Store backed by a single Redis instance.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis counting store: %w", err)
	}

	return &Redis{client: client}, nil
}

func (s *Redis) IncrBy(ctx context.Context, key string, delta int64) error {
	return s.client.IncrBy(ctx, key, delta).Err()
}

func (s *Redis) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	return n, err
}

func (s *Redis) ZIncrBy(ctx context.Context, key, member string, delta int64) error {
	return s.client.ZIncrBy(ctx, key, float64(delta), member).Err()
}

func (s *Redis) TopN(ctx context.Context, key string, n int64) ([]ScoredMember, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read top members of %s: %w", key, err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, ScoredMember{Member: member, Score: int64(z.Score)})
	}
	return out, nil
}

func (s *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *Redis) PFAdd(ctx context.Context, key string, members ...string) (bool, error) {
	if len(members) == 0 {
		return false, nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	changed, err := s.client.PFAdd(ctx, key, args...).Result()
	if err != nil {
		return false, fmt.Errorf("pfadd %s: %w", key, err)
	}
	return changed > 0, nil
}

func (s *Redis) PFCount(ctx context.Context, key string) (int64, error) {
	return s.client.PFCount(ctx, key).Result()
}

func (s *Redis) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	return s.client.HIncrBy(ctx, key, field, delta).Err()
}

func (s *Redis) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *Redis) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *Redis) ListRange(ctx context.Context, key string) ([]string, error) {
	return s.client.LRange(ctx, key, 0, -1).Result()
}

func (s *Redis) ListReplace(ctx context.Context, key string, values []string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		args := make([]interface{}, len(values))
		for i, v := range values {
			args[i] = v
		}
		pipe.RPush(ctx, key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace list %s: %w", key, err)
	}
	return nil
}

func (s *Redis) ListPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.client.RPush(ctx, key, args...).Err()
}

func (s *Redis) ListPushFront(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	// LPUSH reverses its arguments, so feed them back to front.
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[len(values)-1-i] = v
	}
	return s.client.LPush(ctx, key, args...).Err()
}

func (s *Redis) ListPop(ctx context.Context, key string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	values, err := s.client.LPopCount(ctx, key, count).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return values, err
}

func (s *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Keys enumerates keys matching the pattern with SCAN, never KEYS.
func (s *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

func (s *Redis) DeleteByPattern(ctx context.Context, pattern string) error {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	return s.Del(ctx, keys...)
}

func (s *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *Redis) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
