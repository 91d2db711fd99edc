package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a read targets a key or field that does not exist.
var ErrNotFound = errors.New("store: not found")

// ScoredMember is one member of a score-ordered set read.
type ScoredMember struct {
	Member string
	Score  int64
}

// Store is the counting-store surface the aggregation core runs on.
//
// Every mutating call is atomic at the store level; concurrent batches rely on
// that, not on any locking in this package. TopN orders by descending score
// and breaks score ties by descending member string, which is what Redis gives
// for ZREVRANGE; the memory implementation mirrors it so both agree.
type Store interface {
	IncrBy(ctx context.Context, key string, delta int64) error
	GetInt(ctx context.Context, key string) (int64, error)

	ZIncrBy(ctx context.Context, key, member string, delta int64) error
	TopN(ctx context.Context, key string, n int64) ([]ScoredMember, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// PFAdd reports whether any member was novel to the approximate structure.
	PFAdd(ctx context.Context, key string, members ...string) (bool, error)
	PFCount(ctx context.Context, key string) (int64, error)

	HIncrBy(ctx context.Context, key, field string, delta int64) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	ListRange(ctx context.Context, key string) ([]string, error)
	// ListReplace overwrites the whole list in one round trip (DEL + RPUSH).
	ListReplace(ctx context.Context, key string, values []string) error
	ListPush(ctx context.Context, key string, values ...string) error
	// ListPushFront prepends values, preserving their given order.
	ListPushFront(ctx context.Context, key string, values ...string) error
	// ListPop removes and returns up to count items from the head.
	ListPop(ctx context.Context, key string, count int) ([]string, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	DeleteByPattern(ctx context.Context, pattern string) error

	Publish(ctx context.Context, channel string, payload []byte) error

	Close() error
}
