// Package dedup answers "seen before?" for IP members with bounded memory.
//
// The hot path is one approximate-cardinality add; an exact per-day shadow
// set rides along so the approximate structure can be rebuilt after a
// threshold reset without losing short-term duplicate detection.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowlens/internal/logger"
	"flowlens/internal/store"
)

const dateLayout = "20060102"

// Engine tracks approximate membership for one scope ("today", "history").
// Scopes share nothing; each gets its own key namespace.
type Engine struct {
	store     store.Store
	prefix    string
	scope     string
	threshold int64
}

// New creates an engine. threshold is the estimated cardinality above which
// Maintain resets and rebuilds the approximate structure.
func New(s store.Store, prefix, scope string, threshold int64) *Engine {
	return &Engine{store: s, prefix: prefix, scope: scope, threshold: threshold}
}

func (e *Engine) hllKey() string {
	return e.prefix + ":hll:" + e.scope
}

func (e *Engine) shadowKey(day time.Time) string {
	return e.prefix + ":shadow:" + e.scope + ":" + day.Format(dateLayout)
}

// IsDuplicate inserts ip and reports whether it was already present since the
// structure's last reset. The insert is the point: the first caller for a
// distinct ip gets false, everyone after gets true.
func (e *Engine) IsDuplicate(ctx context.Context, ip string, now time.Time) (bool, error) {
	if err := e.store.SAdd(ctx, e.shadowKey(now), ip); err != nil {
		return false, fmt.Errorf("record %s shadow member: %w", e.scope, err)
	}
	novel, err := e.store.PFAdd(ctx, e.hllKey(), ip)
	if err != nil {
		return false, fmt.Errorf("test %s membership: %w", e.scope, err)
	}
	return !novel, nil
}

// Maintain is periodic housekeeping, never called per event. When the
// approximate structure grows past the threshold it is dropped and rebuilt
// from yesterday's exact shadow set, then shadow sets older than today are
// pruned unconditionally.
func (e *Engine) Maintain(ctx context.Context, now time.Time) error {
	count, err := e.store.PFCount(ctx, e.hllKey())
	if err != nil {
		return fmt.Errorf("estimate %s cardinality: %w", e.scope, err)
	}

	if e.threshold > 0 && count > e.threshold {
		logger.Infof("dedup %s: cardinality %d over threshold %d, rebuilding", e.scope, count, e.threshold)
		if err := e.store.Del(ctx, e.hllKey()); err != nil {
			return fmt.Errorf("reset %s structure: %w", e.scope, err)
		}
		members, err := e.store.SMembers(ctx, e.shadowKey(now.AddDate(0, 0, -1)))
		if err != nil {
			return fmt.Errorf("read %s shadow set: %w", e.scope, err)
		}
		if len(members) > 0 {
			if _, err := e.store.PFAdd(ctx, e.hllKey(), members...); err != nil {
				return fmt.Errorf("replay %s shadow set: %w", e.scope, err)
			}
		}
	}

	return e.pruneShadows(ctx, now)
}

func (e *Engine) pruneShadows(ctx context.Context, now time.Time) error {
	keys, err := e.store.Keys(ctx, e.prefix+":shadow:"+e.scope+":*")
	if err != nil {
		return fmt.Errorf("list %s shadow sets: %w", e.scope, err)
	}
	today := now.Format(dateLayout)
	var stale []string
	for _, key := range keys {
		idx := strings.LastIndex(key, ":")
		if idx < 0 {
			continue
		}
		if day := key[idx+1:]; day < today {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := e.store.Del(ctx, stale...); err != nil {
		return fmt.Errorf("prune %s shadow sets: %w", e.scope, err)
	}
	return nil
}

// Clean removes the approximate structure and every shadow set for the scope.
func (e *Engine) Clean(ctx context.Context) error {
	if err := e.store.Del(ctx, e.hllKey()); err != nil {
		return err
	}
	return e.store.DeleteByPattern(ctx, e.prefix+":shadow:"+e.scope+":*")
}
