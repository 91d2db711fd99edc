// Package rank maintains date-scoped top-N counters over the counting store.
//
// Increments accumulate in memory for the lifetime of one batch and are
// flushed as a single score increment per distinct member on Save, plus one
// bump of the running-total key used for remainder computation.
package rank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"flowlens/internal/store"
	"flowlens/pkg/models"
)

const dateLayout = "20060102"

// OtherMember is the synthetic remainder entry appended by TopNWithOther.
const OtherMember = "other"

// Aggregator accumulates counts for one dimension on one calendar day.
// An Aggregator belongs to a single batch and must not be reused.
type Aggregator struct {
	store     store.Store
	prefix    string
	dimension string
	date      string
	counts    map[string]int64
	total     int64
}

// New creates an aggregator for the given dimension, scoped to now's date.
func New(s store.Store, prefix, dimension string, now time.Time) *Aggregator {
	return &Aggregator{
		store:     s,
		prefix:    prefix,
		dimension: dimension,
		date:      now.Format(dateLayout),
		counts:    make(map[string]int64),
	}
}

func (a *Aggregator) key() string {
	return a.prefix + ":" + a.dimension + ":" + a.date
}

func (a *Aggregator) totalKey() string {
	return a.prefix + ":" + a.dimension + ":total:" + a.date
}

// Add records a local increment for member. No store round trip happens here.
func (a *Aggregator) Add(member string, delta int64) {
	if member == "" || delta == 0 {
		return
	}
	a.counts[member] += delta
	a.total += delta
}

// Save flushes the batch-local counts, one atomic increment per distinct member.
func (a *Aggregator) Save(ctx context.Context) error {
	for member, delta := range a.counts {
		if err := a.store.ZIncrBy(ctx, a.key(), member, delta); err != nil {
			return fmt.Errorf("flush %s rank for %s: %w", a.dimension, member, err)
		}
	}
	if a.total != 0 {
		if err := a.store.IncrBy(ctx, a.totalKey(), a.total); err != nil {
			return fmt.Errorf("flush %s rank total: %w", a.dimension, err)
		}
	}
	a.counts = make(map[string]int64)
	a.total = 0
	return nil
}

// TopN returns the k highest-scoring members in descending score order.
func (a *Aggregator) TopN(ctx context.Context, k int64) ([]models.RankEntry, error) {
	members, err := a.store.TopN(ctx, a.key(), k)
	if err != nil {
		return nil, err
	}
	out := make([]models.RankEntry, 0, len(members))
	for _, m := range members {
		out = append(out, models.RankEntry{Member: m.Member, Count: m.Score})
	}
	return out, nil
}

// TopNWithOther appends a synthetic "other" entry covering everything outside
// the top k, computed against the running total.
func (a *Aggregator) TopNWithOther(ctx context.Context, k int64) ([]models.RankEntry, error) {
	entries, err := a.TopN(ctx, k)
	if err != nil {
		return nil, err
	}
	total, err := a.store.GetInt(ctx, a.totalKey())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read %s rank total: %w", a.dimension, err)
	}
	var top int64
	for _, e := range entries {
		top += e.Count
	}
	if rest := total - top; rest > 0 {
		entries = append(entries, models.RankEntry{Member: OtherMember, Count: rest})
	}
	return entries, nil
}

// TopNPercent returns the top k members with each count expressed as a
// percentage of the highest count. A zero top count yields zero percents.
func (a *Aggregator) TopNPercent(ctx context.Context, k int64) ([]models.RankEntry, error) {
	entries, err := a.TopN(ctx, k)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Count <= 0 {
		return entries, nil
	}
	top := entries[0].Count
	for i := range entries {
		entries[i].Percent = int64(math.Round(float64(entries[i].Count) * 100 / float64(top)))
	}
	return entries, nil
}

// Clean removes every key under this dimension regardless of date. Test and
// operational resets only.
func (a *Aggregator) Clean(ctx context.Context) error {
	return a.store.DeleteByPattern(ctx, a.prefix+":"+a.dimension+":*")
}
