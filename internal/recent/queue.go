// Package recent keeps fixed-capacity "most recent" lists in the counting
// store. A queue is pure recency: the same IP pushed twice occupies two slots.
package recent

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"flowlens/internal/logger"
	"flowlens/internal/store"
	"flowlens/pkg/models"
)

// Queue accumulates records for one batch and merges them into the persisted
// list on Save. One Queue per batch; the persisted key is shared across
// batches and named, not date-scoped.
type Queue struct {
	store    store.Store
	key      string
	capacity int
	local    []models.QueueRecord
}

// New creates a batch-scoped queue over the named key.
func New(s store.Store, prefix, name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10
	}
	return &Queue{store: s, key: prefix + ":queue:" + name, capacity: capacity}
}

// Push records one entry locally. The batch-local buffer is itself capped at
// the queue capacity; once full, a newer record displaces the oldest local one.
func (q *Queue) Push(rec models.QueueRecord) {
	if len(q.local) < q.capacity {
		q.local = append(q.local, rec)
		return
	}
	oldest := 0
	for i := 1; i < len(q.local); i++ {
		if q.local[i].UpdateTime.Before(q.local[oldest].UpdateTime) {
			oldest = i
		}
	}
	if rec.UpdateTime.After(q.local[oldest].UpdateTime) {
		q.local[oldest] = rec
	}
}

// Save merges the persisted queue with this batch's records, newest first,
// truncates to capacity and overwrites the whole list. The read-merge-write
// is not safe against a concurrent writer of the same queue; callers that
// need exactness serialize writers per queue name.
func (q *Queue) Save(ctx context.Context) error {
	merged, err := q.Records(ctx)
	if err != nil {
		return err
	}
	merged = append(merged, q.local...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].UpdateTime.After(merged[j].UpdateTime)
	})
	if len(merged) > q.capacity {
		merged = merged[:q.capacity]
	}
	if err := q.write(ctx, merged); err != nil {
		return err
	}
	q.local = nil
	return nil
}

// Set overwrites the persisted queue outright. Administrative path.
func (q *Queue) Set(ctx context.Context, records []models.QueueRecord) error {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdateTime.After(records[j].UpdateTime)
	})
	if len(records) > q.capacity {
		records = records[:q.capacity]
	}
	return q.write(ctx, records)
}

// Records returns the persisted queue contents, newest first.
func (q *Queue) Records(ctx context.Context) ([]models.QueueRecord, error) {
	raw, err := q.store.ListRange(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", q.key, err)
	}
	out := make([]models.QueueRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.QueueRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			logger.Warnf("Skipping undecodable record in queue %s: %v", q.key, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (q *Queue) write(ctx context.Context, records []models.QueueRecord) error {
	values := make([]string, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode queue record: %w", err)
		}
		values = append(values, string(data))
	}
	if err := q.store.ListReplace(ctx, q.key, values); err != nil {
		return fmt.Errorf("overwrite queue %s: %w", q.key, err)
	}
	return nil
}

// Clean deletes the persisted queue.
func (q *Queue) Clean(ctx context.Context) error {
	return q.store.Del(ctx, q.key)
}
