// Package input drains sensor events from a store-backed list, one bounded
// batch per call.
package input

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"flowlens/internal/logger"
	"flowlens/internal/store"
	"flowlens/pkg/models"
)

// Config configures a Consumer.
type Config struct {
	Key       string
	BatchSize int
}

// Batch is one drained set of events plus the raw payloads needed to requeue
// the batch unchanged after a failed save.
type Batch struct {
	Events []*models.Event
	raw    []string
}

// Len reports the number of decodable events in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Events)
}

// Consumer pops event payloads from a named list.
type Consumer struct {
	store     store.Store
	key       string
	batchSize int
}

// NewConsumer creates a consumer over the given list key.
func NewConsumer(s store.Store, cfg Config) (*Consumer, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("input list key is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	return &Consumer{store: s, key: cfg.Key, batchSize: cfg.BatchSize}, nil
}

// Drain pops up to one batch of payloads and decodes them. Sensors push
// freshest-first, so the decoded events are reversed to oldest-first before
// any stage sees them. Undecodable payloads are dropped with a warning.
func (c *Consumer) Drain(ctx context.Context) (*Batch, error) {
	raw, err := c.store.ListPop(ctx, c.key, c.batchSize)
	if err != nil {
		return nil, fmt.Errorf("pop events from %s: %w", c.key, err)
	}
	if len(raw) == 0 {
		return &Batch{}, nil
	}

	events := make([]*models.Event, 0, len(raw))
	for _, payload := range raw {
		var ev models.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			logger.Warnf("Dropping undecodable event payload: %v", err)
			continue
		}
		events = append(events, &ev)
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	return &Batch{Events: events, raw: raw}, nil
}

// Requeue pushes the batch's raw payloads back to the head of the list in
// their original order, so the next cycle retries from the same offset.
func (c *Consumer) Requeue(ctx context.Context, batch *Batch) error {
	if batch == nil || len(batch.raw) == 0 {
		return nil
	}
	if err := c.store.ListPushFront(ctx, c.key, batch.raw...); err != nil {
		return fmt.Errorf("requeue %d payloads to %s: %w", len(batch.raw), c.key, err)
	}
	return nil
}
