// Package publish hands freshly computed views to the delivery layer. The
// core only serializes and fires at a named channel; fan-out to dashboards
// happens elsewhere.
package publish

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"flowlens/internal/store"
)

// Publisher pushes one view to one named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// StorePublisher publishes over the counting store's pub/sub.
type StorePublisher struct {
	store  store.Store
	prefix string
}

// NewStorePublisher builds a publisher. prefix namespaces channel names.
func NewStorePublisher(s store.Store, prefix string) *StorePublisher {
	return &StorePublisher{store: s, prefix: prefix}
}

func (p *StorePublisher) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	if err := p.store.Publish(ctx, p.prefix+":"+channel, data); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Nop discards every publish. Used by tests and silent deployments.
type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) error { return nil }
