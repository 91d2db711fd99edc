// Package pipeline runs classified events through an ordered list of counting
// stages and commits each batch to the counting store in one save pass.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"flowlens/internal/logger"
	"flowlens/pkg/models"
)

// Stage is one processor in a chain. Process touches only the stage's local
// accumulator; Save flushes it to the store and publishes the stage's view;
// Clean wipes the stage's persisted keys (tests and operational resets only).
type Stage interface {
	Name() string
	Process(ctx context.Context, ev *models.Event) error
	Save(ctx context.Context) error
	Clean(ctx context.Context) error
}

// Pipeline owns an explicit ordered stage list and drives the batch
// lifecycle over it. A Pipeline is built fresh for every batch and must not
// be reused: stages carry batch-local state.
type Pipeline struct {
	stages  []Stage
	metrics *Metrics
}

// New assembles a pipeline over the given stages, in order.
func New(metrics *Metrics, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, metrics: metrics}
}

// Run pushes every event through every stage, then saves each stage once.
// A stage error on one event drops that event from all later stages without
// touching the rest of the batch; a save error fails the batch.
func (p *Pipeline) Run(ctx context.Context, events []*models.Event) error {
	started := time.Now()

	for _, ev := range events {
		if err := p.processOne(ctx, ev); err != nil {
			logger.Warnf("Dropping event from %s: %v", ev.SrcIP, err)
			p.metrics.eventSkipped()
			continue
		}
		p.metrics.eventProcessed()
	}

	for _, stage := range p.stages {
		if err := stage.Save(ctx); err != nil {
			p.metrics.saveFailed(stage.Name())
			return fmt.Errorf("save stage %s: %w", stage.Name(), err)
		}
		p.metrics.saved(stage.Name())
	}

	p.metrics.batchDone(time.Since(started))
	return nil
}

func (p *Pipeline) processOne(ctx context.Context, ev *models.Event) error {
	for _, stage := range p.stages {
		if err := stage.Process(ctx, ev); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
	}
	return nil
}

// Clean wipes every stage's persisted state.
func (p *Pipeline) Clean(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Clean(ctx); err != nil {
			return fmt.Errorf("clean stage %s: %w", stage.Name(), err)
		}
	}
	return nil
}
