package pipeline

import (
	"context"
	"sync"
	"time"

	"flowlens/internal/dedup"
	"flowlens/internal/input"
	"flowlens/internal/logger"
)

// Builder constructs a fresh chain for one batch. Chains carry batch-local
// state, so the scheduler never reuses one.
type Builder func(now time.Time) *Pipeline

// Scheduler ticks batches through a chain and runs dedup maintenance on a
// slower cadence.
type Scheduler struct {
	name             string
	consumer         *input.Consumer
	build            Builder
	interval         time.Duration
	maintainInterval time.Duration
	engines          []*dedup.Engine
}

// NewScheduler wires a consumer to a chain builder.
func NewScheduler(name string, consumer *input.Consumer, build Builder, interval, maintainInterval time.Duration, engines ...*dedup.Engine) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if maintainInterval <= 0 {
		maintainInterval = time.Hour
	}
	return &Scheduler{
		name:             name,
		consumer:         consumer,
		build:            build,
		interval:         interval,
		maintainInterval: maintainInterval,
		engines:          engines,
	}
}

// Run loops until ctx is done. A failed batch is requeued so the next tick
// retries from the same offset; no partial progress is kept across the retry
// beyond whatever stages already flushed.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Infof("Scheduler %s started, interval %s", s.name, s.interval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.maintainLoop(ctx)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	batch, err := s.consumer.Drain(ctx)
	if err != nil {
		logger.Errorf("Scheduler %s: drain failed: %v", s.name, err)
		return
	}
	if batch.Len() == 0 {
		return
	}

	chain := s.build(time.Now())
	if err := chain.Run(ctx, batch.Events); err != nil {
		logger.Errorf("Scheduler %s: batch of %d failed, requeueing: %v", s.name, batch.Len(), err)
		if reqErr := s.consumer.Requeue(ctx, batch); reqErr != nil {
			logger.Errorf("Scheduler %s: requeue failed, batch lost: %v", s.name, reqErr)
		}
		return
	}
	logger.Debugf("Scheduler %s: committed batch of %d", s.name, batch.Len())
}

func (s *Scheduler) maintainLoop(ctx context.Context) {
	if len(s.engines) == 0 {
		return
	}
	ticker := time.NewTicker(s.maintainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, engine := range s.engines {
				if err := engine.Maintain(ctx, time.Now()); err != nil {
					logger.Errorf("Scheduler %s: dedup maintenance failed: %v", s.name, err)
				}
			}
		}
	}
}
