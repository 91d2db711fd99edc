package pipeline

import (
	"time"

	"flowlens/internal/classify"
	"flowlens/internal/dedup"
	"flowlens/internal/publish"
	"flowlens/internal/store"
)

// Deps holds everything a chain needs. The same Deps value can build any
// number of chains; each call produces fresh, batch-scoped stage instances.
type Deps struct {
	Store         store.Store
	Prefix        string
	Publisher     publish.Publisher
	Classifier    *classify.Classifier
	TodayDedup    *dedup.Engine
	HistoryDedup  *dedup.Engine
	Metrics       *Metrics
	TopN          int64
	QueueCapacity int
}

func (d Deps) topN() int64 {
	if d.TopN <= 0 {
		return 10
	}
	return d.TopN
}

func (d Deps) queueCapacity() int {
	if d.QueueCapacity <= 0 {
		return 10
	}
	return d.QueueCapacity
}

// NewTrafficChain builds the chain for raw protocol/traffic events. The
// classify stage runs first; geo_attack runs before recency because the
// recency stage keys off novelty flags geo_attack sets on the event.
func NewTrafficChain(d Deps, now time.Time) *Pipeline {
	return New(d.Metrics,
		newClassifyStage(d.Classifier),
		newExternalIPStage(d.Store, d.Prefix, d.Publisher, d.topN(), now),
		newPortRankStage(d.Store, d.Prefix, d.Publisher, d.topN(), now),
		newIPRankStage(d.Store, d.Prefix, d.Publisher, d.topN(), now),
		newGeoAttackStage(d.Store, d.Prefix, d.TodayDedup, d.HistoryDedup, d.Publisher, now),
		newRecencyStage(d.Store, d.Prefix, d.Publisher, d.queueCapacity()),
		newAttackIPRankStage(d.Store, d.Prefix, d.Publisher, d.topN(), now),
	)
}

// NewAlertChain builds the chain for alert/threat events.
func NewAlertChain(d Deps, now time.Time) *Pipeline {
	return New(d.Metrics,
		newCategoryStage(d.Store, d.Prefix, d.Publisher, d.topN(), now),
		newTrendStage(d.Store, d.Prefix, d.Publisher, now),
	)
}
