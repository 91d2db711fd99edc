package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"flowlens/internal/publish"
	"flowlens/internal/rank"
	"flowlens/internal/store"
	"flowlens/pkg/models"
)

// categoryStage counts alert events per severity class for the day.
type categoryStage struct {
	agg       *rank.Aggregator
	publisher publish.Publisher
	topN      int64
}

func newCategoryStage(s store.Store, prefix string, pub publish.Publisher, topN int64, now time.Time) *categoryStage {
	return &categoryStage{
		agg:       rank.New(s, prefix+":rank", "alert_category", now),
		publisher: pub,
		topN:      topN,
	}
}

func (s *categoryStage) Name() string { return "alert_category" }

func (s *categoryStage) Process(_ context.Context, ev *models.Event) error {
	s.agg.Add(strconv.Itoa(ev.Category), 1)
	return nil
}

func (s *categoryStage) Save(ctx context.Context) error {
	if err := s.agg.Save(ctx); err != nil {
		return err
	}
	view, err := s.agg.TopN(ctx, s.topN)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "alert_category", view)
}

func (s *categoryStage) Clean(ctx context.Context) error { return s.agg.Clean(ctx) }

// AlertTrendView is the published per-hour alert distribution for one day.
type AlertTrendView struct {
	Total int64            `json:"total"`
	Hours map[string]int64 `json:"hours"`
}

// trendStage spreads alert counts over hour-of-day buckets plus a daily total.
type trendStage struct {
	store     store.Store
	prefix    string
	date      string
	publisher publish.Publisher

	hours map[string]int64
	total int64
}

func newTrendStage(s store.Store, prefix string, pub publish.Publisher, now time.Time) *trendStage {
	return &trendStage{
		store:     s,
		prefix:    prefix,
		date:      now.Format(dateLayout),
		publisher: pub,
		hours:     make(map[string]int64),
	}
}

func (s *trendStage) Name() string { return "alert_trend" }

func (s *trendStage) trendKey() string { return s.prefix + ":alerttrend:" + s.date }
func (s *trendStage) totalKey() string { return s.prefix + ":alerttotal:" + s.date }

func (s *trendStage) Process(_ context.Context, ev *models.Event) error {
	s.hours[ev.OccurredAt.Format("15")]++
	s.total++
	return nil
}

func (s *trendStage) Save(ctx context.Context) error {
	for hour, delta := range s.hours {
		if err := s.store.HIncrBy(ctx, s.trendKey(), hour, delta); err != nil {
			return fmt.Errorf("flush alert trend hour %s: %w", hour, err)
		}
	}
	if s.total != 0 {
		if err := s.store.IncrBy(ctx, s.totalKey(), s.total); err != nil {
			return fmt.Errorf("flush alert total: %w", err)
		}
	}
	s.hours = make(map[string]int64)
	s.total = 0

	view, err := s.GetTrend(ctx)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "alert_trend", view)
}

// GetTrend returns today's hour-of-day alert distribution.
func (s *trendStage) GetTrend(ctx context.Context) (AlertTrendView, error) {
	raw, err := s.store.HGetAll(ctx, s.trendKey())
	if err != nil {
		return AlertTrendView{}, fmt.Errorf("read alert trend: %w", err)
	}
	hours := make(map[string]int64, len(raw))
	for hour, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		hours[hour] = n
	}
	total, err := s.store.GetInt(ctx, s.totalKey())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return AlertTrendView{}, fmt.Errorf("read alert total: %w", err)
	}
	return AlertTrendView{Total: total, Hours: hours}, nil
}

func (s *trendStage) Clean(ctx context.Context) error {
	if err := s.store.DeleteByPattern(ctx, s.prefix+":alerttrend:*"); err != nil {
		return err
	}
	return s.store.DeleteByPattern(ctx, s.prefix+":alerttotal:*")
}
