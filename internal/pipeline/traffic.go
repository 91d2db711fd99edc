package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"flowlens/internal/classify"
	"flowlens/internal/dedup"
	"flowlens/internal/geo"
	"flowlens/internal/publish"
	"flowlens/internal/rank"
	"flowlens/internal/recent"
	"flowlens/internal/store"
	"flowlens/pkg/models"
)

const dateLayout = "20060102"

// classifyStage is the pre-process step. It must run before any stage that
// reads the enrichment fields.
type classifyStage struct {
	classifier *classify.Classifier
}

func newClassifyStage(c *classify.Classifier) *classifyStage {
	return &classifyStage{classifier: c}
}

func (s *classifyStage) Name() string { return "classify" }

func (s *classifyStage) Process(ctx context.Context, ev *models.Event) error {
	s.classifier.Enrich(ctx, ev)
	return nil
}

func (s *classifyStage) Save(context.Context) error  { return nil }
func (s *classifyStage) Clean(context.Context) error { return nil }

// externalIPStage ranks external source addresses by event count.
type externalIPStage struct {
	agg       *rank.Aggregator
	publisher publish.Publisher
	topN      int64
}

func newExternalIPStage(s store.Store, prefix string, pub publish.Publisher, topN int64, now time.Time) *externalIPStage {
	return &externalIPStage{
		agg:       rank.New(s, prefix+":rank", "external_src_ip", now),
		publisher: pub,
		topN:      topN,
	}
}

func (s *externalIPStage) Name() string { return "external_ip_rank" }

func (s *externalIPStage) Process(_ context.Context, ev *models.Event) error {
	if !ev.SrcPrivate && ev.SrcIP != "" {
		s.agg.Add(ev.SrcIP, 1)
	}
	return nil
}

func (s *externalIPStage) Save(ctx context.Context) error {
	if err := s.agg.Save(ctx); err != nil {
		return err
	}
	view, err := s.agg.TopNPercent(ctx, s.topN)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "external_ip_rank", view)
}

func (s *externalIPStage) Clean(ctx context.Context) error { return s.agg.Clean(ctx) }

// PortRankView is the published port ranking with remainder buckets.
type PortRankView struct {
	Src []models.RankEntry `json:"src"`
	Dst []models.RankEntry `json:"dst"`
}

type portRankStage struct {
	src       *rank.Aggregator
	dst       *rank.Aggregator
	publisher publish.Publisher
	topN      int64
}

func newPortRankStage(s store.Store, prefix string, pub publish.Publisher, topN int64, now time.Time) *portRankStage {
	return &portRankStage{
		src:       rank.New(s, prefix+":rank", "src_port", now),
		dst:       rank.New(s, prefix+":rank", "dst_port", now),
		publisher: pub,
		topN:      topN,
	}
}

func (s *portRankStage) Name() string { return "port_rank" }

func (s *portRankStage) Process(_ context.Context, ev *models.Event) error {
	if ev.SrcPort > 0 {
		s.src.Add(strconv.Itoa(ev.SrcPort), 1)
	}
	if ev.DstPort > 0 {
		s.dst.Add(strconv.Itoa(ev.DstPort), 1)
	}
	return nil
}

func (s *portRankStage) Save(ctx context.Context) error {
	if err := s.src.Save(ctx); err != nil {
		return err
	}
	if err := s.dst.Save(ctx); err != nil {
		return err
	}
	view, err := s.View(ctx)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "port_rank", view)
}

// View returns src/dst port top-N with the synthetic remainder bucket.
func (s *portRankStage) View(ctx context.Context) (PortRankView, error) {
	src, err := s.src.TopNWithOther(ctx, s.topN)
	if err != nil {
		return PortRankView{}, err
	}
	dst, err := s.dst.TopNWithOther(ctx, s.topN)
	if err != nil {
		return PortRankView{}, err
	}
	return PortRankView{Src: src, Dst: dst}, nil
}

func (s *portRankStage) Clean(ctx context.Context) error {
	if err := s.src.Clean(ctx); err != nil {
		return err
	}
	return s.dst.Clean(ctx)
}

// IPRankView is the published IP ranking with percent-of-max.
type IPRankView struct {
	Src []models.RankEntry `json:"src"`
	Dst []models.RankEntry `json:"dst"`
}

type ipRankStage struct {
	src       *rank.Aggregator
	dst       *rank.Aggregator
	publisher publish.Publisher
	topN      int64
}

func newIPRankStage(s store.Store, prefix string, pub publish.Publisher, topN int64, now time.Time) *ipRankStage {
	return &ipRankStage{
		src:       rank.New(s, prefix+":rank", "src_ip", now),
		dst:       rank.New(s, prefix+":rank", "dst_ip", now),
		publisher: pub,
		topN:      topN,
	}
}

func (s *ipRankStage) Name() string { return "ip_rank" }

func (s *ipRankStage) Process(_ context.Context, ev *models.Event) error {
	if ev.SrcIP != "" {
		s.src.Add(ev.SrcIP, 1)
	}
	if ev.DstIP != "" {
		s.dst.Add(ev.DstIP, 1)
	}
	return nil
}

func (s *ipRankStage) Save(ctx context.Context) error {
	if err := s.src.Save(ctx); err != nil {
		return err
	}
	if err := s.dst.Save(ctx); err != nil {
		return err
	}
	view, err := s.View(ctx)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "ip_rank", view)
}

// View returns src/dst IP top-N with percents relative to the top entry.
func (s *ipRankStage) View(ctx context.Context) (IPRankView, error) {
	src, err := s.src.TopNPercent(ctx, s.topN)
	if err != nil {
		return IPRankView{}, err
	}
	dst, err := s.dst.TopNPercent(ctx, s.topN)
	if err != nil {
		return IPRankView{}, err
	}
	return IPRankView{Src: src, Dst: dst}, nil
}

func (s *ipRankStage) Clean(ctx context.Context) error {
	if err := s.src.Clean(ctx); err != nil {
		return err
	}
	return s.dst.Clean(ctx)
}

// geoAttackStage accumulates the city-flow map and the attack-statistics
// hash. It owns the dedup calls: IsDuplicate is side-effecting, so exactly
// one stage performs it and leaves the outcome on the event for stages
// further down the chain.
type geoAttackStage struct {
	store     store.Store
	prefix    string
	date      string
	now       time.Time
	today     *dedup.Engine
	history   *dedup.Engine
	publisher publish.Publisher

	flows  map[string]*models.CityFlow
	attack map[string]int64
}

func newGeoAttackStage(s store.Store, prefix string, today, history *dedup.Engine, pub publish.Publisher, now time.Time) *geoAttackStage {
	return &geoAttackStage{
		store:     s,
		prefix:    prefix,
		date:      now.Format(dateLayout),
		now:       now,
		today:     today,
		history:   history,
		publisher: pub,
		flows:     make(map[string]*models.CityFlow),
		attack:    make(map[string]int64),
	}
}

func (s *geoAttackStage) Name() string { return "geo_attack" }

func (s *geoAttackStage) cityKey() string   { return s.prefix + ":city:" + s.date }
func (s *geoAttackStage) attackKey() string { return s.prefix + ":attack:" + s.date }

func (s *geoAttackStage) Process(ctx context.Context, ev *models.Event) error {
	externalSrc := !ev.SrcPrivate && ev.SrcIP != ""
	externalDst := !ev.DstPrivate && ev.DstIP != ""

	if externalSrc {
		dupToday, err := s.today.IsDuplicate(ctx, ev.SrcIP, s.now)
		if err != nil {
			return err
		}
		dupEver, err := s.history.IsDuplicate(ctx, ev.SrcIP, s.now)
		if err != nil {
			return err
		}

		foreign := ev.SrcRecord != nil && ev.SrcRecord.Country != "" &&
			ev.SrcRecord.Country != geo.DomesticCountry

		s.attack["count"]++
		if !dupToday {
			ev.SrcNovelToday = true
			s.attack["src_ip"]++
			if foreign {
				s.attack["foreign"]++
			}
		}
		if !dupEver {
			s.attack["history_src_ip"]++
			if foreign {
				s.attack["history_foreign"]++
			}
		}
	}
	if externalSrc || externalDst {
		s.attack["external_ip"]++
	}

	s.addFlow(ev)
	return nil
}

func (s *geoAttackStage) addFlow(ev *models.Event) {
	src, dst := ev.SrcRecord, ev.DstRecord
	if src == nil || dst == nil || src.City == "" || dst.City == "" {
		return
	}
	key := src.City + "->" + dst.City
	flow, ok := s.flows[key]
	if !ok {
		flow = &models.CityFlow{}
		s.flows[key] = flow
	}
	flow.Count++
	flow.SrcCountry, flow.SrcProvince, flow.SrcCity = src.Country, src.Province, src.City
	flow.SrcLatitude, flow.SrcLongitude = src.Latitude, src.Longitude
	flow.DstCountry, flow.DstProvince, flow.DstCity = dst.Country, dst.Province, dst.City
	flow.DstLatitude, flow.DstLongitude = dst.Latitude, dst.Longitude
}

func (s *geoAttackStage) Save(ctx context.Context) error {
	for key, flow := range s.flows {
		if err := s.mergeFlow(ctx, key, flow); err != nil {
			return err
		}
	}
	for field, delta := range s.attack {
		if err := s.store.HIncrBy(ctx, s.attackKey(), field, delta); err != nil {
			return fmt.Errorf("flush attack field %s: %w", field, err)
		}
	}
	s.flows = make(map[string]*models.CityFlow)
	s.attack = make(map[string]int64)

	attackView, err := s.GetAttackData(ctx)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, "attack_stats", attackView); err != nil {
		return err
	}
	cityView, err := s.GetCityData(ctx)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "city_flow", cityView)
}

// mergeFlow reads the stored flow for the key, adds this batch's count and
// writes back the sum with refreshed metadata.
func (s *geoAttackStage) mergeFlow(ctx context.Context, key string, flow *models.CityFlow) error {
	existing, err := s.store.HGet(ctx, s.cityKey(), key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read city flow %s: %w", key, err)
	}
	merged := *flow
	if existing != "" {
		var prev models.CityFlow
		if err := json.Unmarshal([]byte(existing), &prev); err == nil {
			merged.Count += prev.Count
		}
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode city flow %s: %w", key, err)
	}
	if err := s.store.HSet(ctx, s.cityKey(), key, string(data)); err != nil {
		return fmt.Errorf("write city flow %s: %w", key, err)
	}
	return nil
}

// GetAttackData returns today's attack-statistics hash.
func (s *geoAttackStage) GetAttackData(ctx context.Context) (models.AttackData, error) {
	raw, err := s.store.HGetAll(ctx, s.attackKey())
	if err != nil {
		return nil, fmt.Errorf("read attack statistics: %w", err)
	}
	out := make(models.AttackData, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

// GetCityData returns today's city-flow aggregates keyed "srcCity->dstCity".
func (s *geoAttackStage) GetCityData(ctx context.Context) (map[string]models.CityFlow, error) {
	raw, err := s.store.HGetAll(ctx, s.cityKey())
	if err != nil {
		return nil, fmt.Errorf("read city flows: %w", err)
	}
	out := make(map[string]models.CityFlow, len(raw))
	for key, value := range raw {
		var flow models.CityFlow
		if err := json.Unmarshal([]byte(value), &flow); err != nil {
			continue
		}
		out[key] = flow
	}
	return out, nil
}

func (s *geoAttackStage) Clean(ctx context.Context) error {
	if err := s.store.DeleteByPattern(ctx, s.prefix+":city:*"); err != nil {
		return err
	}
	return s.store.DeleteByPattern(ctx, s.prefix+":attack:*")
}

// recencyStage feeds the "recent external" and "recent foreign" queues with
// sources the attack stage marked novel today.
type recencyStage struct {
	external  *recent.Queue
	foreign   *recent.Queue
	publisher publish.Publisher
}

func newRecencyStage(s store.Store, prefix string, pub publish.Publisher, capacity int) *recencyStage {
	return &recencyStage{
		external:  recent.New(s, prefix, "external_ip", capacity),
		foreign:   recent.New(s, prefix, "foreign_ip", capacity),
		publisher: pub,
	}
}

func (s *recencyStage) Name() string { return "recency" }

func (s *recencyStage) Process(_ context.Context, ev *models.Event) error {
	if !ev.SrcNovelToday || ev.SrcPrivate || ev.SrcRecord == nil {
		return nil
	}
	rec := models.QueueRecord{
		IP:         ev.SrcIP,
		Country:    ev.SrcRecord.Country,
		Province:   ev.SrcRecord.Province,
		City:       ev.SrcRecord.City,
		UpdateTime: ev.OccurredAt,
	}
	s.external.Push(rec)
	if rec.Country != "" && rec.Country != geo.DomesticCountry {
		s.foreign.Push(rec)
	}
	return nil
}

func (s *recencyStage) Save(ctx context.Context) error {
	if err := s.external.Save(ctx); err != nil {
		return err
	}
	if err := s.foreign.Save(ctx); err != nil {
		return err
	}
	externalView, err := s.GetExternalIP(ctx)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, "external_ip", externalView); err != nil {
		return err
	}
	foreignView, err := s.GetForeignIP(ctx)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "foreign_ip", foreignView)
}

// GetExternalIP returns the persisted recent-external queue, newest first.
func (s *recencyStage) GetExternalIP(ctx context.Context) ([]models.QueueRecord, error) {
	return s.external.Records(ctx)
}

// GetForeignIP returns the persisted recent-foreign queue, newest first.
func (s *recencyStage) GetForeignIP(ctx context.Context) ([]models.QueueRecord, error) {
	return s.foreign.Records(ctx)
}

func (s *recencyStage) Clean(ctx context.Context) error {
	if err := s.external.Clean(ctx); err != nil {
		return err
	}
	return s.foreign.Clean(ctx)
}

// attackIPRankStage ranks external sources that target internal addresses.
type attackIPRankStage struct {
	agg       *rank.Aggregator
	publisher publish.Publisher
	topN      int64
}

func newAttackIPRankStage(s store.Store, prefix string, pub publish.Publisher, topN int64, now time.Time) *attackIPRankStage {
	return &attackIPRankStage{
		agg:       rank.New(s, prefix+":rank", "attack_src_ip", now),
		publisher: pub,
		topN:      topN,
	}
}

func (s *attackIPRankStage) Name() string { return "attack_ip_rank" }

func (s *attackIPRankStage) Process(_ context.Context, ev *models.Event) error {
	if !ev.SrcPrivate && ev.SrcIP != "" && ev.DstPrivate {
		s.agg.Add(ev.SrcIP, 1)
	}
	return nil
}

func (s *attackIPRankStage) Save(ctx context.Context) error {
	if err := s.agg.Save(ctx); err != nil {
		return err
	}
	view, err := s.agg.TopNPercent(ctx, s.topN)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, "attack_ip_rank", view)
}

func (s *attackIPRankStage) Clean(ctx context.Context) error { return s.agg.Clean(ctx) }
