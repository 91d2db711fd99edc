package store

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store with the same observable semantics as the
// Redis implementation, including TopN tie order and PFAdd novelty reporting
// (exact here, approximate there). Package tests run against it so the suite
// needs no live server.
type Memory struct {
	mu      sync.Mutex
	values  map[string]int64
	zsets   map[string]map[string]int64
	sets    map[string]map[string]struct{}
	hlls    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	lists   map[string][]string
	expiry  map[string]time.Time
	pubs    []Published
}

// Published is one captured Publish call.
type Published struct {
	Channel string
	Payload []byte
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]int64),
		zsets:  make(map[string]map[string]int64),
		sets:   make(map[string]map[string]struct{}),
		hlls:   make(map[string]map[string]struct{}),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		expiry: make(map[string]time.Time),
	}
}

func (m *Memory) expired(key string) bool {
	dl, ok := m.expiry[key]
	if !ok || time.Now().Before(dl) {
		return false
	}
	m.deleteKey(key)
	return true
}

func (m *Memory) deleteKey(key string) {
	delete(m.values, key)
	delete(m.zsets, key)
	delete(m.sets, key)
	delete(m.hlls, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.expiry, key)
}

func (m *Memory) allKeys() []string {
	seen := make(map[string]struct{})
	for k := range m.values {
		seen[k] = struct{}{}
	}
	for k := range m.zsets {
		seen[k] = struct{}{}
	}
	for k := range m.sets {
		seen[k] = struct{}{}
	}
	for k := range m.hlls {
		seen[k] = struct{}{}
	}
	for k := range m.hashes {
		seen[k] = struct{}{}
	}
	for k := range m.lists {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) IncrBy(_ context.Context, key string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	m.values[key] += delta
	return nil
}

func (m *Memory) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return 0, ErrNotFound
	}
	v, ok := m.values[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ZIncrBy(_ context.Context, key, member string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	zs, ok := m.zsets[key]
	if !ok {
		zs = make(map[string]int64)
		m.zsets[key] = zs
	}
	zs[member] += delta
	return nil
}

func (m *Memory) TopN(_ context.Context, key string, n int64) ([]ScoredMember, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	zs := m.zsets[key]
	out := make([]ScoredMember, 0, len(zs))
	for member, score := range zs {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member > out[j].Member
	})
	if int64(len(out)) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) PFAdd(_ context.Context, key string, members ...string) (bool, error) {
	if len(members) == 0 {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	set, ok := m.hlls[key]
	if !ok {
		set = make(map[string]struct{})
		m.hlls[key] = set
	}
	novel := false
	for _, member := range members {
		if _, seen := set[member]; !seen {
			set[member] = struct{}{}
			novel = true
		}
	}
	return novel, nil
}

func (m *Memory) PFCount(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return 0, nil
	}
	return int64(len(m.hlls[key])), nil
}

func (m *Memory) HIncrBy(_ context.Context, key, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	h[field] = strconv.FormatInt(cur+delta, 10)
	return nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return "", ErrNotFound
	}
	v, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) ListRange(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	return append([]string(nil), m.lists[key]...), nil
}

func (m *Memory) ListReplace(_ context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expiry, key)
	if len(values) == 0 {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), values...)
	return nil
}

func (m *Memory) ListPush(_ context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *Memory) ListPushFront(_ context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	m.lists[key] = append(append([]string(nil), values...), m.lists[key]...)
	return nil
}

func (m *Memory) ListPop(_ context.Context, key string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	list := m.lists[key]
	if len(list) == 0 {
		return nil, nil
	}
	if count > len(list) {
		count = len(list)
	}
	out := append([]string(nil), list[:count]...)
	rest := list[count:]
	if len(rest) == 0 {
		delete(m.lists, key)
	} else {
		m.lists[key] = rest
	}
	return out, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.deleteKey(key)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, key := range m.allKeys() {
		if m.expired(key) {
			continue
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *Memory) DeleteByPattern(ctx context.Context, pattern string) error {
	keys, err := m.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	return m.Del(ctx, keys...)
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pubs = append(m.pubs, Published{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

// PublishedMessages returns every Publish call captured so far.
func (m *Memory) PublishedMessages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.pubs...)
}

func (m *Memory) Close() error { return nil }
