package devcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"flowlens/internal/devices"
)

type fakeRegistry struct {
	devices map[string]string
	calls   int
}

func (f *fakeRegistry) LookupDeviceByIP(_ context.Context, ip string) (string, error) {
	f.calls++
	id, ok := f.devices[ip]
	if !ok {
		return "", devices.ErrNotFound
	}
	return id, nil
}

func TestResolveCachesPositiveHits(t *testing.T) {
	reg := &fakeRegistry{devices: map[string]string{"10.0.0.1": "dev-1"}}
	cache, err := New(reg, 4, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, ok, err := cache.Resolve(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !ok || id != "dev-1" {
			t.Fatalf("expected dev-1, got %q ok=%v", id, ok)
		}
	}
	if reg.calls != 1 {
		t.Fatalf("registry should be queried once, got %d", reg.calls)
	}
}

func TestResolveNegativeCacheSuppressesQueries(t *testing.T) {
	reg := &fakeRegistry{devices: map[string]string{}}
	cache, err := New(reg, 4, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, ok, err := cache.Resolve(ctx, "10.0.0.9")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if ok {
			t.Fatalf("unknown ip should not resolve")
		}
	}
	if reg.calls != 1 {
		t.Fatalf("negative cache should absorb repeats, got %d calls", reg.calls)
	}
}

func TestNegativeEntryExpires(t *testing.T) {
	reg := &fakeRegistry{devices: map[string]string{}}
	cache, err := New(reg, 4, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	if _, _, err := cache.Resolve(ctx, "10.0.0.9"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Device appeared after the TTL; the cache must re-query.
	reg.devices["10.0.0.9"] = "dev-9"
	id, ok, err := cache.Resolve(ctx, "10.0.0.9")
	if err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if !ok || id != "dev-9" {
		t.Fatalf("expected dev-9 after negative expiry, got %q ok=%v", id, ok)
	}
	if reg.calls != 2 {
		t.Fatalf("expected exactly 2 registry calls, got %d", reg.calls)
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	reg := &fakeRegistry{devices: map[string]string{}}
	for i := 0; i < 4; i++ {
		reg.devices[fmt.Sprintf("10.0.0.%d", i)] = fmt.Sprintf("dev-%d", i)
	}
	cache, err := New(reg, 3, time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := cache.Resolve(ctx, fmt.Sprintf("10.0.0.%d", i)); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}

	// Touch the oldest entry so it is protected from the next eviction.
	if _, _, err := cache.Resolve(ctx, "10.0.0.0"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	calls := reg.calls

	// Inserting a fourth entry evicts 10.0.0.1, not the touched 10.0.0.0.
	if _, _, err := cache.Resolve(ctx, "10.0.0.3"); err != nil {
		t.Fatalf("insert fourth: %v", err)
	}
	if _, _, err := cache.Resolve(ctx, "10.0.0.0"); err != nil {
		t.Fatalf("recheck touched: %v", err)
	}
	if reg.calls != calls+1 {
		t.Fatalf("touched entry should still be cached, got %d extra calls", reg.calls-calls)
	}

	if _, _, err := cache.Resolve(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("recheck evicted: %v", err)
	}
	if reg.calls != calls+2 {
		t.Fatalf("evicted entry should require a registry query")
	}
}
