package rank

import (
	"context"
	"testing"
	"time"

	"flowlens/internal/store"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestTopNOrdersByDescendingCount(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	agg := New(mem, "test:rank", "src_ip", testNow)
	agg.Add("1.2.3.4", 10)
	agg.Add("5.6.7.8", 8)
	agg.Add("9.9.9.9", 3)
	if err := agg.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := agg.TopN(ctx, 5)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Member != "1.2.3.4" || entries[0].Count != 10 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Member != "5.6.7.8" || entries[1].Count != 8 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestSaveAccumulatesAcrossBatches(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	first := New(mem, "test:rank", "dst_port", testNow)
	first.Add("443", 4)
	first.Add("80", 2)
	if err := first.Save(ctx); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := New(mem, "test:rank", "dst_port", testNow)
	second.Add("443", 3)
	if err := second.Save(ctx); err != nil {
		t.Fatalf("save second: %v", err)
	}

	entries, err := second.TopN(ctx, 1)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(entries) != 1 || entries[0].Member != "443" || entries[0].Count != 7 {
		t.Fatalf("expected 443=7, got %+v", entries)
	}
}

func TestTopNWithOtherCoversRemainder(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	agg := New(mem, "test:rank", "dst_port", testNow)
	agg.Add("443", 10)
	agg.Add("80", 6)
	agg.Add("22", 3)
	agg.Add("8080", 2)
	if err := agg.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := agg.TopNWithOther(ctx, 2)
	if err != nil {
		t.Fatalf("topn with other: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected top 2 plus other, got %+v", entries)
	}
	last := entries[len(entries)-1]
	if last.Member != OtherMember || last.Count != 5 {
		t.Fatalf("expected other=5, got %+v", last)
	}

	var sum int64
	for _, e := range entries {
		sum += e.Count
	}
	if sum != 21 {
		t.Fatalf("top counts plus remainder should equal running total, got %d", sum)
	}
}

func TestTopNWithOtherOmitsEmptyRemainder(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	agg := New(mem, "test:rank", "dst_port", testNow)
	agg.Add("443", 5)
	if err := agg.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := agg.TopNWithOther(ctx, 5)
	if err != nil {
		t.Fatalf("topn with other: %v", err)
	}
	if len(entries) != 1 || entries[0].Member != "443" {
		t.Fatalf("did not expect an other bucket: %+v", entries)
	}
}

func TestTopNPercentIsRelativeToMax(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	agg := New(mem, "test:rank", "src_ip", testNow)
	agg.Add("1.2.3.4", 10)
	agg.Add("5.6.7.8", 8)
	agg.Add("4.4.4.4", 1)
	if err := agg.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	entries, err := agg.TopNPercent(ctx, 3)
	if err != nil {
		t.Fatalf("topn percent: %v", err)
	}
	if entries[0].Percent != 100 {
		t.Fatalf("top entry percent should be 100, got %d", entries[0].Percent)
	}
	if entries[1].Percent != 80 {
		t.Fatalf("second entry percent should be 80, got %d", entries[1].Percent)
	}
	if entries[2].Percent != 10 {
		t.Fatalf("third entry percent should be 10, got %d", entries[2].Percent)
	}
}

func TestCleanRemovesEveryDateForTheDimension(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	yesterday := New(mem, "test:rank", "src_ip", testNow.AddDate(0, 0, -1))
	yesterday.Add("1.1.1.1", 1)
	if err := yesterday.Save(ctx); err != nil {
		t.Fatalf("save yesterday: %v", err)
	}

	today := New(mem, "test:rank", "src_ip", testNow)
	today.Add("2.2.2.2", 1)
	if err := today.Save(ctx); err != nil {
		t.Fatalf("save today: %v", err)
	}

	if err := today.Clean(ctx); err != nil {
		t.Fatalf("clean: %v", err)
	}

	entries, err := today.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after clean, got %+v", entries)
	}
	keys, err := mem.Keys(ctx, "test:rank:src_ip:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clean, got %v", keys)
	}
}
