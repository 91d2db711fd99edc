package recent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"flowlens/internal/store"
	"flowlens/pkg/models"
)

var base = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func record(ip string, offset int) models.QueueRecord {
	return models.QueueRecord{
		IP:         ip,
		Country:    "US",
		UpdateTime: base.Add(time.Duration(offset) * time.Minute),
	}
}

func TestSaveKeepsMostRecentAcrossBatches(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	first := New(mem, "test", "external", 5)
	for i := 0; i < 4; i++ {
		first.Push(record(fmt.Sprintf("10.0.0.%d", i), i))
	}
	if err := first.Save(ctx); err != nil {
		t.Fatalf("save first batch: %v", err)
	}

	second := New(mem, "test", "external", 5)
	for i := 4; i < 7; i++ {
		second.Push(record(fmt.Sprintf("10.0.0.%d", i), i))
	}
	if err := second.Save(ctx); err != nil {
		t.Fatalf("save second batch: %v", err)
	}

	got, err := second.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected capacity-bound length 5, got %d", len(got))
	}
	// 7 pushes total, offsets 0..6: the queue holds offsets 6 down to 2.
	for i, rec := range got {
		want := fmt.Sprintf("10.0.0.%d", 6-i)
		if rec.IP != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, rec.IP)
		}
		if i > 0 && rec.UpdateTime.After(got[i-1].UpdateTime) {
			t.Fatalf("records not sorted newest first at position %d", i)
		}
	}
}

func TestQueueDoesNotDeduplicate(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	q := New(mem, "test", "external", 5)
	q.Push(record("1.2.3.4", 1))
	q.Push(record("1.2.3.4", 2))
	if err := q.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := q.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("same IP twice should occupy two slots, got %d", len(got))
	}
}

func TestLocalBufferIsCapped(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	q := New(mem, "test", "external", 3)
	for i := 0; i < 10; i++ {
		q.Push(record(fmt.Sprintf("10.0.0.%d", i), i))
	}
	if len(q.local) != 3 {
		t.Fatalf("local buffer should be capped at capacity, got %d", len(q.local))
	}
	if err := q.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := q.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].IP != "10.0.0.9" {
		t.Fatalf("newest record should survive the local cap, got %s", got[0].IP)
	}
}

func TestSetOverwrites(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	q := New(mem, "test", "external", 5)
	q.Push(record("1.1.1.1", 1))
	if err := q.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := q.Set(ctx, []models.QueueRecord{record("2.2.2.2", 9), record("3.3.3.3", 8)}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := q.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(got) != 2 || got[0].IP != "2.2.2.2" || got[1].IP != "3.3.3.3" {
		t.Fatalf("set should replace queue contents, got %+v", got)
	}
}
