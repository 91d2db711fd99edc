package input

import (
	"context"
	"testing"
	"time"

	"flowlens/internal/store"
)

func payload(src string, at time.Time) string {
	return `{"src_ip":"` + src + `","dst_ip":"10.0.0.1","src_port":40000,"dst_port":443,"protocol":"tcp","occurred_at":"` + at.Format(time.RFC3339) + `"}`
}

func TestDrainReversesFreshestFirstFeed(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// Sensors push freshest first.
	if err := mem.ListPush(ctx, "events",
		payload("3.3.3.3", base.Add(2*time.Minute)),
		payload("2.2.2.2", base.Add(time.Minute)),
		payload("1.1.1.1", base),
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	consumer, err := NewConsumer(mem, Config{Key: "events", BatchSize: 10})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	batch, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if batch.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", batch.Len())
	}
	if batch.Events[0].SrcIP != "1.1.1.1" || batch.Events[2].SrcIP != "3.3.3.3" {
		t.Fatalf("events should arrive oldest first: %s .. %s", batch.Events[0].SrcIP, batch.Events[2].SrcIP)
	}
}

func TestDrainRespectsBatchSizeAndEmptiesList(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := mem.ListPush(ctx, "events", payload("1.1.1.1", base)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	consumer, err := NewConsumer(mem, Config{Key: "events", BatchSize: 3})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	first, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if first.Len() != 3 {
		t.Fatalf("expected batch of 3, got %d", first.Len())
	}
	second, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain rest: %v", err)
	}
	if second.Len() != 2 {
		t.Fatalf("expected remaining 2, got %d", second.Len())
	}
	third, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain empty: %v", err)
	}
	if third.Len() != 0 {
		t.Fatalf("expected empty batch, got %d", third.Len())
	}
}

func TestDrainDropsUndecodablePayloads(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	if err := mem.ListPush(ctx, "events", "not-json", payload("1.1.1.1", time.Now())); err != nil {
		t.Fatalf("seed: %v", err)
	}

	consumer, err := NewConsumer(mem, Config{Key: "events", BatchSize: 10})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	batch, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if batch.Len() != 1 {
		t.Fatalf("expected 1 decodable event, got %d", batch.Len())
	}
}

func TestRequeueRestoresOriginalOrder(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	original := []string{
		payload("3.3.3.3", base.Add(2*time.Minute)),
		payload("2.2.2.2", base.Add(time.Minute)),
		payload("1.1.1.1", base),
	}
	if err := mem.ListPush(ctx, "events", original...); err != nil {
		t.Fatalf("seed: %v", err)
	}

	consumer, err := NewConsumer(mem, Config{Key: "events", BatchSize: 10})
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	batch, err := consumer.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := consumer.Requeue(ctx, batch); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	restored, err := mem.ListRange(ctx, "events")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("expected 3 restored payloads, got %d", len(restored))
	}
	for i := range original {
		if restored[i] != original[i] {
			t.Fatalf("payload %d out of order after requeue", i)
		}
	}
}
