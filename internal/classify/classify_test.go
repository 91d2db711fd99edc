package classify

import (
	"context"
	"errors"
	"testing"

	"flowlens/pkg/models"
)

type fakeResolver struct {
	records map[string]models.GeoRecord
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, ip string) (models.GeoRecord, error) {
	if f.err != nil {
		return models.GeoRecord{}, f.err
	}
	rec, ok := f.records[ip]
	if !ok {
		return models.GeoRecord{IP: ip}, nil
	}
	return rec, nil
}

var localRecord = models.GeoRecord{Country: "中国", Province: "北京", City: "北京"}

func TestEnrichPrivateAddressGetsLocalRecord(t *testing.T) {
	c := New(&fakeResolver{}, localRecord, nil)
	ev := &models.Event{SrcIP: "192.168.1.10", DstIP: "10.0.0.2"}

	c.Enrich(context.Background(), ev)

	if !ev.SrcPrivate || !ev.DstPrivate {
		t.Fatalf("both addresses should classify private")
	}
	if ev.SrcRecord == nil || ev.SrcRecord.City != "北京" {
		t.Fatalf("private source should carry the local record, got %+v", ev.SrcRecord)
	}
	if ev.SrcRecord.IP != "192.168.1.10" {
		t.Fatalf("record should carry the event's own ip, got %s", ev.SrcRecord.IP)
	}
	if ev.SrcIPv6 || ev.DstIPv6 {
		t.Fatalf("IPv4 addresses misclassified as v6")
	}
}

func TestEnrichGlobalIPv4UsesResolver(t *testing.T) {
	resolver := &fakeResolver{records: map[string]models.GeoRecord{
		"8.8.8.8": {IP: "8.8.8.8", Country: "美国", City: "Mountain View"},
	}}
	c := New(resolver, localRecord, nil)
	ev := &models.Event{SrcIP: "8.8.8.8"}

	c.Enrich(context.Background(), ev)

	if ev.SrcPrivate {
		t.Fatalf("global address classified private")
	}
	if ev.SrcRecord == nil || ev.SrcRecord.Country != "美国" {
		t.Fatalf("expected resolved record, got %+v", ev.SrcRecord)
	}
}

func TestEnrichGlobalIPv6GetsEmptyPlaceholder(t *testing.T) {
	c := New(&fakeResolver{err: errors.New("resolver must not be called for v6")}, localRecord, nil)
	ev := &models.Event{SrcIP: "2001:4860:4860::8888"}

	c.Enrich(context.Background(), ev)

	if !ev.SrcIPv6 {
		t.Fatalf("address should classify as IPv6")
	}
	if ev.SrcPrivate {
		t.Fatalf("global v6 classified private")
	}
	if ev.SrcRecord == nil || !ev.SrcRecord.IsZero() {
		t.Fatalf("global v6 should carry an empty placeholder, got %+v", ev.SrcRecord)
	}
}

func TestEnrichToleratesBadAddressesAndResolverFailures(t *testing.T) {
	c := New(&fakeResolver{err: errors.New("service down")}, localRecord, nil)
	ev := &models.Event{SrcIP: "not-an-ip", DstIP: "8.8.4.4"}

	c.Enrich(context.Background(), ev)

	if ev.SrcRecord != nil {
		t.Fatalf("unparsable address should yield nil record, got %+v", ev.SrcRecord)
	}
	if ev.DstRecord != nil {
		t.Fatalf("failed lookup should yield nil record, got %+v", ev.DstRecord)
	}
}

func TestEnrichEmptyAddresses(t *testing.T) {
	c := New(&fakeResolver{}, localRecord, nil)
	ev := &models.Event{}

	c.Enrich(context.Background(), ev)

	if ev.SrcRecord != nil || ev.DstRecord != nil || ev.SrcPrivate || ev.DstPrivate {
		t.Fatalf("empty addresses should leave enrichment zeroed: %+v", ev)
	}
}
