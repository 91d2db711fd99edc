// Package classify enriches raw events with address family, privacy and
// geography before any counting stage sees them.
package classify

import (
	"context"
	"net"
	"strings"

	"flowlens/internal/devcache"
	"flowlens/internal/geo"
	"flowlens/internal/logger"
	"flowlens/pkg/models"
)

// Classifier resolves source and destination addresses independently.
// Individual parse or lookup failures degrade to nil records; they never
// fail the event, let alone the batch.
type Classifier struct {
	resolver geo.Resolver
	local    models.GeoRecord
	devices  *devcache.Cache
}

// New builds a classifier. resolver handles global IPv4 lookups, local is the
// singleton record attached to private addresses, devices may be nil when
// destination-device resolution is not wanted.
func New(resolver geo.Resolver, local models.GeoRecord, devices *devcache.Cache) *Classifier {
	return &Classifier{resolver: resolver, local: local, devices: devices}
}

// Enrich fills in the classification fields of ev in place.
func (c *Classifier) Enrich(ctx context.Context, ev *models.Event) {
	ev.SrcRecord, ev.SrcPrivate, ev.SrcIPv6 = c.classify(ctx, ev.SrcIP)
	ev.DstRecord, ev.DstPrivate, ev.DstIPv6 = c.classify(ctx, ev.DstIP)

	if c.devices != nil && ev.DstIP != "" {
		id, ok, err := c.devices.Resolve(ctx, ev.DstIP)
		if err != nil {
			logger.Warnf("Device resolution for %s failed: %v", ev.DstIP, err)
		} else if ok {
			ev.DstDevice = id
		}
	}
}

func (c *Classifier) classify(ctx context.Context, ip string) (rec *models.GeoRecord, private, ipv6 bool) {
	trimmed := strings.TrimSpace(ip)
	if trimmed == "" {
		return nil, false, false
	}
	parsed := net.ParseIP(trimmed)
	if parsed == nil {
		logger.Warnf("Unparsable address %q, continuing without geography", ip)
		return nil, false, false
	}

	ipv6 = parsed.To4() == nil
	private = isPrivate(parsed)

	if private {
		local := c.local
		local.IP = trimmed
		return &local, true, ipv6
	}

	// Geography lookup is IPv4-only; global IPv6 gets an empty placeholder.
	if ipv6 {
		return &models.GeoRecord{IP: trimmed}, false, true
	}

	looked, err := c.resolver.Resolve(ctx, trimmed)
	if err != nil {
		logger.Warnf("Geography lookup for %s failed: %v", trimmed, err)
		return nil, false, false
	}
	return &looked, false, false
}

func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
