// Package geo is the client side of the IP-to-geography collaborator plus the
// country-label normalization applied to its answers. Lookups are IPv4-only;
// global IPv6 addresses are handed an empty record upstream.
package geo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"flowlens/pkg/models"
)

// Resolver answers geography lookups for IPv4 literals.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (models.GeoRecord, error)
}

// Config configures the HTTP resolver. URL contains an {ip} placeholder.
type Config struct {
	URL        string
	Token      string
	Timeout    time.Duration
	Normalizer *Normalizer
}

// HTTPResolver queries a geography service over HTTP and normalizes the
// country label of every answer.
type HTTPResolver struct {
	url        string
	token      string
	client     *http.Client
	normalizer *Normalizer
}

// NewHTTPResolver builds the resolver.
func NewHTTPResolver(cfg Config) (*HTTPResolver, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("geography service url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPResolver{
		url:        cfg.URL,
		token:      strings.TrimSpace(cfg.Token),
		client:     &http.Client{Timeout: timeout},
		normalizer: cfg.Normalizer,
	}, nil
}

// Resolve looks up one IPv4 literal. Non-IPv4 input is rejected outright.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (models.GeoRecord, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.To4() == nil {
		return models.GeoRecord{}, fmt.Errorf("geography lookup requires an IPv4 literal, got %q", ip)
	}

	endpoint := strings.ReplaceAll(r.url, "{ip}", url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.GeoRecord{}, fmt.Errorf("build geography request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return models.GeoRecord{}, fmt.Errorf("query geography service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GeoRecord{}, fmt.Errorf("geography service returned status %d", resp.StatusCode)
	}

	var rec models.GeoRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return models.GeoRecord{}, fmt.Errorf("decode geography response: %w", err)
	}
	rec.IP = ip
	if r.normalizer != nil {
		rec.Country = r.normalizer.Country(rec.Country)
	}
	return rec, nil
}
