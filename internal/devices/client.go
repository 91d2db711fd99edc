// Package devices is the client side of the device-registry collaborator.
package devices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound means the registry has no device for the queried IP.
var ErrNotFound = errors.New("devices: no device for ip")

// Registry resolves an IP to a device identifier.
type Registry interface {
	LookupDeviceByIP(ctx context.Context, ip string) (string, error)
}

// Config configures the HTTP registry client. URL contains an {ip}
// placeholder, e.g. http://registry.local/api/device?ip={ip}.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client queries the registry over HTTP.
type Client struct {
	url    string
	token  string
	client *http.Client
}

// NewClient builds a registry client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("device registry url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		token:  strings.TrimSpace(cfg.Token),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type lookupResponse struct {
	DeviceID string `json:"device_id"`
}

// LookupDeviceByIP queries the registry. A 404 maps to ErrNotFound.
func (c *Client) LookupDeviceByIP(ctx context.Context, ip string) (string, error) {
	endpoint := strings.ReplaceAll(c.url, "{ip}", url.QueryEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query device registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("device registry returned status %d", resp.StatusCode)
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode registry response: %w", err)
	}
	if out.DeviceID == "" {
		return "", ErrNotFound
	}
	return out.DeviceID, nil
}
