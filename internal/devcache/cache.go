// Package devcache bounds device-registry lookups with an LRU positive cache
// and a TTL negative cache for IPs known to have no device.
package devcache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"flowlens/internal/devices"
	"flowlens/internal/logger"
)

// Cache fronts a device registry. Safe for concurrent use.
type Cache struct {
	registry devices.Registry
	positive *lru.Cache[string, string]
	negTTL   time.Duration

	mu       sync.Mutex
	negative map[string]time.Time
}

// New builds a cache of the given positive capacity. negTTL controls how long
// a "no such device" answer is remembered.
func New(registry devices.Registry, capacity int, negTTL time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = 128
	}
	if negTTL <= 0 {
		negTTL = 30 * time.Second
	}
	positive, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		registry: registry,
		positive: positive,
		negTTL:   negTTL,
		negative: make(map[string]time.Time),
	}, nil
}

// Resolve maps an IP to a device id. The second return is false when no
// device is known, either from the negative cache or a registry miss.
// Registry errors other than not-found are returned so the caller can decide;
// nothing is cached for them.
func (c *Cache) Resolve(ctx context.Context, ip string) (string, bool, error) {
	if c.negativeHit(ip) {
		return "", false, nil
	}
	if id, ok := c.positive.Get(ip); ok {
		return id, true, nil
	}

	id, err := c.registry.LookupDeviceByIP(ctx, ip)
	if errors.Is(err, devices.ErrNotFound) {
		c.rememberMiss(ip)
		return "", false, nil
	}
	if err != nil {
		logger.Warnf("Device registry lookup for %s failed: %v", ip, err)
		return "", false, err
	}

	c.positive.Add(ip, id)
	return id, true, nil
}

func (c *Cache) negativeHit(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	dl, ok := c.negative[ip]
	if !ok {
		return false
	}
	if time.Now().After(dl) {
		delete(c.negative, ip)
		return false
	}
	return true
}

func (c *Cache) rememberMiss(ip string) {
	c.mu.Lock()
	c.negative[ip] = time.Now().Add(c.negTTL)
	c.mu.Unlock()
}

// Len reports the number of positive entries.
func (c *Cache) Len() int {
	return c.positive.Len()
}
