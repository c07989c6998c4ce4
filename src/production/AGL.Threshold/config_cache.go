package threshold

import (
	"context"
	"sync"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type cacheEntry struct {
	configs  []aglmodels.SensorConfig
	loadedAt time.Time
}

// configCache memoizes per-device sensor configurations with a fixed TTL.
// Mutating endpoints call Invalidate so clients see their changes on the
// next telemetry tick instead of up to a TTL later.
type configCache struct {
	repo interfaces.SensorConfigRepository
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newConfigCache(repo interfaces.SensorConfigRepository, ttl time.Duration) *configCache {
	return &configCache{
		repo:    repo,
		ttl:     ttl,
		entries: map[string]cacheEntry{},
		now:     time.Now,
	}
}

func (c *configCache) Get(ctx context.Context, deviceID string) ([]aglmodels.SensorConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[deviceID]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.configs, nil
	}

	configs, err := c.repo.ListConfigs(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[deviceID] = cacheEntry{configs: configs, loadedAt: c.now()}
	c.mu.Unlock()
	return configs, nil
}

func (c *configCache) Invalidate(deviceID string) {
	c.mu.Lock()
	delete(c.entries, deviceID)
	c.mu.Unlock()
}
