package client

import (
	"fmt"
	"strings"
	"sync"

	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// CacheManager caches slug→ID mappings for inventory objects so generators
// resolve foreign keys without re-querying. The cache belongs to one client
// and is never shared across concurrent generator invocations.
type CacheManager struct {
	client *NetBoxClient
	cache  map[string]map[string]int
	mu     sync.RWMutex
}

// NewCacheManager creates a new cache manager
func NewCacheManager(client *NetBoxClient) *CacheManager {
	return &CacheManager{
		client: client,
		cache:  make(map[string]map[string]int),
	}
}

// LoadGlobal loads global resources (not site-specific)
func (cm *CacheManager) LoadGlobal() error {
	cm.client.logger.Info("Loading global caches...")

	resources := map[string]string{
		"device_types": "dcim/device-types",
		"roles":        "dcim/device-roles",
		"sites":        "dcim/sites",
	}

	for resource, path := range resources {
		cm.client.logger.Debug("→ %s", resource)
		if err := cm.loadResource(resource, path, nil); err != nil {
			return fmt.Errorf("failed to load %s: %w", resource, err)
		}
	}

	cm.client.logger.Success("Global caches loaded")
	return nil
}

// LoadSite loads site-specific resources
func (cm *CacheManager) LoadSite(siteSlug string) error {
	cm.client.logger.Info("Reloading cache for site: %s", siteSlug)

	siteID, ok := cm.GetID("sites", siteSlug)
	if !ok {
		if err := cm.loadResource("sites", "dcim/sites", nil); err != nil {
			return fmt.Errorf("failed to load sites: %w", err)
		}
		siteID, ok = cm.GetID("sites", siteSlug)
		if !ok {
			return fmt.Errorf("site %s not found", siteSlug)
		}
	}

	cm.client.logger.Debug("Found site: %s (ID: %d)", siteSlug, siteID)

	resources := map[string]string{
		"racks":       "dcim/racks",
		"rack_groups": "dcim/rack-groups",
	}

	for resource, path := range resources {
		filters := map[string]interface{}{"site_id": siteID}
		if err := cm.loadResource(resource, path, filters); err != nil {
			return fmt.Errorf("failed to load %s: %w", resource, err)
		}
	}

	return nil
}

// Put records a freshly created object so later lookups in the same run hit
// the cache rather than the API
func (cm *CacheManager) Put(resource, identifier string, id int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.cache[resource] == nil {
		cm.cache[resource] = make(map[string]int)
	}
	cm.cache[resource][identifier] = id
}

// loadResource loads a specific resource into cache
func (cm *CacheManager) loadResource(resource, path string, filters map[string]interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.cache[resource] == nil {
		cm.cache[resource] = make(map[string]int)
	}

	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid path: %s", path)
	}

	objects, err := cm.client.Filter(parts[0], parts[1], filters)
	if err != nil {
		return fmt.Errorf("failed to filter %s: %w", resource, err)
	}

	for _, obj := range objects {
		id := utils.GetIDFromObject(obj)
		if id == 0 {
			continue
		}

		if slug, ok := obj["slug"].(string); ok {
			cm.cache[resource][slug] = id
		}

		if name, ok := obj["name"].(string); ok {
			cm.cache[resource][name] = id
		} else if model, ok := obj["model"].(string); ok {
			cm.cache[resource][model] = id
		}
	}

	return nil
}

// GetID retrieves an ID from the cache
func (cm *CacheManager) GetID(resource, identifier string) (int, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.cache[resource] == nil {
		return 0, false
	}

	id, ok := cm.cache[resource][identifier]
	return id, ok
}

// Invalidate clears the cache for a specific resource
func (cm *CacheManager) Invalidate(resource string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	delete(cm.cache, resource)
}

// Size returns the number of cached items for a resource
func (cm *CacheManager) Size(resource string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.cache[resource] == nil {
		return 0
	}

	return len(cm.cache[resource])
}
