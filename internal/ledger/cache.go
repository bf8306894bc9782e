package ledger

import (
	"sync"

	"github.com/UHCToken/uhc-api/internal/models"
)

// AssetCache is the client's in-memory registry of issued assets. Issuance
// registers the new asset here before the ledger sequence runs so subsequent
// lookups see it immediately; on failure the whole cache is restored from a
// snapshot taken beforehand, which stays correct under concurrent issuance
// attempts.
type AssetCache struct {
	mu     sync.RWMutex
	assets []*models.Asset
}

func NewAssetCache(assets []*models.Asset) *AssetCache {
	c := &AssetCache{assets: make([]*models.Asset, len(assets))}
	copy(c.assets, assets)
	return c
}

// GetByCode returns the cached asset with the given code, or nil.
func (c *AssetCache) GetByCode(code string) *models.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.assets {
		if a.Code == code {
			return a
		}
	}
	return nil
}

// Register adds an asset to the cache.
func (c *AssetCache) Register(asset *models.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets = append(c.assets, asset)
}

// All returns a copy of the cached asset list.
func (c *AssetCache) All() []*models.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// Snapshot captures the current cache contents for later Restore.
func (c *AssetCache) Snapshot() []*models.Asset {
	return c.All()
}

// Restore replaces the cache contents wholesale with a prior snapshot.
func (c *AssetCache) Restore(snapshot []*models.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets = make([]*models.Asset, len(snapshot))
	copy(c.assets, snapshot)
}
