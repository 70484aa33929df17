package catalog

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes catalog lookups for the duration of a single run. Entries are
// grouped by catalog id. Failed lookups are not cached so a later member can
// retry them. Concurrent identical lookups share one request.
type Cache struct {
	inner Client
	group singleflight.Group

	mu       sync.Mutex
	catalogs map[string]*catalogEntry
}

type catalogEntry struct {
	versions map[string]versionEntry
	updates  map[updatesKey][]VersionUpdate
}

type versionEntry struct {
	offering Offering
	found    bool
}

type updatesKey struct {
	offeringID string
	kind       string
	flavor     string
}

var _ Client = (*Cache)(nil)

// NewCache wraps inner with a run-scoped cache.
func NewCache(inner Client) *Cache {
	return &Cache{
		inner:    inner,
		catalogs: make(map[string]*catalogEntry),
	}
}

// FetchVersion implements Client.
func (c *Cache) FetchVersion(ctx context.Context, locator string) (Offering, bool, error) {
	catalogID := catalogIDOf(locator)

	c.mu.Lock()
	if entry, ok := c.entry(catalogID).versions[locator]; ok {
		c.mu.Unlock()
		return entry.offering, entry.found, nil
	}
	c.mu.Unlock()

	value, err, _ := c.group.Do("version\x00"+locator, func() (any, error) {
		offering, found, err := c.inner.FetchVersion(ctx, locator)
		if err != nil {
			return nil, err
		}
		entry := versionEntry{offering: offering, found: found}
		c.mu.Lock()
		c.entry(catalogID).versions[locator] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return Offering{}, false, err
	}
	entry := value.(versionEntry)
	return entry.offering, entry.found, nil
}

// FetchUpdates implements Client. The returned slice is a copy.
func (c *Cache) FetchUpdates(ctx context.Context, offeringID, catalogID, kind, flavor string) ([]VersionUpdate, error) {
	key := updatesKey{offeringID: offeringID, kind: kind, flavor: flavor}

	c.mu.Lock()
	if updates, ok := c.entry(catalogID).updates[key]; ok {
		c.mu.Unlock()
		return cloneUpdates(updates), nil
	}
	c.mu.Unlock()

	flightKey := strings.Join([]string{"updates", catalogID, offeringID, kind, flavor}, "\x00")
	value, err, _ := c.group.Do(flightKey, func() (any, error) {
		updates, err := c.inner.FetchUpdates(ctx, offeringID, catalogID, kind, flavor)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entry(catalogID).updates[key] = updates
		c.mu.Unlock()
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneUpdates(value.([]VersionUpdate)), nil
}

// Len reports the number of cached catalogs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.catalogs)
}

// entry must be called with c.mu held.
func (c *Cache) entry(catalogID string) *catalogEntry {
	entry, ok := c.catalogs[catalogID]
	if !ok {
		entry = &catalogEntry{
			versions: make(map[string]versionEntry),
			updates:  make(map[updatesKey][]VersionUpdate),
		}
		c.catalogs[catalogID] = entry
	}
	return entry
}

func catalogIDOf(locator string) string {
	catalogID, _, _ := strings.Cut(locator, ".")
	return catalogID
}

func cloneUpdates(updates []VersionUpdate) []VersionUpdate {
	if updates == nil {
		return nil
	}
	out := make([]VersionUpdate, len(updates))
	copy(out, updates)
	return out
}
