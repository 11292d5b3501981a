// Package extraction defines the attachment extraction contract and the
// content-addressed cache shared by every extraction tool.
package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache bounds.
const (
	// MaxEntries is the cache capacity; overflow evicts the oldest 20%.
	MaxEntries = 100
	// EntryTTL is how long an extraction result stays valid.
	EntryTTL = 24 * time.Hour
)

// Entry is one cached extraction result.
type Entry struct {
	Text      string    `json:"text"`
	FileName  string    `json:"file_name"`
	FileType  string    `json:"file_type"`
	ToolsUsed []string  `json:"tools_used"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats reports cache occupancy and hit counters.
type Stats struct {
	Entries   int `json:"entries"`
	Hits      int `json:"hits"`
	Misses    int `json:"misses"`
	Evictions int `json:"evictions"`
}

// cacheKey scopes entries by tenant so identical bytes across tenants stay
// independent.
type cacheKey struct {
	tenantID    string
	contentHash string
}

// Cache is the content-addressed, TTL+LRU extraction cache. Insertion order
// drives overflow eviction; expiry is swept opportunistically on Get/Set and
// periodically by the cleanup service.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*Entry
	order   []cacheKey // insertion order, oldest first
	stats   Stats
}

// NewCache creates an empty extraction cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[cacheKey]*Entry),
	}
}

// ContentHash returns the SHA-256 hex digest of raw attachment bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached entry for (tenant, hash) if present and unexpired.
// Expired entries are deleted on access.
func (c *Cache) Get(hash, tenantID string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked(time.Now())

	key := cacheKey{tenantID: tenantID, contentHash: hash}
	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil
	}
	c.stats.Hits++
	copied := *entry
	return &copied
}

// Set inserts an entry with the current timestamp, triggering overflow
// eviction when the cache is over capacity.
func (c *Cache) Set(hash string, entry Entry, tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.sweepLocked(now)

	key := cacheKey{tenantID: tenantID, contentHash: hash}
	entry.Timestamp = now
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry

	if len(c.entries) > MaxEntries {
		c.evictOldestLocked(MaxEntries / 5)
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*Entry)
	c.order = nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0
	kept := c.order[:0]
	for _, key := range c.order {
		entry, ok := c.entries[key]
		if !ok {
			continue
		}
		if now.Sub(entry.Timestamp) > EntryTTL {
			delete(c.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
	return removed
}

func (c *Cache) evictOldestLocked(n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && len(c.order) > 0; i++ {
		key := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, key)
		c.stats.Evictions++
	}
}
