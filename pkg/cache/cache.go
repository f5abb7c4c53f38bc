// Package cache holds generated insights per session so chat queries
// can answer from them without re-running agents. Entries live in
// process memory only; a restart loses them and users regenerate.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/protocol"
)

const writerStripes = 16

type key struct {
	sessionID string
	docType   protocol.DocumentType
}

// Cache maps (session, document type) to cached insights with a TTL.
// Reads share an RWMutex; writes to one slot serialize on a striped
// mutex so concurrent insights runs for the same session cannot
// interleave a purge with a fresh put.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]*protocol.CachedInsights
	writers [writerStripes]sync.Mutex
	ttl     time.Duration

	// now is swappable for TTL tests.
	now func() time.Time
}

// New builds a cache with the configured TTL.
func New(cfg *config.CacheConfig) *Cache {
	ttlHours := cfg.TTLHours
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &Cache{
		entries: make(map[key]*protocol.CachedInsights),
		ttl:     time.Duration(ttlHours) * time.Hour,
		now:     time.Now,
	}
}

func (c *Cache) writerFor(k key) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(k.sessionID))
	h.Write([]byte{0})
	h.Write([]byte(k.docType))
	return &c.writers[h.Sum32()%writerStripes]
}

// Put stores a complete result map and stamps a fresh expiry. The map
// is copied in; the returned entry is the stored value and must be
// treated as read-only.
func (c *Cache) Put(sessionID string, docType protocol.DocumentType, results map[protocol.AgentCategory]*protocol.AgentResult) *protocol.CachedInsights {
	k := key{sessionID: sessionID, docType: docType}
	w := c.writerFor(k)
	w.Lock()
	defer w.Unlock()

	copied := make(map[protocol.AgentCategory]*protocol.AgentResult, len(results))
	for cat, r := range results {
		copied[cat] = r
	}
	now := c.now()
	entry := &protocol.CachedInsights{
		SessionID:    sessionID,
		DocumentType: docType,
		Results:      copied,
		GeneratedAt:  now,
		ExpiresAt:    now.Add(c.ttl),
	}

	c.mu.Lock()
	c.entries[k] = entry
	c.mu.Unlock()
	return entry
}

// Get returns the live entry for the slot, or nil when absent or
// expired. Expired entries are purged on access.
func (c *Cache) Get(ctx context.Context, sessionID string, docType protocol.DocumentType) *protocol.CachedInsights {
	entry := c.lookup(key{sessionID: sessionID, docType: docType})
	if m := observability.GetGlobalMetrics(); m != nil {
		m.RecordCacheLookup(ctx, entry != nil)
	}
	return entry
}

func (c *Cache) lookup(k key) *protocol.CachedInsights {
	c.mu.RLock()
	entry := c.entries[k]
	c.mu.RUnlock()
	if entry == nil {
		return nil
	}
	if c.now().Before(entry.ExpiresAt) {
		return entry
	}

	// Purge, but only if the slot was not replaced while we waited:
	// a concurrent Put must never be deleted by a stale expiry check.
	w := c.writerFor(k)
	w.Lock()
	defer w.Unlock()
	c.mu.Lock()
	if cur, ok := c.entries[k]; ok && !c.now().Before(cur.ExpiresAt) {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

// Clear drops the session's slot for one document type, or both when
// docType is empty.
func (c *Cache) Clear(sessionID string, docType protocol.DocumentType) {
	types := []protocol.DocumentType{docType}
	if docType == "" {
		types = []protocol.DocumentType{protocol.DocumentTypeTransactions, protocol.DocumentTypeFinancial}
	}
	for _, dt := range types {
		k := key{sessionID: sessionID, docType: dt}
		w := c.writerFor(k)
		w.Lock()
		c.mu.Lock()
		delete(c.entries, k)
		c.mu.Unlock()
		w.Unlock()
	}
}

// Status reports which insights the session holds and when they lapse.
func (c *Cache) Status(sessionID string) protocol.CacheStatus {
	var status protocol.CacheStatus
	if entry := c.lookup(key{sessionID: sessionID, docType: protocol.DocumentTypeTransactions}); entry != nil {
		status.HasTransactionInsights = true
		expires := entry.ExpiresAt
		status.TransactionInsightsExpiresAt = &expires
	}
	if entry := c.lookup(key{sessionID: sessionID, docType: protocol.DocumentTypeFinancial}); entry != nil {
		status.HasFinancialInsights = true
		expires := entry.ExpiresAt
		status.FinancialInsightsExpiresAt = &expires
	}
	return status
}

// Len reports the number of live and expired entries still held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
