package data

import (
	"encoding/binary"
	"math"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"decay-fit/internal/model"
)

// CacheEntry is a cached fit record.
type CacheEntry struct {
	Record    model.BatchRecord
	ExpiresAt time.Time
}

// ResultCache memoizes fit records keyed by series content and fit settings.
// Fits are deterministic, so a hit is always equal to a fresh fit; the cache
// only saves CPU for clients that resubmit the same series.
//
// The API enables it with ENABLE_FIT_CACHE=true; FIT_CACHE_TTL sets the
// lifetime (default 1h).
type ResultCache struct {
	mu    sync.RWMutex
	store map[uint64]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

var globalCache *ResultCache
var cacheOnce sync.Once

// GetCache returns the process-wide cache, or nil when caching is disabled.
func GetCache() *ResultCache {
	if os.Getenv("ENABLE_FIT_CACHE") != "true" {
		return nil
	}

	cacheOnce.Do(func() {
		ttl := 1 * time.Hour
		if ttlStr := os.Getenv("FIT_CACHE_TTL"); ttlStr != "" {
			if parsed, err := time.ParseDuration(ttlStr); err == nil {
				ttl = parsed
			}
		}
		globalCache = NewResultCache(ttl)

		go globalCache.cleanup(5 * time.Minute)
	})

	return globalCache
}

func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		store: make(map[uint64]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a cached record if available and not expired.
func (c *ResultCache) Get(key uint64) (model.BatchRecord, bool) {
	if c == nil {
		return model.BatchRecord{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[key]
	if !exists {
		return model.BatchRecord{}, false
	}
	if c.now().After(entry.ExpiresAt) {
		return model.BatchRecord{}, false
	}
	return entry.Record, true
}

func (c *ResultCache) Set(key uint64, rec model.BatchRecord) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[key] = &CacheEntry{
		Record:    rec,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

func (c *ResultCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[uint64]*CacheEntry)
}

func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// evictExpired removes expired entries and returns how many were dropped.
func (c *ResultCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, entry := range c.store {
		if now.After(entry.ExpiresAt) {
			delete(c.store, key)
			n++
		}
	}
	return n
}

func (c *ResultCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for range ticker.C {
		c.evictExpired()
	}
}

// GenerateCacheKey hashes the series content together with a settings
// fingerprint (any string that changes whenever the fit configuration does).
func GenerateCacheKey(s model.SampleSeries, settings string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(settings)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(s.Source)
	_, _ = d.WriteString("\x00")
	var buf [16]byte
	for _, p := range s.Samples {
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(p.T))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.V))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
