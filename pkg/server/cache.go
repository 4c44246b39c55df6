package server

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"
)

// ResultCache keeps the matches of recent searches. The library does not
// change while serving, so entries never go stale; the least recently used
// one is evicted once the cache is full.
type ResultCache struct {
	results     map[string][]MatchResult
	accessTime  map[string]int64
	accessCount int64
	hits        int64
	maxEntries  int
	mu          sync.Mutex
}

// NewResultCache creates a cache of up to maxEntries searches. A cache of
// size zero stores nothing.
func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{
		results:    make(map[string][]MatchResult, maxEntries),
		accessTime: make(map[string]int64, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns the cached matches for key.
func (rc *ResultCache) Get(key string) ([]MatchResult, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	matches, ok := rc.results[key]
	if ok {
		rc.hits++
		rc.markAccessed(key)
	}
	return matches, ok
}

// Put stores matches under key.
func (rc *ResultCache) Put(key string, matches []MatchResult) {
	if rc.maxEntries <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.results[key]; !ok && len(rc.results) >= rc.maxEntries {
		rc.evictLRU()
	}
	rc.results[key] = matches
	rc.markAccessed(key)
}

// Stats reports the cache size and hit count.
func (rc *ResultCache) Stats() map[string]int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return map[string]int{
		"cachedSearches": len(rc.results),
		"maxSearches":    rc.maxEntries,
		"cacheHits":      int(rc.hits),
	}
}

func (rc *ResultCache) markAccessed(key string) {
	rc.accessCount++
	rc.accessTime[key] = rc.accessCount
}

func (rc *ResultCache) evictLRU() {
	var oldestKey string
	var oldestTime int64 = math.MaxInt64

	for key, accessTime := range rc.accessTime {
		if accessTime < oldestTime {
			oldestTime = accessTime
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(rc.results, oldestKey)
		delete(rc.accessTime, oldestKey)
		log.Debugf("Evicted search '%s' from result cache", oldestKey)
	}
}
