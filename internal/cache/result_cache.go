package cache

import (
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ResultCache memoizes time-series query results for a fixed TTL. The
// backing collections are only ever written by the out-of-band ETL job,
// so entries are never invalidated by writes; staleness is bounded by the
// TTL alone. Results are stored and returned by reference, so callers
// must treat them as read-only.
type ResultCache struct {
	store *gocache.Cache
}

func NewResultCache(ttl, sweepInterval time.Duration) *ResultCache {
	return &ResultCache{
		store: gocache.New(ttl, sweepInterval),
	}
}

// Fingerprint builds the deterministic cache key for a query: collection,
// client id (or a placeholder when absent), the raw date boundaries, and
// every additional filter sorted by key so parameter arrival order never
// splits the cache.
func Fingerprint(collection, clientID, from, to string, filters map[string]string) string {
	if clientID == "" {
		clientID = "-"
	}

	parts := []string{collection, clientID, from, to}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		if k == "clientId" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+filters[k])
	}

	return strings.Join(parts, ":")
}

func (c *ResultCache) Get(fingerprint string) (interface{}, bool) {
	return c.store.Get(fingerprint)
}

// Set stores a result under the cache's fixed TTL, overwriting any
// previous entry for the same fingerprint.
func (c *ResultCache) Set(fingerprint string, result interface{}) {
	c.store.SetDefault(fingerprint, result)
}

// Flush drops every entry. There is no partial invalidation on purpose.
func (c *ResultCache) Flush() {
	c.store.Flush()
}
