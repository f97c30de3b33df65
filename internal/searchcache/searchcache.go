// Package searchcache implements C11, SearchResultsCache: a bounded cache
// of previous search results keyed on (pattern, startLine, endLine), so a
// repeated search can be restored instantly instead of re-scanning
// (spec.md §4.11).
package searchcache

import (
	"fmt"
	"sync"

	"github.com/DataDog/zstd"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mimecast/logdcore/internal/bitmap"
)

// Key identifies one cached search result.
type Key struct {
	Pattern   string
	StartLine int
	EndLine   int
}

func (k Key) encode() string {
	return fmt.Sprintf("%s\x00%d\x00%d", k.Pattern, k.StartLine, k.EndLine)
}

type cachedEntry struct {
	compressed []byte
	maxLength  int
	nbLines    int
}

// Cache is a bounded cache of (pattern,startLine,endLine) -> compressed
// match bitmap. It is bounded by total matching-line count across all
// entries (spec.md §4.11); once over the cap, entries are evicted in order
// of insertion, oldest first, until back under the cap. Lookups do not
// refresh an entry's position.
type Cache struct {
	mu               sync.Mutex
	lru              *lru.Cache[string, *cachedEntry]
	maxMatchingLines int
	totalLines       int
}

// New returns a Cache bounded by maxEntries distinct keys and
// maxMatchingLines total matching lines across all cached entries.
func New(maxEntries, maxMatchingLines int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	c := &Cache{maxMatchingLines: maxMatchingLines}
	l, err := lru.NewWithEvict[string, *cachedEntry](maxEntries, func(_ string, v *cachedEntry) {
		c.totalLines -= v.nbLines
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get looks up a previous result for key. It does not change the entry's
// place in the eviction order.
func (c *Cache) Get(key Key) (bm *bitmap.Bitmap, maxLength int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.lru.Peek(key.encode())
	if !found {
		return nil, 0, false
	}
	raw, err := zstd.Decompress(nil, e.compressed)
	if err != nil {
		return nil, 0, false
	}
	restored, err := bitmap.FromBytes(raw)
	if err != nil {
		return nil, 0, false
	}
	return restored, e.maxLength, true
}

// Put stores bm under key, compressed with zstd, then evicts the
// oldest-inserted entries (never the one just stored) until the total
// matching-line count is back under the configured cap.
func (c *Cache) Put(key Key, bm *bitmap.Bitmap, maxLength int) {
	raw := bm.Bytes()
	compressed, err := zstd.Compress(nil, raw)
	if err != nil {
		return
	}
	nbLines := int(bm.Cardinality())

	c.mu.Lock()
	defer c.mu.Unlock()
	encoded := key.encode()
	if old, ok := c.lru.Peek(encoded); ok {
		c.totalLines -= old.nbLines
	}
	c.lru.Add(encoded, &cachedEntry{compressed: compressed, maxLength: maxLength, nbLines: nbLines})
	c.totalLines += nbLines

	if c.maxMatchingLines <= 0 {
		return
	}
	for c.totalLines > c.maxMatchingLines && c.lru.Len() > 1 {
		if _, _, evicted := c.lru.RemoveOldest(); !evicted {
			break
		}
	}
}

// Remove drops any cached entry for key.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key.encode())
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.totalLines = 0
}
