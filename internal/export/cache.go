// Package export implements the per-observation record export pipeline:
// JSON-lines export with batched channel-value resolution and large-object
// caching, CSV conversion with configurable output encoding, and the batch
// runner that drives both over a node list.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/sensorgrid/recbatch/internal/store"
)

// DefaultCacheSize bounds the large-object cache entry count.
const DefaultCacheSize = 5000

// LargeObjectCache maps large-object ids to their decompressed content,
// bounded by entry count with insertion-order eviction: when full, the
// oldest-inserted entry is evicted, and a re-requested entry does not
// move to the back of the queue.
//
// The cache is not safe for concurrent use. Each export run owns its
// cache instance; the coordinating goroutine is the single reader and
// writer.
type LargeObjectCache struct {
	st      *store.Store
	max     int
	entries map[int64][]byte
	order   []int64 // insertion order, oldest first

	hits   int64
	misses int64
}

// NewLargeObjectCache creates a cache backed by st. A non-positive max
// falls back to DefaultCacheSize.
func NewLargeObjectCache(st *store.Store, max int) *LargeObjectCache {
	if max <= 0 {
		max = DefaultCacheSize
	}
	return &LargeObjectCache{
		st:      st,
		max:     max,
		entries: make(map[int64][]byte, max),
	}
}

// Resolve returns the decompressed content for every requested id. Hits
// come from the cache; all misses are fetched from the store in one
// round trip, gunzipped where flagged, and cached. Ids absent from the
// store are simply missing from the result map.
func (c *LargeObjectCache) Resolve(ctx context.Context, ids []int64) (map[int64][]byte, error) {
	result := make(map[int64][]byte, len(ids))
	var missing []int64
	requested := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if requested[id] {
			continue
		}
		requested[id] = true
		if content, ok := c.entries[id]; ok {
			result[id] = content
			c.hits++
		} else {
			missing = append(missing, id)
			c.misses++
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	objs, err := c.st.LargeObjects(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, lo := range objs {
		content := lo.Content
		if lo.IsGzipped {
			content, err = gunzip(content)
			if err != nil {
				return nil, fmt.Errorf("gunzip large object %d: %w", lo.ID, err)
			}
		}
		result[lo.ID] = content
		c.put(lo.ID, content)
	}
	return result, nil
}

// put inserts an entry, evicting the oldest-inserted one when full.
func (c *LargeObjectCache) put(id int64, content []byte) {
	if _, ok := c.entries[id]; ok {
		return
	}
	if len(c.entries) == c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, id)
	c.entries[id] = content
}

// Len reports the number of cached entries.
func (c *LargeObjectCache) Len() int { return len(c.entries) }

// Stats reports cumulative cache hits and misses.
func (c *LargeObjectCache) Stats() (hits, misses int64) { return c.hits, c.misses }

func gunzip(content []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
