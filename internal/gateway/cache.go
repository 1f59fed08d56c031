package gateway

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"streamgate/internal/catalog"
)

// fileCache keeps recently served content file rows. Only rows with a
// published manifest are cached; a pending row may become ready at any time.
type fileCache struct {
	lru *expirable.LRU[int64, catalog.File]
}

func newFileCache(size int, ttl time.Duration) *fileCache {
	if size <= 0 {
		return nil
	}
	return &fileCache{lru: expirable.NewLRU[int64, catalog.File](size, nil, ttl)}
}

func (c *fileCache) get(id int64) (catalog.File, bool) {
	if c == nil {
		return catalog.File{}, false
	}
	file, ok := c.lru.Get(id)
	if ok {
		cacheHits.Inc()
	} else {
		cacheMisses.Inc()
	}
	return file, ok
}

func (c *fileCache) add(file catalog.File) {
	if c == nil || file.HLSPath == "" {
		return
	}
	c.lru.Add(file.ID, file)
}

func (c *fileCache) remove(id int64) {
	if c != nil {
		c.lru.Remove(id)
	}
}

// Purge drops every cached row.
func (c *fileCache) purge() {
	if c != nil {
		c.lru.Purge()
	}
}
