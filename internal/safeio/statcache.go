package safeio

import (
	"io/fs"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StatCache memoizes directory listings and file metadata for one scan, so
// the prober, the resolver and the config check touch each build folder and
// artifact once. Errors are not cached. Entries are never invalidated: use a
// fresh cache per scan. A nil *StatCache passes straight through to os.
type StatCache struct {
	dirs  *lru.Cache[string, []fs.DirEntry]
	infos *lru.Cache[string, fs.FileInfo]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewStatCache holds up to size listings and size file infos.
func NewStatCache(size int) *StatCache {
	if size <= 0 {
		size = 1024
	}
	dirs, err := lru.New[string, []fs.DirEntry](size)
	if err != nil {
		return nil
	}
	infos, err := lru.New[string, fs.FileInfo](size)
	if err != nil {
		return nil
	}
	return &StatCache{dirs: dirs, infos: infos}
}

// ReadDir is os.ReadDir through the cache.
func (c *StatCache) ReadDir(path string) ([]fs.DirEntry, error) {
	if c == nil {
		return os.ReadDir(path)
	}
	if entries, ok := c.dirs.Get(path); ok {
		c.hits.Add(1)
		return entries, nil
	}
	c.misses.Add(1)
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	c.dirs.Add(path, entries)
	return entries, nil
}

// Stat is os.Stat through the cache.
func (c *StatCache) Stat(path string) (fs.FileInfo, error) {
	if c == nil {
		return os.Stat(path)
	}
	if info, ok := c.infos.Get(path); ok {
		c.hits.Add(1)
		return info, nil
	}
	c.misses.Add(1)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	c.infos.Add(path, info)
	return info, nil
}

// Counts reports cache hits and misses so far.
func (c *StatCache) Counts() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
