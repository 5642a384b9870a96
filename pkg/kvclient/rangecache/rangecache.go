// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package rangecache caches region location metadata on the client. The
// cache is keyed by region end key so that the region containing a row is
// the first entry whose end key sorts strictly after the row.
package rangecache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
	"github.com/gridkv/gridkv/pkg/util/syncutil"
)

// DB resolves a row key to the locations of the region containing it. The
// first returned location is the primary; any further locations are
// read replicas.
type DB interface {
	LookupRegion(ctx context.Context, row kvpb.Key) ([]kvpb.RegionLocation, error)
}

const btreeDegree = 16

// Cache caches region locations looked up from a DB. Safe for concurrent
// use.
type Cache struct {
	db DB

	mu struct {
		syncutil.RWMutex
		cache *btree.BTree
	}
}

// cacheEntry caches all known locations (primary plus replicas) of one
// region.
type cacheEntry struct {
	// endKey orders the entry within the btree. An empty end key sorts
	// after every other key.
	endKey kvpb.Key
	locs   []kvpb.RegionLocation
}

// compareEndKeys orders region end keys with the empty key sorting last,
// since an empty end key means the region extends to the end of the key
// space.
func compareEndKeys(a, b kvpb.Key) int {
	if a.IsSentinel() {
		if b.IsSentinel() {
			return 0
		}
		return 1
	}
	if b.IsSentinel() {
		return -1
	}
	return a.Compare(b)
}

func (e *cacheEntry) Less(than btree.Item) bool {
	return compareEndKeys(e.endKey, than.(*cacheEntry).endKey) < 0
}

// New returns an empty cache backed by db.
func New(db DB) *Cache {
	c := &Cache{db: db}
	c.mu.cache = btree.New(btreeDegree)
	return c
}

// Locate returns the primary location of the region containing row. When
// reload is true the cached entry, if any, is bypassed and replaced.
func (c *Cache) Locate(ctx context.Context, row kvpb.Key, reload bool) (kvpb.RegionLocation, error) {
	locs, err := c.LocateAll(ctx, row, reload)
	if err != nil {
		return kvpb.RegionLocation{}, err
	}
	return locs[0], nil
}

// LocateAll returns every known location (primary first) of the region
// containing row. When reload is true the cached entry, if any, is bypassed
// and replaced.
func (c *Cache) LocateAll(
	ctx context.Context, row kvpb.Key, reload bool,
) ([]kvpb.RegionLocation, error) {
	if !reload {
		if locs := c.getCached(row); locs != nil {
			return locs, nil
		}
	}
	locs, err := c.db.LookupRegion(ctx, row)
	if err != nil {
		return nil, errors.Wrapf(err, "looking up region for row %s", row)
	}
	if len(locs) == 0 {
		return nil, errors.Newf("no region found for row %s", row)
	}
	if !locs[0].Region.ContainsKey(row) {
		return nil, errors.Newf("lookup returned region %s not containing row %s",
			&locs[0].Region, row)
	}
	if log.V(2) {
		log.VEventf(ctx, 2, "caching region %s at %s", &locs[0].Region, locs[0].Server)
	}
	c.insert(locs)
	return locs, nil
}

func (c *Cache) getCached(row kvpb.Key) []kvpb.RegionLocation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var match *cacheEntry
	// The containing region is the first entry whose end key sorts strictly
	// after row.
	c.mu.cache.AscendGreaterOrEqual(&cacheEntry{endKey: row}, func(i btree.Item) bool {
		e := i.(*cacheEntry)
		if !e.endKey.IsSentinel() && e.endKey.Equal(row) {
			return true // end key is exclusive; keep looking
		}
		match = e
		return false
	})
	if match == nil || !match.locs[0].Region.ContainsKey(row) {
		return nil
	}
	return match.locs
}

func (c *Cache) insert(locs []kvpb.RegionLocation) {
	region := locs[0].Region
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearOverlappingLocked(region)
	c.mu.cache.ReplaceOrInsert(&cacheEntry{endKey: region.EndKey, locs: locs})
}

// clearOverlappingLocked removes cached entries whose regions overlap the
// given region; they are stale remnants of a split or merge.
func (c *Cache) clearOverlappingLocked(region kvpb.RegionInfo) {
	var stale []*cacheEntry
	c.mu.cache.AscendGreaterOrEqual(&cacheEntry{endKey: region.StartKey}, func(i btree.Item) bool {
		e := i.(*cacheEntry)
		if !e.endKey.IsSentinel() && e.endKey.Equal(region.StartKey) {
			return true
		}
		if !region.EndKey.IsSentinel() && e.locs[0].Region.StartKey.Compare(region.EndKey) >= 0 {
			return false
		}
		stale = append(stale, e)
		return true
	})
	for _, e := range stale {
		c.mu.cache.Delete(e)
	}
}

// Evict removes the cached entry for the region containing row, if any.
func (c *Cache) Evict(ctx context.Context, row kvpb.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var match *cacheEntry
	c.mu.cache.AscendGreaterOrEqual(&cacheEntry{endKey: row}, func(i btree.Item) bool {
		e := i.(*cacheEntry)
		if !e.endKey.IsSentinel() && e.endKey.Equal(row) {
			return true
		}
		match = e
		return false
	})
	if match == nil || !match.locs[0].Region.ContainsKey(row) {
		return
	}
	if log.V(2) {
		log.VEventf(ctx, 2, "evicting region %s", &match.locs[0].Region)
	}
	c.mu.cache.Delete(match)
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.cache = btree.New(btreeDegree)
}

// Len returns the number of cached regions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mu.cache.Len()
}
