// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package rangecache

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/stretchr/testify/require"
)

// testDB serves lookups from a static region list and counts them.
type testDB struct {
	regions []kvpb.RegionLocation
	lookups int
}

func (db *testDB) LookupRegion(
	_ context.Context, row kvpb.Key,
) ([]kvpb.RegionLocation, error) {
	db.lookups++
	for _, loc := range db.regions {
		if loc.Region.ContainsKey(row) {
			return []kvpb.RegionLocation{loc}, nil
		}
	}
	return nil, errors.Newf("no region for %s", row)
}

func threeRegionDB() *testDB {
	return &testDB{regions: []kvpb.RegionLocation{
		{Region: kvpb.RegionInfo{RegionName: []byte("r1"), EndKey: kvpb.Key("g")}, Server: "s1:1"},
		{Region: kvpb.RegionInfo{RegionName: []byte("r2"), StartKey: kvpb.Key("g"), EndKey: kvpb.Key("m")}, Server: "s2:1"},
		{Region: kvpb.RegionInfo{RegionName: []byte("r3"), StartKey: kvpb.Key("m")}, Server: "s3:1"},
	}}
}

func TestCacheLocateCachesLookups(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	loc, err := c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)
	require.Equal(t, "s2:1", loc.Server)
	require.Equal(t, 1, db.lookups)

	// Same region, different row: served from cache.
	loc, err = c.Locate(ctx, kvpb.Key("k"), false)
	require.NoError(t, err)
	require.Equal(t, "s2:1", loc.Server)
	require.Equal(t, 1, db.lookups)

	// Row in another region triggers a lookup.
	loc, err = c.Locate(ctx, kvpb.Key("a"), false)
	require.NoError(t, err)
	require.Equal(t, "s1:1", loc.Server)
	require.Equal(t, 2, db.lookups)
	require.Equal(t, 2, c.Len())
}

func TestCacheEndKeyIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	loc, err := c.Locate(ctx, kvpb.Key("a"), false)
	require.NoError(t, err)
	require.Equal(t, "s1:1", loc.Server)

	// "g" is r1's end key; it belongs to r2, not the cached r1 entry.
	loc, err = c.Locate(ctx, kvpb.Key("g"), false)
	require.NoError(t, err)
	require.Equal(t, "s2:1", loc.Server)
	require.Equal(t, 2, db.lookups)
}

func TestCacheLastRegionSortsAfterEverything(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	loc, err := c.Locate(ctx, kvpb.Key("zzz"), false)
	require.NoError(t, err)
	require.Equal(t, "s3:1", loc.Server)

	loc, err = c.Locate(ctx, kvpb.Key("m"), false)
	require.NoError(t, err)
	require.Equal(t, "s3:1", loc.Server)
	require.Equal(t, 1, db.lookups)
}

func TestCacheReloadBypassesCache(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	_, err := c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)
	require.Equal(t, 1, db.lookups)

	db.regions[1].Server = "s9:1"
	loc, err := c.Locate(ctx, kvpb.Key("h"), true)
	require.NoError(t, err)
	require.Equal(t, "s9:1", loc.Server)
	require.Equal(t, 2, db.lookups)

	// The refreshed entry replaced the stale one.
	loc, err = c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)
	require.Equal(t, "s9:1", loc.Server)
	require.Equal(t, 2, db.lookups)
	require.Equal(t, 1, c.Len())
}

func TestCacheEvict(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	_, err := c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	// Evicting a row outside any cached region is a no-op.
	c.Evict(ctx, kvpb.Key("a"))
	require.Equal(t, 1, c.Len())

	c.Evict(ctx, kvpb.Key("h"))
	require.Equal(t, 0, c.Len())

	_, err = c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)
	require.Equal(t, 2, db.lookups)
}

func TestCacheClearOverlappingOnSplit(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)

	_, err := c.Locate(ctx, kvpb.Key("h"), false)
	require.NoError(t, err)

	// Simulate r2 splitting at "j": the new left half overlaps the cached
	// entry, which must be dropped on insert.
	db.regions[1] = kvpb.RegionLocation{
		Region: kvpb.RegionInfo{RegionName: []byte("r2a"), StartKey: kvpb.Key("g"), EndKey: kvpb.Key("j")},
		Server: "s4:1",
	}
	loc, err := c.Locate(ctx, kvpb.Key("h"), true)
	require.NoError(t, err)
	require.Equal(t, "s4:1", loc.Server)
	require.Equal(t, 1, c.Len())
}

func TestCacheLookupValidation(t *testing.T) {
	ctx := context.Background()

	c := New(&testDB{})
	_, err := c.Locate(ctx, kvpb.Key("x"), false)
	require.Error(t, err)

	// A lookup answer not containing the row is rejected.
	bad := &testDB{regions: []kvpb.RegionLocation{
		{Region: kvpb.RegionInfo{RegionName: []byte("r1"), StartKey: kvpb.Key("a"), EndKey: kvpb.Key("b")}, Server: "s1:1"},
	}}
	c = New(&staticDB{locs: bad.regions})
	_, err = c.Locate(ctx, kvpb.Key("x"), false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not containing row")
}

// staticDB answers every lookup with the same locations.
type staticDB struct {
	locs []kvpb.RegionLocation
}

func (db *staticDB) LookupRegion(
	context.Context, kvpb.Key,
) ([]kvpb.RegionLocation, error) {
	return db.locs, nil
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	db := threeRegionDB()
	c := New(db)
	for _, row := range []string{"a", "h", "z"} {
		_, err := c.Locate(ctx, kvpb.Key(row), false)
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())
	c.Clear()
	require.Equal(t, 0, c.Len())
}
