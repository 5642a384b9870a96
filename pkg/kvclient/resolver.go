// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"

	"github.com/gridkv/gridkv/pkg/kvpb"
)

// keysAndRegionsInRange walks the locator across [startKey, endKey),
// returning the start key and location of every covering region in key
// order. The empty endKey means "to the end of the table". When
// includeEndKey is set the region containing endKey itself is included.
// reload bypasses cached locations.
func keysAndRegionsInRange(
	ctx context.Context,
	locator RegionLookup,
	startKey, endKey kvpb.Key,
	includeEndKey, reload bool,
) ([]kvpb.Key, []kvpb.RegionLocation, error) {
	toEnd := endKey.IsSentinel()
	if !toEnd && startKey.Compare(endKey) > 0 {
		return nil, nil, kvpb.NewInvalidArgumentf(
			"invalid range: start row %s after stop row %s", startKey, endKey)
	}

	var keys []kvpb.Key
	var locs []kvpb.RegionLocation
	current := startKey
	for {
		loc, err := locator.Locate(ctx, current, reload)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, current)
		locs = append(locs, loc)
		regionEnd := loc.Region.EndKey
		if regionEnd.IsSentinel() {
			break
		}
		if !toEnd {
			if cmp := regionEnd.Compare(endKey); cmp > 0 || (cmp == 0 && !includeEndKey) {
				break
			}
		}
		current = regionEnd
	}
	return keys, locs, nil
}
