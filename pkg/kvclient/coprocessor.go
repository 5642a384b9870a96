// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
	"google.golang.org/protobuf/proto"
)

// CoprocessorCallback observes each region's decoded response as it
// arrives. It may run on pool goroutines and must be safe for concurrent
// invocation.
type CoprocessorCallback func(region kvpb.RegionInfo, resp proto.Message)

// CoprocessorService invokes a server-side procedure on every region
// covering [startKey, endKey], including the region containing endKey. The
// request is marshaled once and fanned out; each region's response is
// decoded into a fresh clone of prototype and handed to cb. Regions whose
// call or decode fails are reported in the returned error while the
// remaining regions still reach cb.
func (t *Table) CoprocessorService(
	ctx context.Context,
	method string,
	startKey, endKey kvpb.Key,
	request proto.Message,
	prototype proto.Message,
	cb CoprocessorCallback,
) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	payload, err := proto.Marshal(request)
	if err != nil {
		return kvpb.NewInvalidArgumentf("marshaling %s request: %v", method, err)
	}
	ctx = t.annotateCtx(ctx)

	keys, locs, err := keysAndRegionsInRange(
		ctx, t.locator, startKey, endKey, true /* includeEndKey */, false /* reload */)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		log.Infof(ctx, "no regions cover [%s, %s] for %s", startKey, endKey, method)
		return nil
	}
	t.metrics.Fanouts.Inc()

	actions := make([]kvpb.Action, len(keys))
	regionByRow := make(map[string]kvpb.RegionInfo, len(keys))
	for i, key := range keys {
		actions[i] = &kvpb.CoprocessorExec{
			RegionName: locs[i].Region.RegionName,
			RowKey:     key,
			Method:     method,
			Request:    payload,
		}
		regionByRow[string(key)] = locs[i].Region
	}

	var mu sync.Mutex
	var decodeFailures []kvpb.Failure
	wrapped := func(_ []byte, row kvpb.Key, res *kvpb.Result) {
		region := regionByRow[string(row)]
		msg := proto.Clone(prototype)
		if err := proto.Unmarshal(res.ServicePayload, msg); err != nil {
			mu.Lock()
			decodeFailures = append(decodeFailures, kvpb.Failure{
				Action: &kvpb.CoprocessorExec{RegionName: region.RegionName, RowKey: row, Method: method},
				Cause:  errors.Wrapf(err, "decoding %s response from region %s", method, &region),
				Server: "unknown",
			})
			mu.Unlock()
			return
		}
		if cb != nil {
			cb(region, msg)
		}
	}

	results := make([]*kvpb.Result, len(actions))
	if err := t.batch(ctx, actions, wrapped, results); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if len(decodeFailures) > 0 {
		pfe := &kvpb.PartialFailureError{Failures: decodeFailures}
		pfe.SortFailures()
		return pfe
	}
	return nil
}

// CoprocessorCall invokes a server-side procedure on the single region
// containing row and returns its decoded response.
func (t *Table) CoprocessorCall(
	ctx context.Context, method string, row kvpb.Key, request, prototype proto.Message,
) (proto.Message, error) {
	if len(row) == 0 {
		return nil, kvpb.NewInvalidArgumentf("coprocessor call requires a row key")
	}
	var out proto.Message
	err := t.CoprocessorService(ctx, method, row, row, request, prototype,
		func(_ kvpb.RegionInfo, resp proto.Message) {
			out = resp
		})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.AssertionFailedf("coprocessor call completed without a response")
	}
	return out, nil
}

// CoprocessorServiceMap is CoprocessorService collecting the decoded
// responses into a map keyed by region name instead of streaming them to a
// callback.
func (t *Table) CoprocessorServiceMap(
	ctx context.Context,
	method string,
	startKey, endKey kvpb.Key,
	request proto.Message,
	prototype proto.Message,
) (map[string]proto.Message, error) {
	out := make(map[string]proto.Message)
	var mu sync.Mutex
	err := t.CoprocessorService(ctx, method, startKey, endKey, request, prototype,
		func(region kvpb.RegionInfo, resp proto.Message) {
			mu.Lock()
			defer mu.Unlock()
			out[string(region.RegionName)] = resp
		})
	return out, err
}

// SortedRegionKeys returns the map's region-name keys in unsigned byte
// order, for deterministic iteration over fan-out results.
func SortedRegionKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
