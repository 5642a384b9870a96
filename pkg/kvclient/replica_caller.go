// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
)

// getWithReplicas races a timeline read across the region's replicas. The
// primary is tried first; if it has not answered within the configured
// stagger the remaining replicas are queried too, and the first answer of
// any kind wins. An error only surfaces once every replica has failed.
func (t *Table) getWithReplicas(ctx context.Context, get *kvpb.Get) (*kvpb.Result, error) {
	locs, err := t.locator.LocateAll(ctx, get.RowKey, false /* reload */)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, errors.AssertionFailedf("region lookup returned no locations for row %s", get.RowKey)
	}

	opCtx := ctx
	if d := t.cfg.OperationTimeout; d > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type response struct {
		res  *kvpb.Result
		err  error
		from string
	}
	// Buffered so late responders never block after a winner is chosen.
	done := make(chan response, len(locs))

	send := func(loc kvpb.RegionLocation) bool {
		return t.pool.Go(func() {
			res, err := t.stub.Get(opCtx, loc, get)
			done <- response{res: res, err: err, from: loc.Server}
		})
	}

	pending := 0
	if send(locs[0]) {
		pending++
	}
	remaining := locs[1:]
	if pending == 0 && len(remaining) == 0 {
		return nil, errors.Newf("worker pool rejected all replica reads for row %s", get.RowKey)
	}

	var stagger <-chan time.Time
	if len(remaining) > 0 {
		timer := time.NewTimer(t.cfg.ReplicaReadStagger)
		defer timer.Stop()
		stagger = timer.C
	}

	sendRemaining := func() {
		for _, loc := range remaining {
			if send(loc) {
				pending++
			}
		}
		remaining = nil
	}

	var errCount int
	var lastErr error
	for {
		select {
		case r := <-done:
			if r.err == nil {
				return r.res, nil
			}
			errCount++
			lastErr = r.err
			if log.V(1) {
				log.VEventf(opCtx, 1, "replica read from %s failed: %v", r.from, r.err)
			}
			t.maybeEvict(opCtx, get.RowKey, r.err)
			// A failure ends the primary's head start early.
			sendRemaining()
			if errCount == pending {
				return nil, errors.Wrapf(lastErr, "all %d replica(s) failed reading row %s",
					errCount, get.RowKey)
			}
		case <-stagger:
			stagger = nil
			sendRemaining()
			if pending == 0 {
				return nil, errors.Newf("worker pool rejected all replica reads for row %s", get.RowKey)
			}
		case <-opCtx.Done():
			if ctx.Err() != nil {
				return nil, kvpb.WrapInterrupted(ctx.Err(), "replica read interrupted")
			}
			return nil, kvpb.NewTimeoutf("replica read timed out after %s on row %s",
				t.cfg.OperationTimeout, get.RowKey)
		}
	}
}
