// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"

	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
)

// Batch runs a mixed list of actions (gets, puts, deletes, appends,
// increments) concurrently, grouped by region. The i-th result slot
// corresponds to actions[i]. On partial failure the successful slots stay
// filled and the returned error lists the failed indexes; a nil error means
// every action succeeded.
func (t *Table) Batch(ctx context.Context, actions []kvpb.Action, results []*kvpb.Result) error {
	return t.BatchCallback(ctx, actions, results, nil)
}

// BatchCallback is Batch with a per-success callback, invoked as results
// arrive and before BatchCallback returns. The callback may run on pool
// goroutines.
func (t *Table) BatchCallback(
	ctx context.Context, actions []kvpb.Action, results []*kvpb.Result, cb BatchResultCallback,
) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if len(results) != len(actions) {
		return kvpb.NewInvalidArgumentf(
			"results length %d does not match actions length %d", len(results), len(actions))
	}
	return t.batch(t.annotateCtx(ctx), actions, cb, results)
}

func (t *Table) batch(
	ctx context.Context, actions []kvpb.Action, cb BatchResultCallback, results []*kvpb.Result,
) error {
	if len(actions) == 0 {
		return nil
	}
	t.metrics.Batches.Inc()
	future := t.disp.SubmitAll(ctx, actions, cb, results, t.callOptions())
	if err := future.WaitUntilDone(ctx); err != nil {
		return err
	}
	if future.HasErrors() {
		err := future.Errors()
		t.metrics.PartialFailures.Inc()
		if log.V(1) {
			log.VEventf(ctx, 1, "batch of %d finished with %d failure(s)",
				len(actions), len(err.Failures))
		}
		return err
	}
	return nil
}
