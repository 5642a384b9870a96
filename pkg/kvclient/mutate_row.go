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
)

// deadlineTracker measures one operation's remaining budget across retries.
// The clock starts on the first remaining() call, not at construction.
type deadlineTracker struct {
	start time.Time
	nowFn func() time.Time
}

// remaining returns how much of budget is left, flooring live budgets at
// one millisecond so an attempt is never given a zero timeout. A zero
// return means the budget is exhausted. A non-positive budget is unbounded;
// callers must not consult remaining for it.
func (d *deadlineTracker) remaining(budget time.Duration) time.Duration {
	now := d.nowFn()
	if d.start.IsZero() {
		d.start = now
	}
	if budget <= 0 {
		return 0
	}
	left := budget - now.Sub(d.start)
	if left <= 0 {
		return 0
	}
	if left < time.Millisecond {
		return time.Millisecond
	}
	return left
}

// multiRowCall is the retryable unit for an atomic multi-mutation of one
// row, carried as a single-element MultiRequest. Each attempt re-checks the
// remaining operation budget before touching the network.
type multiRowCall struct {
	t       *Table
	row     kvpb.Key
	actions []kvpb.RegionAction
	tracker deadlineTracker
	budget  time.Duration
}

func (c *multiRowCall) Row() kvpb.Key { return c.row }

func (c *multiRowCall) Execute(ctx context.Context, timeout time.Duration) (interface{}, error) {
	if c.budget > 0 {
		rem := c.tracker.remaining(c.budget)
		if rem == 0 {
			return nil, kvpb.NewTimeoutf("row mutation budget of %s exhausted on row %s",
				c.budget, c.row)
		}
		if timeout <= 0 || rem < timeout {
			timeout = rem
		}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	loc, err := c.t.locator.Locate(ctx, c.row, false /* reload */)
	if err != nil {
		return nil, err
	}
	actions := make([]kvpb.RegionAction, len(c.actions))
	copy(actions, c.actions)
	for i := range actions {
		actions[i].RegionName = loc.Region.RegionName
	}
	resp, err := c.t.stub.Multi(ctx, loc, &kvpb.MultiRequest{RegionActions: actions})
	if err != nil {
		c.t.maybeEvict(ctx, c.row, err)
		return nil, err
	}
	for i := range resp.RegionResults {
		if failure := resp.RegionResults[i].Failure; failure != nil {
			c.t.maybeEvict(ctx, c.row, failure)
			if failure.Kind == kvpb.RemoteKindIO {
				// I/O failures surface as-is.
				return nil, failure
			}
			return nil, errors.Wrapf(failure, "failed to mutate row %s", c.row)
		}
	}
	return resp, nil
}

func (t *Table) mutateRowAtomic(
	ctx context.Context, rm *kvpb.RowMutations, cond *kvpb.Condition,
) (*kvpb.MultiResponse, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(rm.RowKey) == 0 {
		return nil, kvpb.NewInvalidArgumentf("row mutations require a row key")
	}
	if len(rm.Mutations) == 0 {
		return nil, kvpb.NewInvalidArgumentf("row mutations on row %s are empty", rm.RowKey)
	}
	ctx = t.annotateCtx(ctx)

	call := &multiRowCall{
		t:   t,
		row: rm.RowKey,
		actions: []kvpb.RegionAction{{
			Atomic:    true,
			Mutations: rm.Mutations,
			Condition: cond,
		}},
		tracker: deadlineTracker{nowFn: t.nowFn},
		budget:  t.cfg.OperationTimeout,
	}
	actions := []kvpb.Action{rm}
	results := make([]*kvpb.Result, 1)
	future := t.disp.SubmitCall(ctx, actions, results, call, t.callOptions())
	if err := future.WaitUntilDone(ctx); err != nil {
		return nil, err
	}
	if future.HasErrors() {
		pfe := future.Errors()
		if len(pfe.Failures) == 1 {
			return nil, pfe.Failures[0].Cause
		}
		return nil, pfe
	}
	if results[0] == nil {
		return nil, errors.AssertionFailedf("row mutation completed without a result")
	}
	processed := results[0].Exists != nil && *results[0].Exists
	return &kvpb.MultiResponse{Processed: processed}, nil
}

// MutateRow applies the puts and deletes of rm to its row atomically: either
// all take effect or none do.
func (t *Table) MutateRow(ctx context.Context, rm *kvpb.RowMutations) error {
	_, err := t.mutateRowAtomic(ctx, rm, nil)
	return err
}

// CheckAndMutate applies rm atomically iff the current value at (row,
// family, qualifier) compares to value under op. It returns whether the
// mutations were applied.
func (t *Table) CheckAndMutate(
	ctx context.Context,
	row kvpb.Key,
	family, qualifier []byte,
	op kvpb.CompareOp,
	value []byte,
	rm *kvpb.RowMutations,
) (bool, error) {
	if !rm.RowKey.Equal(row) {
		return false, kvpb.NewInvalidArgumentf(
			"row mutations row %s does not match condition row %s", rm.RowKey, row)
	}
	cond := &kvpb.Condition{RowKey: row, Family: family, Qualifier: qualifier, Op: op, Value: value}
	resp, err := t.mutateRowAtomic(ctx, rm, cond)
	if err != nil {
		return false, err
	}
	return resp.Processed, nil
}
