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

// getCall is the retryable unit for a strong-consistency get.
type getCall struct {
	t   *Table
	get *kvpb.Get
}

func (c *getCall) Row() kvpb.Key { return c.get.RowKey }

func (c *getCall) Execute(ctx context.Context, timeout time.Duration) (interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	loc, err := c.t.locator.Locate(ctx, c.get.RowKey, false /* reload */)
	if err != nil {
		return nil, err
	}
	res, err := c.t.stub.Get(ctx, loc, c.get)
	if err != nil {
		c.t.maybeEvict(ctx, c.get.RowKey, err)
		return nil, err
	}
	return res, nil
}

// Get reads a single row. Reads with unset consistency use the table
// default; timeline reads race the replicas, giving the primary a
// configured head start.
func (t *Table) Get(ctx context.Context, get *kvpb.Get) (*kvpb.Result, error) {
	return t.get(ctx, get, false /* existenceOnly */)
}

func (t *Table) get(ctx context.Context, get *kvpb.Get, existenceOnly bool) (*kvpb.Result, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(get.RowKey) == 0 {
		return nil, kvpb.NewInvalidArgumentf("get requires a row key")
	}
	ctx = t.annotateCtx(ctx)

	// The caller's request is never mutated in place.
	if get.ExistenceOnly != existenceOnly || get.Consistency == kvpb.ConsistencyUnset {
		get = get.Clone()
		get.ExistenceOnly = existenceOnly
		if get.Consistency == kvpb.ConsistencyUnset {
			get.Consistency = t.defaultConsistency
		}
	}

	if get.Consistency == kvpb.ConsistencyTimeline {
		return t.getWithReplicas(ctx, get)
	}
	res, err := t.caller.CallWithRetries(ctx, &getCall{t: t, get: get}, t.callOptions())
	if err != nil {
		return nil, err
	}
	return res.(*kvpb.Result), nil
}

// Exists reports whether the row addressed by get exists, without
// transferring its cells.
func (t *Table) Exists(ctx context.Context, get *kvpb.Get) (bool, error) {
	res, err := t.get(ctx, get, true /* existenceOnly */)
	if err != nil {
		return false, err
	}
	if res.Exists == nil {
		return false, errors.AssertionFailedf("existence-only get returned no existence verdict")
	}
	return *res.Exists, nil
}

// GetAll reads several rows in one batched call. The i-th result slot
// corresponds to gets[i]; on partial failure the returned error lists the
// failed indexes while successful slots remain filled.
func (t *Table) GetAll(ctx context.Context, gets []*kvpb.Get) ([]*kvpb.Result, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(gets) == 1 {
		res, err := t.Get(ctx, gets[0])
		if err != nil {
			return nil, err
		}
		return []*kvpb.Result{res}, nil
	}
	actions := make([]kvpb.Action, len(gets))
	for i, g := range gets {
		actions[i] = g
	}
	results := make([]*kvpb.Result, len(gets))
	if err := t.batch(t.annotateCtx(ctx), actions, nil, results); err != nil {
		return results, err
	}
	return results, nil
}

// ExistsAll reports existence for several rows in one batched call.
func (t *Table) ExistsAll(ctx context.Context, gets []*kvpb.Get) ([]bool, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	existenceGets := make([]*kvpb.Get, len(gets))
	for i, g := range gets {
		c := g.Clone()
		c.ExistenceOnly = true
		existenceGets[i] = c
	}
	results, err := t.GetAll(ctx, existenceGets)
	if err != nil {
		return nil, err
	}
	exists := make([]bool, len(results))
	for i, r := range results {
		if r == nil || r.Exists == nil {
			return nil, errors.AssertionFailedf(
				"existence-only get %d returned no existence verdict", i)
		}
		exists[i] = *r.Exists
	}
	return exists, nil
}
