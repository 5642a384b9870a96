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

// mutateCall is the retryable unit for a single-row mutate RPC. The nonce,
// when set, is fixed before the first attempt and replayed verbatim on
// retries.
type mutateCall struct {
	t         *Table
	mutation  kvpb.Mutation
	nonce     kvpb.Nonce
	condition *kvpb.Condition
}

func (c *mutateCall) Row() kvpb.Key { return c.mutation.Row() }

func (c *mutateCall) Execute(ctx context.Context, timeout time.Duration) (interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	loc, err := c.t.locator.Locate(ctx, c.mutation.Row(), false /* reload */)
	if err != nil {
		return nil, err
	}
	req := &kvpb.MutateRequest{
		RegionName: loc.Region.RegionName,
		Mutation:   c.mutation,
		Nonce:      c.nonce,
		Condition:  c.condition,
	}
	resp, err := c.t.stub.Mutate(ctx, loc, req)
	if err != nil {
		c.t.maybeEvict(ctx, c.mutation.Row(), err)
		return nil, err
	}
	return resp, nil
}

func (t *Table) mutateWithRetries(
	ctx context.Context, m kvpb.Mutation, nonce kvpb.Nonce, cond *kvpb.Condition,
) (*kvpb.MutateResponse, error) {
	res, err := t.caller.CallWithRetries(ctx,
		&mutateCall{t: t, mutation: m, nonce: nonce, condition: cond}, t.callOptions())
	if err != nil {
		return nil, err
	}
	return res.(*kvpb.MutateResponse), nil
}

// validatePut rejects empty puts and oversized cell values before any
// buffering or network activity.
func (t *Table) validatePut(p *kvpb.Put) error {
	if len(p.RowKey) == 0 {
		return kvpb.NewInvalidArgumentf("put requires a row key")
	}
	if p.Empty() {
		return kvpb.NewInvalidArgumentf("put on row %s has no cells", p.RowKey)
	}
	if max := t.cfg.MaxValueSize; max > 0 {
		for _, c := range p.Cells {
			if len(c.Value) > max {
				return kvpb.NewInvalidArgumentf(
					"put on row %s has a %d-byte value exceeding the %d-byte limit",
					p.RowKey, len(c.Value), max)
			}
		}
	}
	return nil
}

// Put writes a single row. The put passes through the write buffer and is
// flushed before Put returns; deferred flushing is the buffer's own API, not
// this one.
func (t *Table) Put(ctx context.Context, put *kvpb.Put) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.validatePut(put); err != nil {
		return err
	}
	ctx = t.annotateCtx(ctx)
	w := t.getBufferedWriter()
	if err := w.Mutate(ctx, []*kvpb.Put{put}); err != nil {
		return err
	}
	return w.Flush(ctx)
}

// PutAll writes several single-row puts, flushed before PutAll returns.
func (t *Table) PutAll(ctx context.Context, puts []*kvpb.Put) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	for _, p := range puts {
		if err := t.validatePut(p); err != nil {
			return err
		}
	}
	ctx = t.annotateCtx(ctx)
	w := t.getBufferedWriter()
	if err := w.Mutate(ctx, puts); err != nil {
		return err
	}
	return w.Flush(ctx)
}

// Delete removes a row, or only its listed cells. Deletes are not buffered;
// they reach the server before Delete returns.
func (t *Table) Delete(ctx context.Context, del *kvpb.Delete) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if len(del.RowKey) == 0 {
		return kvpb.NewInvalidArgumentf("delete requires a row key")
	}
	_, err := t.mutateWithRetries(t.annotateCtx(ctx), del, kvpb.Nonce{}, nil)
	return err
}

// DeleteAll removes several rows in one batched call. On return the slice
// retains only the deletes that failed; a fully successful call leaves it
// empty.
func (t *Table) DeleteAll(ctx context.Context, deletes *[]*kvpb.Delete) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	list := *deletes
	actions := make([]kvpb.Action, len(list))
	for i, d := range list {
		if len(d.RowKey) == 0 {
			return kvpb.NewInvalidArgumentf("delete %d requires a row key", i)
		}
		actions[i] = d
	}
	results := make([]*kvpb.Result, len(list))
	err := t.batch(t.annotateCtx(ctx), actions, nil, results)
	if err != nil && !errors.HasType(err, (*kvpb.PartialFailureError)(nil)) {
		// An interrupted wait returns before every action has finished, so
		// pool goroutines may still be writing result slots. Leave the
		// caller's list untouched.
		return err
	}

	// Walk backwards removing the successes so the caller is left holding
	// exactly the failed deletes.
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != nil {
			list = append(list[:i], list[i+1:]...)
		}
	}
	*deletes = list
	return err
}

// Append atomically appends to the cells of one row and returns the
// post-append row state. Appends carry a nonce so that retries are not
// re-applied.
func (t *Table) Append(ctx context.Context, app *kvpb.Append) (*kvpb.Result, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(app.RowKey) == 0 {
		return nil, kvpb.NewInvalidArgumentf("append requires a row key")
	}
	if len(app.Cells) == 0 {
		return nil, kvpb.NewInvalidArgumentf("append on row %s has no cells", app.RowKey)
	}
	resp, err := t.mutateWithRetries(t.annotateCtx(ctx), app, t.nonces.Next(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Increment atomically adds to the numeric cells of one row and returns the
// post-increment row state. Increments carry a nonce so that retries are not
// re-applied.
func (t *Table) Increment(ctx context.Context, inc *kvpb.Increment) (*kvpb.Result, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if len(inc.RowKey) == 0 {
		return nil, kvpb.NewInvalidArgumentf("increment requires a row key")
	}
	if len(inc.Columns) == 0 {
		return nil, kvpb.NewInvalidArgumentf("increment on row %s has no columns", inc.RowKey)
	}
	resp, err := t.mutateWithRetries(t.annotateCtx(ctx), inc, t.nonces.Next(), nil)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// IncrementColumnValue atomically adds amount to one numeric cell and
// returns the new value.
func (t *Table) IncrementColumnValue(
	ctx context.Context, row kvpb.Key, family, qualifier []byte, amount int64,
) (int64, error) {
	if len(row) == 0 {
		return 0, kvpb.NewInvalidArgumentf("increment requires a row key")
	}
	if family == nil {
		return 0, kvpb.NewInvalidArgumentf("increment on row %s requires a column family", row)
	}
	if qualifier == nil {
		return 0, kvpb.NewInvalidArgumentf("increment on row %s requires a column qualifier", row)
	}
	inc := (&kvpb.Increment{RowKey: row}).AddColumn(family, qualifier, amount)
	res, err := t.Increment(ctx, inc)
	if err != nil {
		return 0, err
	}
	val := res.Value(family, qualifier)
	if val == nil {
		return 0, errors.AssertionFailedf("increment response missing the incremented cell")
	}
	return kvpb.DecodeInt64(val)
}

func (t *Table) checkAndMutateSingle(
	ctx context.Context,
	row kvpb.Key,
	family, qualifier []byte,
	op kvpb.CompareOp,
	value []byte,
	m kvpb.Mutation,
) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	if len(row) == 0 {
		return false, kvpb.NewInvalidArgumentf("conditional mutation requires a row key")
	}
	if !m.Row().Equal(row) {
		return false, kvpb.NewInvalidArgumentf(
			"conditional mutation row %s does not match condition row %s", m.Row(), row)
	}
	cond := &kvpb.Condition{RowKey: row, Family: family, Qualifier: qualifier, Op: op, Value: value}
	resp, err := t.mutateWithRetries(t.annotateCtx(ctx), m, kvpb.Nonce{}, cond)
	if err != nil {
		return false, err
	}
	return resp.Processed, nil
}

// CheckAndPut applies put iff the current value at (row, family, qualifier)
// equals value. A nil value checks for absence. It returns whether the put
// was applied.
func (t *Table) CheckAndPut(
	ctx context.Context, row kvpb.Key, family, qualifier, value []byte, put *kvpb.Put,
) (bool, error) {
	return t.CheckAndPutOp(ctx, row, family, qualifier, kvpb.CompareEqual, value, put)
}

// CheckAndPutOp applies put iff the current value at (row, family,
// qualifier) compares to value under op.
func (t *Table) CheckAndPutOp(
	ctx context.Context,
	row kvpb.Key,
	family, qualifier []byte,
	op kvpb.CompareOp,
	value []byte,
	put *kvpb.Put,
) (bool, error) {
	if err := t.validatePut(put); err != nil {
		return false, err
	}
	return t.checkAndMutateSingle(ctx, row, family, qualifier, op, value, put)
}

// CheckAndDelete applies del iff the current value at (row, family,
// qualifier) equals value.
func (t *Table) CheckAndDelete(
	ctx context.Context, row kvpb.Key, family, qualifier, value []byte, del *kvpb.Delete,
) (bool, error) {
	return t.CheckAndDeleteOp(ctx, row, family, qualifier, kvpb.CompareEqual, value, del)
}

// CheckAndDeleteOp applies del iff the current value at (row, family,
// qualifier) compares to value under op.
func (t *Table) CheckAndDeleteOp(
	ctx context.Context,
	row kvpb.Key,
	family, qualifier []byte,
	op kvpb.CompareOp,
	value []byte,
	del *kvpb.Delete,
) (bool, error) {
	if len(del.RowKey) == 0 {
		return false, kvpb.NewInvalidArgumentf("delete requires a row key")
	}
	return t.checkAndMutateSingle(ctx, row, family, qualifier, op, value, del)
}
