// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
)

// defaultDispatcher fans row-keyed actions out over the worker pool, one
// retried call per action, and collects per-action outcomes into a
// requestFuture.
type defaultDispatcher struct {
	locator RegionLookup
	stub    RemoteStub
	caller  RetryingCaller
	nonces  NonceSource
	pool    *WorkerPool
}

var _ Dispatcher = (*defaultDispatcher)(nil)

// actionCall adapts one action to the RegionCall interface. The location is
// resolved fresh on every attempt so that retries see cache refreshes; the
// last target server is remembered for failure reporting.
type actionCall struct {
	d      *defaultDispatcher
	action kvpb.Action
	nonce  kvpb.Nonce

	mu struct {
		sync.Mutex
		lastServer string
	}
}

func (c *actionCall) Row() kvpb.Key { return c.action.Row() }

func (c *actionCall) lastServer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.lastServer
}

func (c *actionCall) Execute(ctx context.Context, timeout time.Duration) (interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	loc, err := c.d.locator.Locate(ctx, c.action.Row(), false /* reload */)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.mu.lastServer = loc.Server
	c.mu.Unlock()

	switch a := c.action.(type) {
	case *kvpb.Get:
		return c.d.stub.Get(ctx, loc, a)
	case *kvpb.CoprocessorExec:
		exec := *a
		exec.RegionName = loc.Region.RegionName
		resp, err := c.d.stub.ExecCoprocessor(ctx, loc, &exec)
		if err != nil {
			return nil, err
		}
		return &kvpb.Result{RowKey: a.RowKey, ServicePayload: resp.Payload}, nil
	case kvpb.Mutation:
		req := &kvpb.MutateRequest{
			RegionName: loc.Region.RegionName,
			Mutation:   a,
			Nonce:      c.nonce,
		}
		resp, err := c.d.stub.Mutate(ctx, loc, req)
		if err != nil {
			return nil, err
		}
		if resp.Result != nil {
			return resp.Result, nil
		}
		return &kvpb.Result{RowKey: a.Row()}, nil
	default:
		return nil, errors.AssertionFailedf("unhandled action type %T", c.action)
	}
}

// SubmitAll implements Dispatcher.
func (d *defaultDispatcher) SubmitAll(
	ctx context.Context,
	actions []kvpb.Action,
	cb BatchResultCallback,
	results []*kvpb.Result,
	opts CallOptions,
) RequestFuture {
	f := newRequestFuture()
	for i, action := range actions {
		f.wg.Add(1)
		i, action := i, action
		submitted := d.pool.Go(func() {
			defer f.wg.Done()
			d.executeAction(ctx, i, action, cb, results, opts, f)
		})
		if !submitted {
			f.addFailure(kvpb.Failure{
				Index:  i,
				Action: action,
				Cause:  errors.New("worker pool is shut down"),
			})
			f.wg.Done()
		}
	}
	go f.finish()
	return f
}

func (d *defaultDispatcher) executeAction(
	ctx context.Context,
	idx int,
	action kvpb.Action,
	cb BatchResultCallback,
	results []*kvpb.Result,
	opts CallOptions,
	f *requestFuture,
) {
	call := &actionCall{d: d, action: action}
	switch action.(type) {
	case *kvpb.Append, *kvpb.Increment:
		// One nonce per logical attempt, fixed before the retry loop.
		call.nonce = d.nonces.Next()
	}
	res, err := d.caller.CallWithRetries(ctx, call, opts)
	if err != nil {
		f.addFailure(kvpb.Failure{
			Index:  idx,
			Action: action,
			Cause:  err,
			Server: call.lastServer(),
		})
		return
	}
	result := res.(*kvpb.Result)
	results[idx] = result
	if cb != nil {
		regionName := []byte(nil)
		if exec, ok := action.(*kvpb.CoprocessorExec); ok {
			regionName = exec.RegionName
		}
		cb(regionName, action.Row(), result)
	}
}

// SubmitCall implements Dispatcher: it runs one pre-built call covering all
// the given actions and spreads its MultiResponse over results.
func (d *defaultDispatcher) SubmitCall(
	ctx context.Context,
	actions []kvpb.Action,
	results []*kvpb.Result,
	call RegionCall,
	opts CallOptions,
) RequestFuture {
	f := newRequestFuture()
	f.wg.Add(1)
	submitted := d.pool.Go(func() {
		defer f.wg.Done()
		res, err := d.caller.CallWithRetries(ctx, call, opts)
		if err != nil {
			for i, action := range actions {
				f.addFailure(kvpb.Failure{Index: i, Action: action, Cause: err})
			}
			return
		}
		resp, ok := res.(*kvpb.MultiResponse)
		if !ok {
			for i, action := range actions {
				f.addFailure(kvpb.Failure{
					Index: i, Action: action,
					Cause: errors.AssertionFailedf("unexpected response type %T", res),
				})
			}
			return
		}
		var flat []*kvpb.Result
		for _, rr := range resp.RegionResults {
			flat = append(flat, rr.Results...)
		}
		for i := range results {
			r := &kvpb.Result{}
			if i < len(flat) && flat[i] != nil {
				r = flat[i]
			}
			if r.Exists == nil {
				// Slots without an explicit verdict carry the response-wide one.
				p := resp.Processed
				r.Exists = &p
			}
			results[i] = r
		}
	})
	if !submitted {
		for i, action := range actions {
			f.addFailure(kvpb.Failure{
				Index: i, Action: action,
				Cause: errors.New("worker pool is shut down"),
			})
		}
		f.wg.Done()
	}
	go f.finish()
	return f
}

// requestFuture tracks the completion and failures of one submission.
type requestFuture struct {
	wg   sync.WaitGroup
	done chan struct{}

	mu struct {
		sync.Mutex
		failures []kvpb.Failure
	}
}

func newRequestFuture() *requestFuture {
	return &requestFuture{done: make(chan struct{})}
}

func (f *requestFuture) finish() {
	f.wg.Wait()
	close(f.done)
}

func (f *requestFuture) addFailure(failure kvpb.Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mu.failures = append(f.mu.failures, failure)
}

// WaitUntilDone implements RequestFuture.
func (f *requestFuture) WaitUntilDone(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return kvpb.WrapInterrupted(ctx.Err(), "waiting for batch completion")
	}
}

// HasErrors implements RequestFuture.
func (f *requestFuture) HasErrors() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mu.failures) > 0
}

// Errors implements RequestFuture.
func (f *requestFuture) Errors() *kvpb.PartialFailureError {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.mu.failures) == 0 {
		return nil
	}
	err := &kvpb.PartialFailureError{Failures: append([]kvpb.Failure(nil), f.mu.failures...)}
	err.SortFailures()
	return err
}
