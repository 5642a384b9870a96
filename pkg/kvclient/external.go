// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"time"

	"github.com/gridkv/gridkv/pkg/kvpb"
)

// RegionLookup resolves row keys to region locations, typically backed by
// the rangecache. The first location returned by LocateAll is the primary;
// the rest are read replicas. A successful LocateAll carries at least one
// location: a row with no known region is an error, not an empty result.
type RegionLookup interface {
	Locate(ctx context.Context, row kvpb.Key, reload bool) (kvpb.RegionLocation, error)
	LocateAll(ctx context.Context, row kvpb.Key, reload bool) ([]kvpb.RegionLocation, error)
}

// RegionCall is one retryable unit of remote work addressed by a row key.
// Execute runs a single attempt under the given per-attempt timeout.
type RegionCall interface {
	Row() kvpb.Key
	Execute(ctx context.Context, timeout time.Duration) (interface{}, error)
}

// CallOptions carries the deadlines of one retried call.
type CallOptions struct {
	// OperationTimeout bounds the whole call including retries.
	OperationTimeout time.Duration
	// RPCTimeout bounds each attempt.
	RPCTimeout time.Duration
}

// RetryingCaller runs a RegionCall under retry and deadline policy.
type RetryingCaller interface {
	CallWithRetries(ctx context.Context, call RegionCall, opts CallOptions) (interface{}, error)
}

// BatchResultCallback observes each successful per-action result as it
// arrives, before WaitUntilDone returns. Callbacks may run on pool
// goroutines and must be safe for concurrent invocation.
type BatchResultCallback func(regionName []byte, row kvpb.Key, res *kvpb.Result)

// RequestFuture tracks an in-flight batched submission.
type RequestFuture interface {
	// WaitUntilDone blocks until every submitted action has completed or ctx
	// is done.
	WaitUntilDone(ctx context.Context) error
	// HasErrors reports whether any action failed.
	HasErrors() bool
	// Errors returns the accumulated per-action failures, or nil.
	Errors() *kvpb.PartialFailureError
}

// Dispatcher routes a list of row-keyed actions to their regions and runs
// them concurrently.
type Dispatcher interface {
	// SubmitAll runs each action independently, storing the i-th outcome in
	// results[i] and invoking cb (if non-nil) per success.
	SubmitAll(
		ctx context.Context,
		actions []kvpb.Action,
		cb BatchResultCallback,
		results []*kvpb.Result,
		opts CallOptions,
	) RequestFuture
	// SubmitCall runs a single pre-built region call covering all the given
	// actions, distributing its response over results.
	SubmitCall(
		ctx context.Context,
		actions []kvpb.Action,
		results []*kvpb.Result,
		call RegionCall,
		opts CallOptions,
	) RequestFuture
}

// BufferedWriter accumulates puts client-side and flushes them in batches.
type BufferedWriter interface {
	Mutate(ctx context.Context, puts []*kvpb.Put) error
	Flush(ctx context.Context) error
	WriteBufferSize() int64
	SetWriteBufferSize(ctx context.Context, size int64) error
}

// RemoteStub is the wire boundary: one method per region-server RPC. The
// production implementation wraps a gRPC client; tests substitute fakes.
type RemoteStub interface {
	Get(ctx context.Context, loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error)
	Mutate(ctx context.Context, loc kvpb.RegionLocation, req *kvpb.MutateRequest) (*kvpb.MutateResponse, error)
	Multi(ctx context.Context, loc kvpb.RegionLocation, req *kvpb.MultiRequest) (*kvpb.MultiResponse, error)
	ExecCoprocessor(ctx context.Context, loc kvpb.RegionLocation, exec *kvpb.CoprocessorExec) (*kvpb.CoprocessorResponse, error)
}

// NonceSource generates nonces for non-idempotent mutations.
type NonceSource interface {
	Next() kvpb.Nonce
}
