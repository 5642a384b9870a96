// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
	"github.com/gridkv/gridkv/pkg/util/retry"
)

// defaultCaller retries a RegionCall with exponential backoff under an
// operation-wide deadline.
type defaultCaller struct {
	retryOpts retry.Options
}

func newCaller(cfg Config) *defaultCaller {
	return &defaultCaller{retryOpts: cfg.retryOptions()}
}

// CallWithRetries implements RetryingCaller. The whole call, retries
// included, runs under opts.OperationTimeout; each attempt additionally runs
// under opts.RPCTimeout. Errors marked do-not-retry surface immediately.
func (c *defaultCaller) CallWithRetries(
	ctx context.Context, call RegionCall, opts CallOptions,
) (interface{}, error) {
	opCtx := ctx
	if opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, opts.OperationTimeout)
		defer cancel()
	}

	var lastErr error
	for r := retry.StartWithCtx(opCtx, c.retryOpts); r.Next(); {
		res, err := call.Execute(opCtx, opts.RPCTimeout)
		if err == nil {
			return res, nil
		}
		if kvpb.IsDoNotRetry(err) {
			return nil, err
		}
		lastErr = err
		if log.V(1) {
			log.VEventf(opCtx, 1, "attempt %d on row %s failed: %v",
				r.CurrentAttempt()+1, call.Row(), err)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The caller's own context was canceled; failed attempts along the
		// way ride along as secondary detail.
		err := kvpb.WrapInterrupted(ctxErr, "call interrupted")
		if lastErr != nil {
			err = errors.WithSecondaryError(err, lastErr)
		}
		return nil, err
	}
	if opCtx.Err() != nil {
		// The operation deadline expired.
		err := kvpb.NewTimeoutf("operation timed out after %s on row %s",
			opts.OperationTimeout, call.Row())
		if lastErr != nil {
			err = errors.WithSecondaryError(err, lastErr)
		}
		return nil, err
	}
	if lastErr == nil {
		return nil, errors.AssertionFailedf("retry loop ended without an attempt on row %s", call.Row())
	}
	return nil, errors.Wrapf(lastErr, "retries exhausted on row %s", call.Row())
}
