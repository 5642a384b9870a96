// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package retry provides an exponential-backoff retry loop. The loop object
// carries no policy about which errors are retryable; that is the caller's
// concern.
package retry

import (
	"context"
	"math"
	"time"
)

// Options configures a Retry loop.
type Options struct {
	// InitialBackoff is the sleep before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the sleep between retries.
	MaxBackoff time.Duration
	// Multiplier is the backoff growth factor per retry.
	Multiplier float64
	// MaxRetries bounds the number of retries (not counting the first
	// attempt). 0 means retry until the context is done.
	MaxRetries int
}

const (
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
	defaultMultiplier     = 2
)

// Retry is a single retry loop in progress. Use it as:
//
//	for r := retry.StartWithCtx(ctx, opts); r.Next(); {
//		...
//	}
type Retry struct {
	opts           Options
	ctx            context.Context
	currentAttempt int
	isReset        bool
}

// Start returns a Retry not bound to any context.
func Start(opts Options) Retry {
	return StartWithCtx(context.Background(), opts)
}

// StartWithCtx returns a Retry whose backoff sleeps abort when ctx is done.
func StartWithCtx(ctx context.Context, opts Options) Retry {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Multiplier <= 1 {
		opts.Multiplier = defaultMultiplier
	}
	r := Retry{opts: opts, ctx: ctx}
	r.Reset()
	return r
}

// Reset rewinds the loop: the next call to Next returns immediately and the
// backoff restarts from InitialBackoff.
func (r *Retry) Reset() {
	r.currentAttempt = 0
	r.isReset = true
}

// CurrentAttempt returns the number of retries performed so far.
func (r *Retry) CurrentAttempt() int { return r.currentAttempt }

func (r *Retry) retryIn() time.Duration {
	backoff := float64(r.opts.InitialBackoff) * math.Pow(r.opts.Multiplier, float64(r.currentAttempt))
	if maxBackoff := float64(r.opts.MaxBackoff); backoff > maxBackoff {
		backoff = maxBackoff
	}
	return time.Duration(backoff)
}

// Next returns whether another attempt should be made. The first call after
// Start/Reset returns true immediately; subsequent calls sleep for the
// current backoff first. Next returns false once MaxRetries is exceeded or
// the context is done.
func (r *Retry) Next() bool {
	if r.isReset {
		r.isReset = false
		return true
	}
	if r.opts.MaxRetries > 0 && r.currentAttempt >= r.opts.MaxRetries {
		return false
	}
	timer := time.NewTimer(r.retryIn())
	defer timer.Stop()
	select {
	case <-timer.C:
		r.currentAttempt++
		return true
	case <-r.ctx.Done():
		return false
	}
}
