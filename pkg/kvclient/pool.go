// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"time"

	"github.com/gridkv/gridkv/pkg/util/syncutil"
	"golang.org/x/sync/errgroup"
)

// WorkerPool runs batch sub-operations concurrently. After Shutdown no new
// tasks are accepted; already submitted tasks run to completion.
type WorkerPool struct {
	g *errgroup.Group

	mu struct {
		syncutil.Mutex
		shutdown bool
	}
}

// NewWorkerPool returns a pool running at most maxWorkers tasks at once.
// maxWorkers <= 0 means unbounded.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	g := &errgroup.Group{}
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}
	return &WorkerPool{g: g}
}

// Go submits fn, returning false if the pool has been shut down.
func (p *WorkerPool) Go(fn func()) bool {
	p.mu.Lock()
	if p.mu.shutdown {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()
	p.g.Go(func() error {
		fn()
		return nil
	})
	return true
}

// Shutdown stops the pool from accepting new tasks.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mu.shutdown = true
}

// AwaitTermination waits up to d for all submitted tasks to finish,
// returning whether they did.
func (p *WorkerPool) AwaitTermination(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_ = p.g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
