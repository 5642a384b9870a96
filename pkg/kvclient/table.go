// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/gridkv/gridkv/pkg/kvclient/rangecache"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/rpc"
	"github.com/gridkv/gridkv/pkg/util/log"
	"github.com/gridkv/gridkv/pkg/util/timeutil"
)

// TableName identifies a table.
type TableName struct {
	Name string
	// System marks cluster-internal tables.
	System bool
}

func (t TableName) String() string { return t.Name }

// TableOptions wires a Table's collaborators. Config and Stub are required
// together with either Locator or LookupDB; everything else has defaults.
type TableOptions struct {
	Config Config
	// Stub is the wire boundary to region servers.
	Stub RemoteStub
	// Locator resolves rows to regions. When nil, a rangecache.Cache is
	// built over LookupDB.
	Locator RegionLookup
	// LookupDB backs the default locator.
	LookupDB rangecache.DB
	// Caller overrides the default retrying caller.
	Caller RetryingCaller
	// Dispatcher overrides the default concurrent dispatcher.
	Dispatcher Dispatcher
	// Pool runs batch sub-operations. When nil the table owns a private pool
	// and shuts it down on Close.
	Pool *WorkerPool
	// Conn, when set, is closed on Close if OwnsConn is also set.
	Conn     *rpc.Connection
	OwnsConn bool
	// Nonces overrides the default nonce source.
	Nonces NonceSource
	// Metrics, when nil, is built unregistered.
	Metrics *Metrics
	// DefaultConsistency applies to gets that leave consistency unset.
	DefaultConsistency kvpb.Consistency

	// Writer overrides the lazily built write buffer.
	Writer BufferedWriter
}

// Table is a handle for issuing operations against one table. It is
// lightweight and NOT safe for concurrent use; shared state (connection,
// locator, pool) is passed in through TableOptions and may be shared across
// tables.
type Table struct {
	name    TableName
	cfg     Config
	stub    RemoteStub
	locator RegionLookup
	caller  RetryingCaller
	disp    Dispatcher
	pool    *WorkerPool
	conn    *rpc.Connection
	nonces  NonceSource
	metrics *Metrics

	ownsPool bool
	ownsConn bool

	defaultConsistency kvpb.Consistency

	// writer is built lazily on first buffered put.
	writer BufferedWriter

	closed bool

	// nowFn is the clock used for deadline arithmetic; injectable in tests.
	nowFn func() time.Time
}

// NewTable returns a handle for the named table.
func NewTable(name TableName, opts TableOptions) (*Table, error) {
	if opts.Stub == nil {
		return nil, errors.New("table requires a remote stub")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	t := &Table{
		name:               name,
		cfg:                opts.Config,
		stub:               opts.Stub,
		locator:            opts.Locator,
		caller:             opts.Caller,
		disp:               opts.Dispatcher,
		pool:               opts.Pool,
		conn:               opts.Conn,
		nonces:             opts.Nonces,
		metrics:            opts.Metrics,
		ownsConn:           opts.OwnsConn,
		defaultConsistency: opts.DefaultConsistency,
		writer:             opts.Writer,
		nowFn:              timeutil.Now,
	}
	if t.locator == nil {
		if opts.LookupDB == nil {
			return nil, errors.New("table requires a locator or a lookup DB")
		}
		t.locator = rangecache.New(opts.LookupDB)
	}
	if t.caller == nil {
		t.caller = newCaller(t.cfg)
	}
	if t.pool == nil {
		t.pool = NewWorkerPool(t.cfg.MaxPoolWorkers)
		t.ownsPool = true
	}
	if t.nonces == nil {
		t.nonces = newNonceSource()
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(nil)
	}
	if t.disp == nil {
		t.disp = &defaultDispatcher{
			locator: t.locator,
			stub:    t.stub,
			caller:  t.caller,
			nonces:  t.nonces,
			pool:    t.pool,
		}
	}
	if t.defaultConsistency == kvpb.ConsistencyUnset {
		t.defaultConsistency = kvpb.ConsistencyStrong
	}
	return t, nil
}

// Name returns the table's name.
func (t *Table) Name() TableName { return t.name }

// OperationTimeout returns the per-operation budget.
func (t *Table) OperationTimeout() time.Duration { return t.cfg.OperationTimeout }

// SetOperationTimeout adjusts the per-operation budget for subsequent
// operations on this handle.
func (t *Table) SetOperationTimeout(d time.Duration) { t.cfg.OperationTimeout = d }

// RPCTimeout returns the per-attempt budget.
func (t *Table) RPCTimeout() time.Duration { return t.cfg.RPCTimeout }

// SetRPCTimeout adjusts the per-attempt budget.
func (t *Table) SetRPCTimeout(d time.Duration) { t.cfg.RPCTimeout = d }

// WriteBufferSize returns the write buffer's flush threshold.
func (t *Table) WriteBufferSize() int64 {
	if t.writer != nil {
		return t.writer.WriteBufferSize()
	}
	return t.cfg.WriteBufferSize
}

// SetWriteBufferSize adjusts the flush threshold. If the buffer already
// holds more than the new size it is flushed first.
func (t *Table) SetWriteBufferSize(ctx context.Context, size int64) error {
	if size <= 0 {
		return kvpb.NewInvalidArgumentf("write buffer size must be positive, got %d", size)
	}
	t.cfg.WriteBufferSize = size
	if t.writer != nil {
		return t.writer.SetWriteBufferSize(ctx, size)
	}
	return nil
}

// Metrics exposes the table's counters.
func (t *Table) Metrics() *Metrics { return t.metrics }

func (t *Table) callOptions() CallOptions {
	return CallOptions{
		OperationTimeout: t.cfg.OperationTimeout,
		RPCTimeout:       t.cfg.RPCTimeout,
	}
}

func (t *Table) annotateCtx(ctx context.Context) context.Context {
	return logtags.AddTag(ctx, "table", t.name.Name)
}

// getBufferedWriter returns the write buffer, building it on first use. The
// buffer inherits the table's single-owner discipline: it must only be used
// from the goroutine owning the table.
func (t *Table) getBufferedWriter() BufferedWriter {
	if t.writer == nil {
		t.writer = newBatchingWriter(t.name, t.disp, t.metrics, t.cfg.WriteBufferSize, t.callOptions())
	}
	return t.writer
}

// FlushCommits pushes any buffered puts to the servers.
func (t *Table) FlushCommits(ctx context.Context) error {
	return t.flushCommits(t.annotateCtx(ctx))
}

func (t *Table) flushCommits(ctx context.Context) error {
	if t.writer == nil {
		return nil
	}
	return t.writer.Flush(ctx)
}

// Close flushes buffered writes and releases owned resources. It is
// idempotent; operations on a closed table fail.
func (t *Table) Close(ctx context.Context) error {
	if t.closed {
		return nil
	}
	ctx = t.annotateCtx(ctx)
	flushCtx, cancel := context.WithTimeout(ctx, t.cfg.MetaOperationTimeout)
	err := t.flushCommits(flushCtx)
	cancel()
	if err != nil {
		log.Errorf(ctx, "flush on close failed: %v", err)
	}
	if t.ownsPool {
		t.pool.Shutdown()
		for !t.pool.AwaitTermination(60 * time.Second) {
			log.Warningf(ctx, "waiting for worker pool to drain")
		}
	}
	if t.ownsConn && t.conn != nil {
		if cerr := t.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	t.closed = true
	return err
}

func (t *Table) checkOpen() error {
	if t.closed {
		return kvpb.NewInvalidArgumentf("table %s is closed", t.name)
	}
	return nil
}

// regionEvictor is implemented by locators that cache, so that stale entries
// can be dropped after a not-serving error.
type regionEvictor interface {
	Evict(ctx context.Context, row kvpb.Key)
}

// maybeEvict drops the cached location for row when err indicates the
// contacted server no longer holds the region.
func (t *Table) maybeEvict(ctx context.Context, row kvpb.Key, err error) {
	var remote *kvpb.RemoteError
	if !errors.As(err, &remote) || remote.Kind != kvpb.RemoteKindNotServing {
		return
	}
	if ev, ok := t.locator.(regionEvictor); ok {
		ev.Evict(ctx, row)
	}
}
