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

// batchingWriter is the default BufferedWriter. It accumulates puts until
// their byte footprint reaches the buffer size, then flushes them through
// the dispatcher. Like the Table owning it, it is not safe for concurrent
// use.
type batchingWriter struct {
	name    TableName
	disp    Dispatcher
	metrics *Metrics
	opts    CallOptions

	bufferSize int64
	buffered   int64
	puts       []*kvpb.Put
}

var _ BufferedWriter = (*batchingWriter)(nil)

func newBatchingWriter(
	name TableName, disp Dispatcher, metrics *Metrics, bufferSize int64, opts CallOptions,
) *batchingWriter {
	return &batchingWriter{
		name:       name,
		disp:       disp,
		metrics:    metrics,
		opts:       opts,
		bufferSize: bufferSize,
	}
}

// Mutate implements BufferedWriter. Puts that push the buffer past its size
// trigger a flush before Mutate returns.
func (w *batchingWriter) Mutate(ctx context.Context, puts []*kvpb.Put) error {
	for _, p := range puts {
		w.puts = append(w.puts, p)
		w.buffered += int64(p.Size())
	}
	if w.buffered >= w.bufferSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush implements BufferedWriter. On partial failure the failed puts stay
// buffered for the next flush; the successes are dropped.
func (w *batchingWriter) Flush(ctx context.Context) error {
	if len(w.puts) == 0 {
		return nil
	}
	w.metrics.Flushes.Inc()
	if log.V(1) {
		log.VEventf(ctx, 1, "flushing %d put(s) (%d bytes) for table %s",
			len(w.puts), w.buffered, w.name)
	}

	actions := make([]kvpb.Action, len(w.puts))
	for i, p := range w.puts {
		actions[i] = p
	}
	results := make([]*kvpb.Result, len(actions))
	future := w.disp.SubmitAll(ctx, actions, nil, results, w.opts)
	if err := future.WaitUntilDone(ctx); err != nil {
		return err
	}
	if !future.HasErrors() {
		w.puts = nil
		w.buffered = 0
		return nil
	}

	err := future.Errors()
	w.metrics.PartialFailures.Inc()
	// Retain only the failed puts, walking backwards so indexes stay valid.
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != nil {
			w.puts = append(w.puts[:i], w.puts[i+1:]...)
		}
	}
	w.buffered = 0
	for _, p := range w.puts {
		w.buffered += int64(p.Size())
	}
	return err
}

// WriteBufferSize implements BufferedWriter.
func (w *batchingWriter) WriteBufferSize() int64 { return w.bufferSize }

// SetWriteBufferSize implements BufferedWriter. Shrinking below the current
// buffered footprint flushes first.
func (w *batchingWriter) SetWriteBufferSize(ctx context.Context, size int64) error {
	w.bufferSize = size
	if w.buffered >= size {
		return w.Flush(ctx)
	}
	return nil
}
