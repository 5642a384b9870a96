// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts client-side orchestration events. All fields are non-nil
// after NewMetrics.
type Metrics struct {
	// Batches counts multi-action submissions.
	Batches prometheus.Counter
	// Fanouts counts range fan-outs (coprocessor executions).
	Fanouts prometheus.Counter
	// PartialFailures counts batched calls that completed with at least one
	// failed action.
	PartialFailures prometheus.Counter
	// Flushes counts write-buffer flushes.
	Flushes prometheus.Counter
}

// NewMetrics builds the client metrics and registers them with reg if it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridkv", Subsystem: "client",
			Name: "batches_total", Help: "Multi-action submissions.",
		}),
		Fanouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridkv", Subsystem: "client",
			Name: "fanouts_total", Help: "Key-range fan-outs.",
		}),
		PartialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridkv", Subsystem: "client",
			Name: "partial_failures_total", Help: "Batched calls with at least one failed action.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridkv", Subsystem: "client",
			Name: "flushes_total", Help: "Write-buffer flushes.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Batches, m.Fanouts, m.PartialFailures, m.Flushes)
	}
	return m
}
