// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package kvclient implements the client-side orchestration layer for a
// gridkv table: single-row reads and mutations, multi-row batches,
// conditional and atomic row mutations, and coprocessor fan-out over key
// ranges.
//
// A Table is a lightweight, non-thread-safe handle. Creating one is cheap;
// callers needing concurrency create one Table per goroutine, sharing the
// heavyweight collaborators (connection, region cache, worker pool) through
// TableOptions.
package kvclient
