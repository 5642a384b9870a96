// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gridkv/gridkv/pkg/kvpb"
)

// clientNonceSource issues nonces under a per-process random group, with a
// monotonically increasing sequence. One nonce is drawn per logical mutation
// attempt and reused verbatim across its retries.
type clientNonceSource struct {
	group int64
	seq   int64
}

func newNonceSource() *clientNonceSource {
	id := uuid.New()
	return &clientNonceSource{
		group: int64(binary.BigEndian.Uint64(id[:8])),
	}
}

// Next implements NonceSource.
func (s *clientNonceSource) Next() kvpb.Nonce {
	return kvpb.Nonce{
		Group:    s.group,
		Sequence: atomic.AddInt64(&s.seq, 1),
	}
}
