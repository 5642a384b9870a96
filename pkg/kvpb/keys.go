// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package kvpb contains the data model and protocol types exchanged between
// the gridkv client and region servers: row keys, region descriptors, the
// action variants routed by row key, and the error taxonomy shared by all
// client operations.
package kvpb

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Key is an opaque row key. Ordering is lexicographic over unsigned bytes.
// The empty key is a sentinel: as a start key it means "start of table" and
// as an end key it means "end of table".
type Key []byte

// Compare returns -1, 0 or 1 depending on whether k sorts before, equal to
// or after o. Sentinel semantics are the caller's concern; Compare is plain
// byte comparison.
func (k Key) Compare(o Key) int { return bytes.Compare(k, o) }

// Equal returns whether k and o hold the same bytes.
func (k Key) Equal(o Key) bool { return bytes.Equal(k, o) }

// Less returns whether k sorts strictly before o.
func (k Key) Less(o Key) bool { return bytes.Compare(k, o) < 0 }

// IsSentinel returns whether k is the empty table-boundary sentinel.
func (k Key) IsSentinel() bool { return len(k) == 0 }

// Next returns the next key in lexicographic order, i.e. k with a zero byte
// appended. The receiver is not modified.
func (k Key) Next() Key {
	next := make(Key, len(k)+1)
	copy(next, k)
	return next
}

// Clone returns a copy of k.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	c := make(Key, len(k))
	copy(c, k)
	return c
}

func (k Key) String() string {
	if len(k) == 0 {
		return "/Min"
	}
	return string(redact.EscapeBytes(k))
}

// RegionInfo describes one region: a contiguous, non-overlapping key-range
// partition of a table. Key ranges are half-open [StartKey, EndKey); an
// empty EndKey denotes the table's last region.
type RegionInfo struct {
	// RegionName uniquely identifies the region. Fan-out result maps are
	// keyed by it, ordered by unsigned byte comparison.
	RegionName []byte
	StartKey   Key
	EndKey     Key
}

// ContainsKey returns whether the region's half-open key range contains k.
func (r RegionInfo) ContainsKey(k Key) bool {
	return r.StartKey.Compare(k) <= 0 && (r.EndKey.IsSentinel() || k.Compare(r.EndKey) < 0)
}

// SafeFormat implements redact.SafeFormatter. Region names are operator
// metadata and are printed unredacted; row keys are user data.
func (r RegionInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("region{%s: [%s, %s)}", redact.SafeString(r.RegionName), r.StartKey, r.EndKey)
}

func (r RegionInfo) String() string { return redact.StringWithoutMarkers(r) }

// RegionLocation pairs a region with the server currently holding it.
// Locations served from a cache may be stale.
type RegionLocation struct {
	Region RegionInfo
	// Server is the "host:port" of the serving replica.
	Server string
}

// EncodeInt64 encodes v as 8 big-endian bytes, the cell encoding used by
// increment columns.
func EncodeInt64(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// DecodeInt64 decodes an 8-byte big-endian cell value.
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, errors.Newf("int64 cell must be 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
