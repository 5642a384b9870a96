// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import "github.com/gridkv/gridkv/pkg/kvpb"

// ScannerVariant names the scanner implementation strategy selected for a
// scan.
type ScannerVariant int

const (
	// ScannerSimple is the plain one-region-at-a-time scanner.
	ScannerSimple ScannerVariant = iota
	// ScannerAsyncPrefetch overlaps RPCs with result consumption.
	ScannerAsyncPrefetch
	// ScannerSmall fetches the whole scan in one RPC.
	ScannerSmall
	// ScannerReversed walks regions in descending key order.
	ScannerReversed
	// ScannerSmallReversed is a reversed scan expected to fit in one RPC.
	ScannerSmallReversed
)

func (v ScannerVariant) String() string {
	switch v {
	case ScannerSimple:
		return "simple"
	case ScannerAsyncPrefetch:
		return "async-prefetch"
	case ScannerSmall:
		return "small"
	case ScannerReversed:
		return "reversed"
	case ScannerSmallReversed:
		return "small-reversed"
	default:
		return "unknown"
	}
}

// ScannerSpec is a validated, defaulted scan together with the variant that
// should execute it.
type ScannerSpec struct {
	Scan    kvpb.Scan
	Variant ScannerVariant
}

// Scanner validates scan, fills configuration defaults and selects the
// scanner variant. Scanning itself is performed by the scanner
// implementations built on the returned spec.
func (t *Table) Scanner(scan kvpb.Scan) (ScannerSpec, error) {
	if err := t.checkOpen(); err != nil {
		return ScannerSpec{}, err
	}
	if !scan.StopRow.IsSentinel() && scan.StartRow.Compare(scan.StopRow) > 0 {
		return ScannerSpec{}, kvpb.NewInvalidArgumentf(
			"invalid scan: start row %s after stop row %s", scan.StartRow, scan.StopRow)
	}
	if scan.Small && scan.Batch > 0 {
		return ScannerSpec{}, kvpb.NewInvalidArgumentf(
			"small scans cannot limit cells per row")
	}
	if scan.Caching <= 0 {
		scan.Caching = t.cfg.ScannerCaching
	}
	if scan.MaxResultSize <= 0 {
		scan.MaxResultSize = t.cfg.ScannerMaxResultSize
	}
	if scan.Consistency == kvpb.ConsistencyUnset {
		scan.Consistency = t.defaultConsistency
	}

	var variant ScannerVariant
	switch {
	case scan.Small && scan.Reversed:
		variant = ScannerSmallReversed
	case scan.Small:
		variant = ScannerSmall
	case scan.Reversed:
		variant = ScannerReversed
	default:
		prefetch := t.cfg.ScannerAsyncPrefetch
		if scan.AsyncPrefetch != nil {
			prefetch = *scan.AsyncPrefetch
		}
		if prefetch {
			variant = ScannerAsyncPrefetch
		} else {
			variant = ScannerSimple
		}
	}
	return ScannerSpec{Scan: scan, Variant: variant}, nil
}
