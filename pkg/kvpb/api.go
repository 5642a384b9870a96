// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvpb

import "bytes"

// Result is the outcome of a single-row operation. For existence-only gets
// only Exists is populated. For coprocessor executions only ServicePayload
// is populated. For plain mutations the result is empty and merely marks
// success.
type Result struct {
	RowKey Key
	Cells  []Cell
	// Exists is set for existence-only gets and for conditional mutations,
	// where it carries the server's "processed" verdict.
	Exists *bool
	// ServicePayload is the raw coprocessor response, deserialized by the
	// fan-out layer into the caller's expected response type.
	ServicePayload []byte
}

// Value returns the value of the first cell matching family and qualifier,
// or nil if the result holds no such cell.
func (r *Result) Value(family, qualifier []byte) []byte {
	for _, c := range r.Cells {
		if bytes.Equal(c.Family, family) && bytes.Equal(c.Qualifier, qualifier) {
			return c.Value
		}
	}
	return nil
}

// Empty returns whether the result carries no cells.
func (r *Result) Empty() bool { return len(r.Cells) == 0 }

// MutateRequest is a single-row mutate call against one region.
type MutateRequest struct {
	RegionName []byte
	Mutation   Mutation
	// Nonce is set for non-idempotent mutations (append, increment). The
	// zero nonce means "no nonce".
	Nonce Nonce
	// Condition, when set, makes the mutation conditional.
	Condition *Condition
}

// MutateResponse is the server's answer to a MutateRequest.
type MutateResponse struct {
	Result *Result
	// Processed reports whether a conditional mutation's condition held and
	// the mutation was applied.
	Processed bool
}

// RegionAction is a group of mutations addressed to one region within a
// MultiRequest. When Atomic is set the server applies all of them or none.
type RegionAction struct {
	RegionName []byte
	Atomic     bool
	Mutations  []Mutation
	// Condition, when set, guards the whole action group.
	Condition *Condition
}

// MultiRequest carries one or more RegionActions in a single remote call.
type MultiRequest struct {
	RegionActions []RegionAction
}

// RegionActionResult is the per-RegionAction slot of a MultiResponse.
// Exactly one of Failure or Results is meaningful.
type RegionActionResult struct {
	Results []*Result
	// Failure is a region-server-reported failure for the whole action
	// group, carrying an explicit error-kind tag.
	Failure *RemoteError
}

// MultiResponse is the server's answer to a MultiRequest, one slot per
// RegionAction in request order.
type MultiResponse struct {
	RegionResults []RegionActionResult
	// Processed reports the verdict of a conditional MultiRequest. Servers
	// may report the verdict here, on the per-mutation result slots, or
	// both; slots without one inherit Processed.
	Processed bool
}

// CoprocessorResponse is the raw answer to one per-region procedure
// execution. Payload decoding is the caller's concern.
type CoprocessorResponse struct {
	Payload []byte
}

// Scan describes a range read. The client only validates and defaults it
// (scanner-variant selection); scanning itself is performed by scanner
// implementations outside this module's core.
type Scan struct {
	StartRow Key
	StopRow  Key
	// Caching is the number of rows fetched per scanner RPC; 0 defers to
	// the client configuration.
	Caching int
	// MaxResultSize bounds the bytes fetched per scanner RPC; 0 defers to
	// the client configuration.
	MaxResultSize int64
	// Batch limits the number of cells returned per row per RPC.
	Batch int
	// Small marks a scan expected to fit entirely in one RPC.
	Small    bool
	Reversed bool
	// AsyncPrefetch, when set, overrides the configured prefetch default.
	AsyncPrefetch *bool
	Consistency   Consistency
}
