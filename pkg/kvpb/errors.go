// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvpb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Reference errors used as marks on returned errors. Callers test for them
// with errors.Is; the concrete errors carry the details.
var (
	// ErrInvalidArgument marks a request rejected before any network call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTimeout marks an exhausted operation budget. Never retried.
	ErrTimeout = errors.New("operation timed out")
	// ErrInterrupted marks a wait on concurrent completion that was cut
	// short by context cancellation.
	ErrInterrupted = errors.New("interrupted")
	// ErrDoNotRetry marks errors the retrying caller must surface
	// immediately instead of retrying.
	ErrDoNotRetry = errors.New("do not retry")
)

// NewInvalidArgumentf returns a non-retryable invalid-argument error.
func NewInvalidArgumentf(format string, args ...interface{}) error {
	return errors.Mark(errors.Mark(errors.Newf(format, args...), ErrInvalidArgument), ErrDoNotRetry)
}

// IsInvalidArgument returns whether err is marked as an invalid-argument
// failure.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// NewTimeoutf returns a non-retryable timeout error.
func NewTimeoutf(format string, args ...interface{}) error {
	return errors.Mark(errors.Mark(errors.Newf(format, args...), ErrTimeout), ErrDoNotRetry)
}

// IsTimeout returns whether err is marked as a timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// MarkDoNotRetry marks err as non-retryable.
func MarkDoNotRetry(err error) error { return errors.Mark(err, ErrDoNotRetry) }

// IsDoNotRetry returns whether err must not be retried.
func IsDoNotRetry(err error) bool { return errors.Is(err, ErrDoNotRetry) }

// WrapInterrupted wraps a context error raised while waiting on concurrent
// completion. Interruption is never silently swallowed; it surfaces as an
// I/O-class error.
func WrapInterrupted(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrInterrupted)
}

// IsInterrupted returns whether err is marked as an interruption.
func IsInterrupted(err error) bool { return errors.Is(err, ErrInterrupted) }

// RemoteErrorKind tags a region-server-reported failure. Callers switch on
// the tag instead of type-checking wrapped causes.
type RemoteErrorKind int

const (
	// RemoteKindUnspecified is a failure the translation layer could not
	// classify.
	RemoteKindUnspecified RemoteErrorKind = iota
	// RemoteKindIO is an I/O-class server failure. Re-raised as-is by
	// callers rather than wrapped.
	RemoteKindIO
	// RemoteKindNotServing means the addressed region is not served by the
	// contacted server, typically because the cached location is stale.
	RemoteKindNotServing
	// RemoteKindProtocol is a malformed or unexpected remote response.
	RemoteKindProtocol
)

func (k RemoteErrorKind) String() string {
	switch k {
	case RemoteKindIO:
		return "io"
	case RemoteKindNotServing:
		return "not-serving"
	case RemoteKindProtocol:
		return "protocol"
	default:
		return "unspecified"
	}
}

// RemoteError is a region-server-reported failure translated from the wire
// protocol.
type RemoteError struct {
	Kind    RemoteErrorKind
	Server  string
	RowKey  Key
	Message string
}

// NewRemoteError builds a translated remote failure.
func NewRemoteError(kind RemoteErrorKind, server string, row Key, message string) *RemoteError {
	return &RemoteError{Kind: kind, Server: server, RowKey: row, Message: message}
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "remote error (%s)", e.Kind)
	if e.Server != "" {
		fmt.Fprintf(&b, " from %s", e.Server)
	}
	if len(e.RowKey) > 0 {
		fmt.Fprintf(&b, " on row %s", e.RowKey)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

// Failure is one failed sub-operation of a batched or fanned-out call.
type Failure struct {
	// Index is the position of the failed action in the submitted list.
	Index  int
	Action Action
	Cause  error
	// Server is the target server of the failed call, when known.
	Server string
}

// PartialFailureError aggregates the failed sub-operations of one batched or
// fanned-out call. It is a sidecar, not a replacement: successful results
// remain readable in the caller's results array or map.
type PartialFailureError struct {
	Failures []Failure
}

func (e *PartialFailureError) Error() string {
	if len(e.Failures) == 0 {
		return "batch failed with no recorded failures"
	}
	first := e.Failures[0]
	return fmt.Sprintf("%d action(s) failed; first failure at index %d on server %q: %v",
		len(e.Failures), first.Index, first.Server, first.Cause)
}

// FailedIndexes returns the sorted input indexes of the failed actions.
func (e *PartialFailureError) FailedIndexes() []int {
	idx := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		idx[i] = f.Index
	}
	sort.Ints(idx)
	return idx
}

// SortFailures orders the failures by input index, for deterministic
// reporting.
func (e *PartialFailureError) SortFailures() {
	sort.Slice(e.Failures, func(i, j int) bool { return e.Failures[i].Index < e.Failures[j].Index })
}
