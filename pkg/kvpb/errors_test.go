// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvpb

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorMarks(t *testing.T) {
	err := NewInvalidArgumentf("row %s is bad", Key("r"))
	require.True(t, IsInvalidArgument(err))
	require.True(t, IsDoNotRetry(err))
	require.False(t, IsTimeout(err))

	// Marks survive wrapping.
	wrapped := errors.Wrap(err, "outer")
	require.True(t, IsInvalidArgument(wrapped))
	require.True(t, IsDoNotRetry(wrapped))

	timeout := NewTimeoutf("budget gone")
	require.True(t, IsTimeout(timeout))
	require.True(t, IsDoNotRetry(timeout))
	require.False(t, IsInvalidArgument(timeout))

	plain := errors.New("transient")
	require.False(t, IsDoNotRetry(plain))
	require.True(t, IsDoNotRetry(MarkDoNotRetry(plain)))
}

func TestWrapInterrupted(t *testing.T) {
	cause := errors.New("context canceled")
	err := WrapInterrupted(cause, "waiting")
	require.True(t, IsInterrupted(err))
	require.True(t, errors.Is(err, cause))
	require.Contains(t, err.Error(), "waiting")
}

func TestRemoteError(t *testing.T) {
	err := NewRemoteError(RemoteKindNotServing, "s1:8080", Key("row1"), "region moved")
	require.Contains(t, err.Error(), "not-serving")
	require.Contains(t, err.Error(), "s1:8080")
	require.Contains(t, err.Error(), "region moved")

	var remote *RemoteError
	require.True(t, errors.As(errors.Wrap(err, "outer"), &remote))
	require.Equal(t, RemoteKindNotServing, remote.Kind)
}

func TestPartialFailureError(t *testing.T) {
	pfe := &PartialFailureError{Failures: []Failure{
		{Index: 4, Cause: errors.New("four")},
		{Index: 1, Cause: errors.New("one"), Server: "s2:8080"},
	}}
	require.Equal(t, []int{1, 4}, pfe.FailedIndexes())

	pfe.SortFailures()
	require.Equal(t, 1, pfe.Failures[0].Index)
	require.Contains(t, pfe.Error(), "index 1")
	require.Contains(t, pfe.Error(), "s2:8080")
	require.Contains(t, pfe.Error(), "2 action(s) failed")
}
