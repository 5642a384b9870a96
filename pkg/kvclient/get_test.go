// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/stretchr/testify/require"
)

func TestGetStrong(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			require.Equal(t, "s2:1", loc.Server)
			return &kvpb.Result{
				RowKey: get.RowKey,
				Cells:  []kvpb.Cell{{Family: []byte("f"), Qualifier: []byte("q"), Value: []byte("v")}},
			}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	res, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h")})
	require.NoError(t, err)
	require.Equal(t, []byte("v"), res.Value([]byte("f"), []byte("q")))
	require.Equal(t, 1, stub.getCalls())
}

func TestGetRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	calls := 0
	stub := &testStub{
		onGet: func(_ kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return &kvpb.Result{RowKey: get.RowKey}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	_, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h")})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestGetDoesNotRetryInvalidArgument(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(kvpb.RegionLocation, *kvpb.Get) (*kvpb.Result, error) {
			return nil, kvpb.NewInvalidArgumentf("bad request")
		},
	}
	tbl := newTestTable(t, stub, nil)

	_, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h")})
	require.True(t, kvpb.IsInvalidArgument(err))
	require.Equal(t, 1, stub.getCalls())
}

func TestGetDoesNotMutateCallerRequest(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, &testStub{}, nil)

	get := &kvpb.Get{RowKey: kvpb.Key("h")}
	_, err := tbl.Exists(ctx, get)
	require.NoError(t, err)
	require.False(t, get.ExistenceOnly)
	require.Equal(t, kvpb.ConsistencyUnset, get.Consistency)
}

func TestGetEmptyRowKey(t *testing.T) {
	tbl := newTestTable(t, &testStub{}, nil)
	_, err := tbl.Get(context.Background(), &kvpb.Get{})
	require.True(t, kvpb.IsInvalidArgument(err))
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(_ kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			require.True(t, get.ExistenceOnly)
			exists := false
			return &kvpb.Result{RowKey: get.RowKey, Exists: &exists}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	ok, err := tbl.Exists(ctx, &kvpb.Get{RowKey: kvpb.Key("h")})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExistsMissingVerdict(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(_ kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			return &kvpb.Result{RowKey: get.RowKey}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	_, err := tbl.Exists(ctx, &kvpb.Get{RowKey: kvpb.Key("h")})
	require.Error(t, err)
}

func TestTimelineGetPrimaryWins(t *testing.T) {
	ctx := context.Background()
	locator := newTestLocator()
	locator.replicaCount = 2
	stub := &testStub{
		onGet: func(loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			return &kvpb.Result{
				RowKey: get.RowKey,
				Cells:  []kvpb.Cell{{Family: []byte("f"), Qualifier: []byte("q"), Value: []byte(loc.Server)}},
			}, nil
		},
	}
	tbl := newTestTable(t, stub, locator)

	res, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h"), Consistency: kvpb.ConsistencyTimeline})
	require.NoError(t, err)
	// The primary answers well inside the stagger window, so the replicas
	// are never queried.
	require.Equal(t, []byte("s2:1"), res.Value([]byte("f"), []byte("q")))
	require.Equal(t, 1, stub.getCalls())
}

func TestTimelineGetFansOutWhenPrimaryIsSlow(t *testing.T) {
	ctx := context.Background()
	locator := newTestLocator()
	locator.replicaCount = 1
	primaryBlocked := make(chan struct{})
	stub := &testStub{
		onGet: func(loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			if loc.Server == "s2:1" {
				<-primaryBlocked
			}
			return &kvpb.Result{
				RowKey: get.RowKey,
				Cells:  []kvpb.Cell{{Family: []byte("f"), Qualifier: []byte("q"), Value: []byte(loc.Server)}},
			}, nil
		},
	}
	tbl := newTestTable(t, stub, locator)
	defer close(primaryBlocked)

	res, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h"), Consistency: kvpb.ConsistencyTimeline})
	require.NoError(t, err)
	require.Equal(t, []byte("s2:1-replica1"), res.Value([]byte("f"), []byte("q")))
}

func TestTimelineGetPrimaryErrorTriggersImmediateFanOut(t *testing.T) {
	ctx := context.Background()
	locator := newTestLocator()
	locator.replicaCount = 1
	stub := &testStub{
		onGet: func(loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			if loc.Server == "s2:1" {
				return nil, errors.New("primary down")
			}
			return &kvpb.Result{RowKey: get.RowKey}, nil
		},
	}
	tbl := newTestTable(t, stub, locator)

	start := time.Now()
	_, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h"), Consistency: kvpb.ConsistencyTimeline})
	require.NoError(t, err)
	// The stagger is 5ms but the fan-out happens on the failure, not the
	// timer; allow generous slack for slow machines.
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestTimelineGetAllReplicasFail(t *testing.T) {
	ctx := context.Background()
	locator := newTestLocator()
	locator.replicaCount = 2
	stub := &testStub{
		onGet: func(kvpb.RegionLocation, *kvpb.Get) (*kvpb.Result, error) {
			return nil, errors.New("down")
		},
	}
	tbl := newTestTable(t, stub, locator)

	_, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h"), Consistency: kvpb.ConsistencyTimeline})
	require.Error(t, err)
	require.Contains(t, err.Error(), "replica(s) failed")
	require.Equal(t, 3, stub.getCalls())
}

// emptyLocator violates the RegionLookup contract by answering LocateAll
// with neither locations nor an error.
type emptyLocator struct{}

func (emptyLocator) Locate(context.Context, kvpb.Key, bool) (kvpb.RegionLocation, error) {
	return kvpb.RegionLocation{}, nil
}

func (emptyLocator) LocateAll(context.Context, kvpb.Key, bool) ([]kvpb.RegionLocation, error) {
	return nil, nil
}

func TestTimelineGetRejectsEmptyLookup(t *testing.T) {
	ctx := context.Background()
	tbl := newTestTable(t, &testStub{}, emptyLocator{})

	_, err := tbl.Get(ctx, &kvpb.Get{RowKey: kvpb.Key("h"), Consistency: kvpb.ConsistencyTimeline})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no locations")
}

func TestGetAll(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(_ kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			return &kvpb.Result{
				RowKey: get.RowKey,
				Cells:  []kvpb.Cell{{Family: []byte("f"), Qualifier: []byte("q"), Value: get.RowKey}},
			}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	gets := []*kvpb.Get{
		{RowKey: kvpb.Key("a")},
		{RowKey: kvpb.Key("h")},
		{RowKey: kvpb.Key("x")},
	}
	results, err := tbl.GetAll(ctx, gets)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, g := range gets {
		require.Equal(t, []byte(g.RowKey), results[i].Value([]byte("f"), []byte("q")))
	}
}

func TestExistsAll(t *testing.T) {
	ctx := context.Background()
	stub := &testStub{
		onGet: func(_ kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error) {
			require.True(t, get.ExistenceOnly)
			exists := get.RowKey.Equal(kvpb.Key("h"))
			return &kvpb.Result{RowKey: get.RowKey, Exists: &exists}, nil
		},
	}
	tbl := newTestTable(t, stub, nil)

	gets := []*kvpb.Get{
		{RowKey: kvpb.Key("a")},
		{RowKey: kvpb.Key("h")},
	}
	exists, err := tbl.ExistsAll(ctx, gets)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true}, exists)
	// The callers' gets are untouched.
	require.False(t, gets[0].ExistenceOnly)
}
