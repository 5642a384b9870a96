// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/syncutil"
	"github.com/stretchr/testify/require"
)

// makeRegions returns three regions splitting the key space at "g" and "m",
// served by s1, s2 and s3.
func makeRegions() []kvpb.RegionLocation {
	return []kvpb.RegionLocation{
		{Region: kvpb.RegionInfo{RegionName: []byte("r1"), EndKey: kvpb.Key("g")}, Server: "s1:1"},
		{Region: kvpb.RegionInfo{RegionName: []byte("r2"), StartKey: kvpb.Key("g"), EndKey: kvpb.Key("m")}, Server: "s2:1"},
		{Region: kvpb.RegionInfo{RegionName: []byte("r3"), StartKey: kvpb.Key("m")}, Server: "s3:1"},
	}
}

// testLocator resolves rows against a static region list, counting lookups
// and evictions. replicaCount adds synthetic read replicas per region.
type testLocator struct {
	regions      []kvpb.RegionLocation
	replicaCount int

	mu struct {
		syncutil.Mutex
		lookups   int
		evictions int
	}
}

var _ RegionLookup = (*testLocator)(nil)

func newTestLocator() *testLocator {
	return &testLocator{regions: makeRegions()}
}

func (l *testLocator) Locate(
	ctx context.Context, row kvpb.Key, reload bool,
) (kvpb.RegionLocation, error) {
	locs, err := l.LocateAll(ctx, row, reload)
	if err != nil {
		return kvpb.RegionLocation{}, err
	}
	return locs[0], nil
}

func (l *testLocator) LocateAll(
	_ context.Context, row kvpb.Key, _ bool,
) ([]kvpb.RegionLocation, error) {
	l.mu.Lock()
	l.mu.lookups++
	l.mu.Unlock()
	for _, loc := range l.regions {
		if loc.Region.ContainsKey(row) {
			out := []kvpb.RegionLocation{loc}
			for i := 0; i < l.replicaCount; i++ {
				replica := loc
				replica.Server = fmt.Sprintf("%s-replica%d", loc.Server, i+1)
				out = append(out, replica)
			}
			return out, nil
		}
	}
	return nil, errors.Newf("no region for row %s", row)
}

func (l *testLocator) Evict(context.Context, kvpb.Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mu.evictions++
}

func (l *testLocator) lookups() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.lookups
}

func (l *testLocator) evictions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.evictions
}

// testStub is a programmable RemoteStub. Unset handlers answer with benign
// defaults. Handlers run on pool goroutines; the stub serializes its own
// bookkeeping.
type testStub struct {
	onGet    func(loc kvpb.RegionLocation, get *kvpb.Get) (*kvpb.Result, error)
	onMutate func(loc kvpb.RegionLocation, req *kvpb.MutateRequest) (*kvpb.MutateResponse, error)
	onMulti  func(loc kvpb.RegionLocation, req *kvpb.MultiRequest) (*kvpb.MultiResponse, error)
	onExec   func(loc kvpb.RegionLocation, exec *kvpb.CoprocessorExec) (*kvpb.CoprocessorResponse, error)

	mu struct {
		syncutil.Mutex
		gets    int
		mutates int
		multis  int
		execs   int
	}
}

var _ RemoteStub = (*testStub)(nil)

func (s *testStub) Get(
	_ context.Context, loc kvpb.RegionLocation, get *kvpb.Get,
) (*kvpb.Result, error) {
	s.mu.Lock()
	s.mu.gets++
	s.mu.Unlock()
	if s.onGet != nil {
		return s.onGet(loc, get)
	}
	if get.ExistenceOnly {
		exists := true
		return &kvpb.Result{RowKey: get.RowKey, Exists: &exists}, nil
	}
	return &kvpb.Result{RowKey: get.RowKey}, nil
}

func (s *testStub) Mutate(
	_ context.Context, loc kvpb.RegionLocation, req *kvpb.MutateRequest,
) (*kvpb.MutateResponse, error) {
	s.mu.Lock()
	s.mu.mutates++
	s.mu.Unlock()
	if s.onMutate != nil {
		return s.onMutate(loc, req)
	}
	return &kvpb.MutateResponse{Result: &kvpb.Result{RowKey: req.Mutation.Row()}, Processed: true}, nil
}

func (s *testStub) Multi(
	_ context.Context, loc kvpb.RegionLocation, req *kvpb.MultiRequest,
) (*kvpb.MultiResponse, error) {
	s.mu.Lock()
	s.mu.multis++
	s.mu.Unlock()
	if s.onMulti != nil {
		return s.onMulti(loc, req)
	}
	return &kvpb.MultiResponse{
		RegionResults: make([]kvpb.RegionActionResult, len(req.RegionActions)),
		Processed:     true,
	}, nil
}

func (s *testStub) ExecCoprocessor(
	_ context.Context, loc kvpb.RegionLocation, exec *kvpb.CoprocessorExec,
) (*kvpb.CoprocessorResponse, error) {
	s.mu.Lock()
	s.mu.execs++
	s.mu.Unlock()
	if s.onExec != nil {
		return s.onExec(loc, exec)
	}
	return &kvpb.CoprocessorResponse{}, nil
}

func (s *testStub) getCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.gets
}

func (s *testStub) mutateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.mutates
}

func (s *testStub) multiCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.multis
}

func (s *testStub) execCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.execs
}

// seqNonceSource issues deterministic nonces.
type seqNonceSource struct {
	seq int64
}

func (s *seqNonceSource) Next() kvpb.Nonce {
	s.seq++
	return kvpb.Nonce{Group: 7, Sequence: s.seq}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OperationTimeout = 5 * time.Second
	cfg.RPCTimeout = time.Second
	cfg.MaxRetries = 3
	cfg.RetryInitialBackoff = time.Microsecond
	cfg.RetryMaxBackoff = time.Millisecond
	cfg.ReplicaReadStagger = 5 * time.Millisecond
	return cfg
}

func newTestTable(t *testing.T, stub RemoteStub, locator RegionLookup) *Table {
	t.Helper()
	if locator == nil {
		locator = newTestLocator()
	}
	tbl, err := NewTable(TableName{Name: "t"}, TableOptions{
		Config:  testConfig(),
		Stub:    stub,
		Locator: locator,
		Nonces:  &seqNonceSource{},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tbl.Close(context.Background())
	})
	return tbl
}
