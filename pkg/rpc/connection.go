// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package rpc manages the gRPC connections a client holds to the cluster.
package rpc

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/kvpb"
	"github.com/gridkv/gridkv/pkg/util/log"
	"github.com/gridkv/gridkv/pkg/util/syncutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// Connection wraps a lazily established gRPC client connection. Close is
// idempotent.
type Connection struct {
	addr string
	conn *grpc.ClientConn

	mu struct {
		syncutil.Mutex
		closed bool
	}
}

// Dial opens a connection to addr. The underlying gRPC connection is
// established lazily; Dial itself does not block on the network.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Connection, error) {
	dialOpts := make([]grpc.DialOption, 0, len(opts)+1)
	dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	dialOpts = append(dialOpts, opts...)
	conn, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	if log.V(1) {
		log.VEventf(ctx, 1, "dialed %s", addr)
	}
	return &Connection{addr: addr, conn: conn}, nil
}

// Addr returns the address the connection was dialed with.
func (c *Connection) Addr() string { return c.addr }

// GRPCConn returns the underlying gRPC connection for stub construction.
func (c *Connection) GRPCConn() *grpc.ClientConn { return c.conn }

// WaitForReady blocks until the connection reaches the READY state, the
// connection shuts down, or ctx is done.
func (c *Connection) WaitForReady(ctx context.Context) error {
	for {
		s := c.conn.GetState()
		if s == connectivity.Ready {
			return nil
		}
		if s == connectivity.Shutdown {
			return errors.Newf("connection to %s is shut down", c.addr)
		}
		if s == connectivity.Idle {
			c.conn.Connect()
		}
		if !c.conn.WaitForStateChange(ctx, s) {
			return kvpb.WrapInterrupted(ctx.Err(), "waiting for connection to "+c.addr)
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.closed {
		return nil
	}
	c.mu.closed = true
	return c.conn.Close()
}
