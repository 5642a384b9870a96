// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

package kvclient

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/gridkv/gridkv/pkg/util/retry"
)

// Config holds the tunables of a Table. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	// OperationTimeout bounds a whole logical operation including all
	// retries.
	OperationTimeout time.Duration
	// MetaOperationTimeout bounds administrative operations such as flushes
	// issued during Close.
	MetaOperationTimeout time.Duration
	// RPCTimeout bounds a single remote attempt.
	RPCTimeout time.Duration

	// MaxRetries bounds the retries of one remote call, not counting the
	// first attempt.
	MaxRetries          int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// WriteBufferSize is the byte threshold at which buffered puts are
	// flushed.
	WriteBufferSize int64
	// MaxValueSize rejects puts with any cell value larger than this.
	// 0 disables the check.
	MaxValueSize int

	// ReplicaReadStagger is the head start the primary replica gets before a
	// timeline read fans out to the remaining replicas.
	ReplicaReadStagger time.Duration

	// MaxPoolWorkers caps the worker pool's concurrent tasks. 0 means
	// unbounded.
	MaxPoolWorkers int

	// ScannerCaching is the default row count per scanner RPC.
	ScannerCaching int
	// ScannerMaxResultSize is the default byte budget per scanner RPC.
	ScannerMaxResultSize int64
	// ScannerAsyncPrefetch enables background prefetch for plain scans.
	ScannerAsyncPrefetch bool
}

// DefaultConfig returns the configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		OperationTimeout:     30 * time.Second,
		MetaOperationTimeout: 60 * time.Second,
		RPCTimeout:           10 * time.Second,
		MaxRetries:           10,
		RetryInitialBackoff:  100 * time.Millisecond,
		RetryMaxBackoff:      5 * time.Second,
		RetryMultiplier:      2,
		WriteBufferSize:      2 << 20,
		ReplicaReadStagger:   10 * time.Millisecond,
		ScannerCaching:       100,
		ScannerMaxResultSize: 2 << 20,
	}
}

// duration lets TOML express durations as strings like "15s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// fileConfig mirrors Config for TOML decoding.
type fileConfig struct {
	OperationTimeout     duration `toml:"operation_timeout"`
	MetaOperationTimeout duration `toml:"meta_operation_timeout"`
	RPCTimeout           duration `toml:"rpc_timeout"`
	MaxRetries           int      `toml:"max_retries"`
	RetryInitialBackoff  duration `toml:"retry_initial_backoff"`
	RetryMaxBackoff      duration `toml:"retry_max_backoff"`
	RetryMultiplier      float64  `toml:"retry_multiplier"`
	WriteBufferSize      int64    `toml:"write_buffer_size"`
	MaxValueSize         int      `toml:"max_value_size"`
	ReplicaReadStagger   duration `toml:"replica_read_stagger"`
	MaxPoolWorkers       int      `toml:"max_pool_workers"`
	ScannerCaching       int      `toml:"scanner_caching"`
	ScannerMaxResultSize int64    `toml:"scanner_max_result_size"`
	ScannerAsyncPrefetch bool     `toml:"scanner_async_prefetch"`
}

// LoadConfig reads a TOML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	fc := fileConfig{
		OperationTimeout:     duration(cfg.OperationTimeout),
		MetaOperationTimeout: duration(cfg.MetaOperationTimeout),
		RPCTimeout:           duration(cfg.RPCTimeout),
		MaxRetries:           cfg.MaxRetries,
		RetryInitialBackoff:  duration(cfg.RetryInitialBackoff),
		RetryMaxBackoff:      duration(cfg.RetryMaxBackoff),
		RetryMultiplier:      cfg.RetryMultiplier,
		WriteBufferSize:      cfg.WriteBufferSize,
		MaxValueSize:         cfg.MaxValueSize,
		ReplicaReadStagger:   duration(cfg.ReplicaReadStagger),
		MaxPoolWorkers:       cfg.MaxPoolWorkers,
		ScannerCaching:       cfg.ScannerCaching,
		ScannerMaxResultSize: cfg.ScannerMaxResultSize,
		ScannerAsyncPrefetch: cfg.ScannerAsyncPrefetch,
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, errors.Wrapf(err, "loading config %s", path)
	}
	cfg = Config{
		OperationTimeout:     time.Duration(fc.OperationTimeout),
		MetaOperationTimeout: time.Duration(fc.MetaOperationTimeout),
		RPCTimeout:           time.Duration(fc.RPCTimeout),
		MaxRetries:           fc.MaxRetries,
		RetryInitialBackoff:  time.Duration(fc.RetryInitialBackoff),
		RetryMaxBackoff:      time.Duration(fc.RetryMaxBackoff),
		RetryMultiplier:      fc.RetryMultiplier,
		WriteBufferSize:      fc.WriteBufferSize,
		MaxValueSize:         fc.MaxValueSize,
		ReplicaReadStagger:   time.Duration(fc.ReplicaReadStagger),
		MaxPoolWorkers:       fc.MaxPoolWorkers,
		ScannerCaching:       fc.ScannerCaching,
		ScannerMaxResultSize: fc.ScannerMaxResultSize,
		ScannerAsyncPrefetch: fc.ScannerAsyncPrefetch,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.OperationTimeout <= 0 {
		return errors.New("operation_timeout must be positive")
	}
	if c.MetaOperationTimeout <= 0 {
		return errors.New("meta_operation_timeout must be positive")
	}
	if c.RPCTimeout <= 0 {
		return errors.New("rpc_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if c.WriteBufferSize <= 0 {
		return errors.New("write_buffer_size must be positive")
	}
	if c.MaxValueSize < 0 {
		return errors.New("max_value_size must not be negative")
	}
	if c.MaxPoolWorkers < 0 {
		return errors.New("max_pool_workers must not be negative")
	}
	return nil
}

func (c Config) retryOptions() retry.Options {
	return retry.Options{
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
		Multiplier:     c.RetryMultiplier,
		MaxRetries:     c.MaxRetries,
	}
}
