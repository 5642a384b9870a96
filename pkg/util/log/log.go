// Copyright 2025 The GridKV Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package log is gridkv's logging facade. Messages carry the tags attached
// to the context via logtags, and format arguments pass through redact so
// that user data (row keys, cell values) can be stripped from shipped logs.
package log

import (
	"context"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

var verbosity int32

// SetVerbosity sets the level below which VEventf calls are emitted.
func SetVerbosity(level int32) {
	atomic.StoreInt32(&verbosity, level)
}

// V reports whether verbose events at the given level are being emitted.
func V(level int32) bool {
	return atomic.LoadInt32(&verbosity) >= level
}

var logger = stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds)

// Infof logs an informational message with the context's tags.
func Infof(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "I", format, args...)
}

// Warningf logs a warning with the context's tags.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "W", format, args...)
}

// Errorf logs an error with the context's tags.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	output(ctx, "E", format, args...)
}

// VEventf logs a verbose event, emitted only when the verbosity is at least
// level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		output(ctx, "V", format, args...)
	}
}

func output(ctx context.Context, sev string, format string, args ...interface{}) {
	var b strings.Builder
	b.WriteString(sev)
	if tags := logtags.FromContext(ctx); tags != nil {
		b.WriteString(" [")
		b.WriteString(tags.String())
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(string(redact.Sprintf(format, args...)))
	logger.Print(b.String())
}
