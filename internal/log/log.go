// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log implements bqdrift's logging conventions on top of log/slog:
// a package-level default handler (line-oriented for a terminal, JSON for
// a log aggregator) plus context-carried labels so a query name or
// partition key attached once shows up on every subsequent log line.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

type labelsKey struct{}

// NewContextWithLabel returns a context that adds a label to every log call
// made with it, without mutating the caller's context.
func NewContextWithLabel(ctx context.Context, key, value string) context.Context {
	old, _ := ctx.Value(labelsKey{}).([]slog.Attr)
	next := make([]slog.Attr, len(old), len(old)+1)
	copy(next, old)
	next = append(next, slog.String(key, value))
	return context.WithValue(ctx, labelsKey{}, next)
}

func labelsOf(ctx context.Context) []slog.Attr {
	ls, _ := ctx.Value(labelsKey{}).([]slog.Attr)
	return ls
}

func logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	all := append(labelsOf(ctx), attrs...)
	slog.Default().LogAttrs(ctx, level, msg, all...)
}

// Debugf logs a formatted message at debug level.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	logAttrs(ctx, slog.LevelDebug, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at info level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logAttrs(ctx, slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Warningf logs a formatted message at warn level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logAttrs(ctx, slog.LevelWarn, fmt.Sprintf(format, args...))
}

// Errorf logs err together with a formatted message at error level. If err
// is non-nil its text and derrors category are attached as attributes.
func Errorf(ctx context.Context, err error, format string, args ...interface{}) {
	attrs := []slog.Attr{}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()),
			slog.String("error_category", derrors.CategorizeError(err)))
	}
	logAttrs(ctx, slog.LevelError, fmt.Sprintf(format, args...), attrs...)
}

// Fatalf logs a formatted message at error level and exits the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logAttrs(ctx, slog.LevelError, fmt.Sprintf(format, args...))
	os.Exit(1)
}
