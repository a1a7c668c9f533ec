// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log implements handlers and package-level helpers for logging.
//
// This package used to carry an older golang.org/x/exp/event-based
// Labels/Infof generation alongside the newer log/slog-based handlers in
// line_handler.go and cloud_handler.go. The older generation has been
// removed; everything here now goes through slog.Default().
package log

import (
	"context"
	"fmt"
	"log/slog"
)

// Infof logs a formatted string at the Info level.
func Infof(ctx context.Context, format string, args ...interface{}) {
	slog.Default().InfoContext(ctx, sprintf(format, args...))
}

// Warningf logs a formatted string at the Warn level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	slog.Default().WarnContext(ctx, sprintf(format, args...))
}

// Errorf logs a formatted string at the Error level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	slog.Default().ErrorContext(ctx, sprintf(format, args...))
}

// Debugf logs a formatted string at the Debug level.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	slog.Default().DebugContext(ctx, sprintf(format, args...))
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
