// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package derrors defines internal error values to categorize the different
// types error semantics.
package derrors

import (
	"errors"
	"fmt"
	"runtime"

	"cloud.google.com/go/errorreporting"
)

//lint:file-ignore ST1012 prefixing error values with Err would stutter

var (
	// NotFound indicates that a requested entity was not found (HTTP 404).
	NotFound = errors.New("not found")

	// InvalidArgument indicates that the input into the request is invalid in
	// some way (HTTP 400), e.g. malformed JSON, a missing required field, or
	// a file exceeding MAX_FILESIZE.
	InvalidArgument = errors.New("invalid argument")

	// RequestTimeout indicates that a request's wall-clock deadline expired
	// before all analysis completed (HTTP 408). No partial results are
	// returned for a timed-out request.
	RequestTimeout = errors.New("request timeout")

	// CacheUnavailable indicates that the verdict cache's backing store
	// could not be reached.
	CacheUnavailable = errors.New("verdict cache unavailable")

	// RuleCompileError indicates that a rule source failed to parse.
	// A single bad rule file never aborts bootstrap; this is recorded as a
	// per-file diagnostic, not propagated.
	RuleCompileError = errors.New("rule compile error")

	// RuleScanError indicates that a scan of file bytes against the compiled
	// ruleset failed or timed out.
	RuleScanError = errors.New("rule scan error")

	// SandboxContainerCreate indicates that the container runtime failed to
	// create the ephemeral analysis container.
	SandboxContainerCreate = errors.New("sandbox: container create failed")

	// SandboxTraceMissing indicates that the bounded poll for the trace
	// artifact ran out of retries before the file appeared.
	SandboxTraceMissing = errors.New("sandbox: trace artifact missing")

	// SandboxTraceCorrupt indicates that the trace artifact existed but could
	// not be parsed into a TraceRecord.
	SandboxTraceCorrupt = errors.New("sandbox: trace artifact corrupt")
)

// Wrap adds context to the error and allows
// unwrapping the result to recover the original error.
//
// Example:
//
//	defer derrors.Wrap(&err, "examine(%s)", hash)
func Wrap(errp *error, format string, args ...interface{}) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
	}
}

// WrapStack is like Wrap, but adds a stack trace if there isn't one already.
func WrapStack(errp *error, format string, args ...interface{}) {
	if *errp != nil {
		if se := (*StackError)(nil); !errors.As(*errp, &se) {
			*errp = NewStackError(*errp)
		}
		Wrap(errp, format, args...)
	}
}

// StackError wraps an error and adds a stack trace.
type StackError struct {
	Stack []byte
	err   error
}

// NewStackError returns a StackError, capturing a stack trace.
func NewStackError(err error) *StackError {
	// Limit the stack trace to 16K. Same value used in the errorreporting client,
	// cloud.google.com/go@v0.66.0/errorreporting/errors.go.
	var buf [16 * 1024]byte
	n := runtime.Stack(buf[:], false)
	return &StackError{
		err:   err,
		Stack: buf[:n],
	}
}

func (e *StackError) Error() string {
	return e.err.Error() // ignore the stack
}

func (e *StackError) Unwrap() error {
	return e.err
}

// WrapAndReport calls Wrap followed by Report.
func WrapAndReport(errp *error, format string, args ...interface{}) {
	Wrap(errp, format, args...)
	if *errp != nil {
		Report(*errp)
	}
}

var repClient *errorreporting.Client

// SetReportingClient sets an errorreporting client, for use by Report.
// Until this is called, Report is a no-op; there is no requirement that a
// deployment configure error reporting.
func SetReportingClient(c *errorreporting.Client) {
	repClient = c
}

// Report uses the errorreporting API to report an error, if a client has
// been configured via SetReportingClient.
func Report(err error) {
	if repClient != nil {
		repClient.Report(errorreporting.Entry{Error: err})
	}
}
