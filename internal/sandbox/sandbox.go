// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sandbox runs one untrusted script inside a privilege-stripped,
// single-use container and harvests its execution trace.
//
// Workflow: the driver materializes the candidate's bytes into a fresh
// scratch directory, launches a container with that directory bind-mounted
// read-write, waits for the interpreter's trace artifact to appear, then
// hands the trace off for parsing and analysis. The scratch directory is
// removed on every exit path, success or failure. Containers are created
// auto-removing, so the runtime deletes one once it exits; Examine does not
// stop a container that is still running when it returns.
package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/log"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
	"github.com/dreamhost/dirk/internal/xtrace"
)

const (
	scratchInteriorMount = "/usr/local/src"
	scriptName           = "testme.php"
	traceName            = "outfile"
	traceFile            = traceName + ".xt"
)

// ContainerRuntime is the narrow interface SandboxDriver needs from a
// container engine. A production implementation talks to podman or docker;
// tests substitute a fake.
type ContainerRuntime interface {
	// Create starts a single container running image with the given
	// command, bind-mounting hostDir at /usr/local/src read-write, with no
	// new privileges and no network access. It returns an opaque container
	// ID and must arrange for the container to be removed once it exits.
	Create(ctx context.Context, image string, command []string, hostDir string, timeout time.Duration) (id string, err error)

	// Wait blocks until the container identified by id has exited.
	Wait(ctx context.Context, id string) error
}

// Driver runs dynamic analyses.
type Driver struct {
	Runtime  ContainerRuntime
	Image    string
	Timeout  time.Duration
	Interval time.Duration // poll cadence while waiting for the trace file
	Retries  int           // bounded retry count for the poll loop
}

// New returns a Driver using the given ContainerRuntime and image.
func New(rt ContainerRuntime, image string) *Driver {
	return &Driver{
		Runtime:  rt,
		Image:    image,
		Timeout:  60 * time.Second,
		Interval: 500 * time.Millisecond,
		Retries:  60,
	}
}

// Examine runs one dynamic analysis over the base64-encoded file contents
// and returns the set of TriggeredSignals its execution trace exhibits.
func (d *Driver) Examine(ctx context.Context, base64Contents string) (signals map[traceanalyzer.TriggeredSignal]struct{}, err error) {
	defer derrors.Wrap(&err, "sandbox.Examine")

	scratch, err := os.MkdirTemp("", "dirk-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			log.Errorf(ctx, "sandbox: cleanup %s: %v", scratch, rmErr)
		}
	}()

	raw, err := base64.StdEncoding.DecodeString(base64Contents)
	if err != nil {
		return nil, derrors.InvalidArgument
	}
	scriptPath := filepath.Join(scratch, scriptName)
	if err := os.WriteFile(scriptPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing script: %w", err)
	}

	command := []string{
		"/usr/local/bin/php",
		"-d", "xdebug.output_dir=" + scratchInteriorMount,
		"-d", "xdebug.trace_output_name=" + traceName,
		filepath.Join(scratchInteriorMount, scriptName),
	}

	id, err := d.Runtime.Create(ctx, d.Image, command, scratch, d.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.SandboxContainerCreate, err)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- d.Runtime.Wait(ctx, id) }()

	outPath := filepath.Join(scratch, traceFile)
	if err := d.pollForTrace(ctx, outPath); err != nil {
		return nil, err
	}

	select {
	case werr := <-waitDone:
		if werr != nil {
			log.Warningf(ctx, "sandbox: container wait: %v", werr)
		}
	default:
	}

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.SandboxTraceCorrupt, err)
	}
	defer f.Close()

	rec, err := xtrace.Parse(f, outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.SandboxTraceCorrupt, err)
	}
	return traceanalyzer.Analyze(rec), nil
}

// pollForTrace waits for path to appear, polling at d.Interval up to
// d.Retries times before giving up with SandboxTraceMissing.
func (d *Driver) pollForTrace(ctx context.Context, path string) error {
	for i := 0; i < d.Retries; i++ {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Interval):
		}
	}
	return derrors.SandboxTraceMissing
}
