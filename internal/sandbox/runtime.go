// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLIRuntime implements ContainerRuntime by shelling out to a container CLI
// (podman or docker) that understands `run` and `wait`. It
// plays the same role the teacher's Sandbox.Run plays for runsc: invoking an
// external binary directly, with no shell interpretation.
type CLIRuntime struct {
	// Binary is the CLI executable name, e.g. "podman" or "docker".
	Binary string
}

// NewCLIRuntime returns a CLIRuntime driving the given binary.
func NewCLIRuntime(binary string) *CLIRuntime {
	return &CLIRuntime{Binary: binary}
}

// Create starts a detached, auto-removing container with no network access
// and no ability to gain new privileges, bind-mounting hostDir read-write at
// /usr/local/src, and returns its container ID.
func (r *CLIRuntime) Create(ctx context.Context, image string, command []string, hostDir string, timeout time.Duration) (string, error) {
	args := []string{
		"run", "-d", "--rm",
		"--network", "none",
		"--security-opt", "no-new-privileges",
		"--volume", fmt.Sprintf("%s:%s:rw", hostDir, scratchInteriorMount),
		"--stop-timeout", strconv.Itoa(int(timeout.Seconds())),
		image,
	}
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", r.Binary, strings.Join(args, " "), err, stderr.String())
	}
	id := strings.TrimSpace(stdout.String())
	if id == "" {
		return "", fmt.Errorf("%s run: empty container id", r.Binary)
	}
	return id, nil
}

// Wait blocks until the container exits.
func (r *CLIRuntime) Wait(ctx context.Context, id string) error {
	cmd := exec.CommandContext(ctx, r.Binary, "wait", id)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s wait %s: %w: %s", r.Binary, id, err, stderr.String())
	}
	return nil
}
