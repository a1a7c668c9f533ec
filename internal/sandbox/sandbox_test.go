// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sandbox

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

// fakeRuntime implements ContainerRuntime by writing a canned trace file
// into the bind-mounted host directory, standing in for a real container
// engine actually running the PHP interpreter.
type fakeRuntime struct {
	traceBody   string
	createErr   error
	waitErr     error
	skipWriting bool
}

func (f *fakeRuntime) Create(_ context.Context, _ string, _ []string, hostDir string, _ time.Duration) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if !f.skipWriting {
		if err := os.WriteFile(filepath.Join(hostDir, traceFile), []byte(f.traceBody), 0o644); err != nil {
			return "", err
		}
	}
	return "fake-container-id", nil
}

func (f *fakeRuntime) Wait(_ context.Context, _ string) error {
	return f.waitErr
}

const benignTrace = `Version: 1
File format: 1
TRACE START [2023-01-01 00:00:00]
0	1	0.001	0	0	strlen	1		test.php	3	1 arg
0	1	0.002	0	1
TRACE END [2023-01-01 00:00:00]
`

func TestDriverExamineBenign(t *testing.T) {
	rt := &fakeRuntime{traceBody: benignTrace}
	d := New(rt, "dreamhost/php-8.0-xdebug:production")
	d.Interval = time.Millisecond

	contents := base64.StdEncoding.EncodeToString([]byte(`<?php echo strlen("x");`))
	signals, err := d.Examine(context.Background(), contents)
	if err != nil {
		t.Fatalf("Examine: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("Examine(benign) = %v, want empty signal set", signals)
	}
}

func TestDriverExamineContainerCreateFails(t *testing.T) {
	rt := &fakeRuntime{createErr: errors.New("boom")}
	d := New(rt, "dreamhost/php-8.0-xdebug:production")
	d.Interval = time.Millisecond

	_, err := d.Examine(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")))
	if !errors.Is(err, derrors.SandboxContainerCreate) {
		t.Fatalf("Examine err = %v, want wrapping SandboxContainerCreate", err)
	}
}

func TestDriverExamineTraceMissingTimesOut(t *testing.T) {
	rt := &fakeRuntime{skipWriting: true}
	d := New(rt, "dreamhost/php-8.0-xdebug:production")
	d.Interval = time.Millisecond
	d.Retries = 3

	_, err := d.Examine(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")))
	if !errors.Is(err, derrors.SandboxTraceMissing) {
		t.Fatalf("Examine err = %v, want wrapping SandboxTraceMissing", err)
	}
}

func TestDriverExamineInvalidBase64(t *testing.T) {
	rt := &fakeRuntime{traceBody: benignTrace}
	d := New(rt, "dreamhost/php-8.0-xdebug:production")

	_, err := d.Examine(context.Background(), "not valid base64!!!")
	if !errors.Is(err, derrors.InvalidArgument) {
		t.Fatalf("Examine err = %v, want InvalidArgument", err)
	}
}

func TestDriverExamineOrdChrTrace(t *testing.T) {
	trace := `Version: 1
File format: 1
TRACE START [2023-01-01 00:00:00]
0	1	0.001	0	0	ord	1		test.php	3	1
0	1	0.0015	0	1
0	2	0.002	0	0	chr	1		test.php	4	1
0	2	0.0025	0	1
0	3	0.003	0	0	ord	1		test.php	5	1
0	3	0.0035	0	1
0	4	0.004	0	0	chr	1		test.php	6	1
0	4	0.0045	0	1
0	5	0.005	0	0	ord	1		test.php	7	1
0	5	0.0055	0	1
TRACE END [2023-01-01 00:00:00]
`
	rt := &fakeRuntime{traceBody: trace}
	d := New(rt, "dreamhost/php-8.0-xdebug:production")
	d.Interval = time.Millisecond

	signals, err := d.Examine(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")))
	if err != nil {
		t.Fatalf("Examine: %v", err)
	}
	want := traceanalyzer.TriggeredSignal{Kind: traceanalyzer.OrdChrAlternation, Value: 4}
	if _, ok := signals[want]; !ok {
		t.Errorf("Examine signals = %v, want to contain %v", signals, want)
	}
}
