// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xtrace

import (
	"strings"
	"testing"
)

const sample = `Version: 1
File format: 1
TRACE START [2023-01-01 00:00:00]
0	1	0.0010	131072	0	main	1		/tmp/testme.php	0	0
0	2	0.0012	131200	0	error_reporting	1		/tmp/testme.php	3	1	0
0	2	0.0013	131200	1
0	3	0.0014	131300	0	ord	1		/tmp/testme.php	4	1	65
0	3	0.0015	131300	1
0	1	0.0020	131072	1
TRACE END [2023-01-01 00:00:00]
`

func TestParse(t *testing.T) {
	rec, err := Parse(strings.NewReader(sample), "sample.xt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rec.Frames) != 3 {
		t.Fatalf("Parse got %d frames, want 3", len(rec.Frames))
	}
	if rec.Frames[0].FnName != "main" {
		t.Errorf("Frames[0].FnName = %q, want main", rec.Frames[0].FnName)
	}
	if rec.Frames[1].FnName != "error_reporting" {
		t.Errorf("Frames[1].FnName = %q, want error_reporting", rec.Frames[1].FnName)
	}
	if got := rec.Frames[1].Args; len(got) == 0 || got[0] != "0" {
		t.Errorf("Frames[1].Args = %v, want first arg 0", got)
	}
	if rec.Frames[1].ExitTime == 0 {
		t.Errorf("Frames[1].ExitTime not populated")
	}
}

func TestParseOrderIsEntryOrderNotExitOrder(t *testing.T) {
	rec, err := Parse(strings.NewReader(sample), "sample.xt")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var names []string
	for _, f := range rec.Frames {
		names = append(names, f.FnName)
	}
	want := []string{"main", "error_reporting", "ord"}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("Frames order = %v, want %v", names, want)
		}
	}
}
