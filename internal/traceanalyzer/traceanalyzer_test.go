// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traceanalyzer

import (
	"testing"

	"github.com/dreamhost/dirk/internal/xtrace"
)

func frame(name string) xtrace.FrameEvent {
	return xtrace.FrameEvent{FnName: name}
}

func TestAnalyzeBenign(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		frame("strlen"), frame("array_map"), frame("trim"),
	}}
	got := Analyze(rec)
	if len(got) != 0 {
		t.Errorf("Analyze(benign) = %v, want empty", got)
	}
}

func TestAnalyzeOrdChrAlternation(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		frame("ord"), frame("chr"), frame("ord"), frame("chr"), frame("ord"),
	}}
	got := Analyze(rec)
	want := TriggeredSignal{Kind: OrdChrAlternation, Value: 4}
	if _, ok := got[want]; !ok {
		t.Errorf("Analyze(ord/chr) = %v, want to contain %v", got, want)
	}
}

func TestAnalyzeKnownBadFnName(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		frame("curl_exec"), frame("OOOO"),
	}}
	got := Analyze(rec)
	if _, ok := got[TriggeredSignal{Kind: KnownBadFnName, Name: "curl_exec"}]; !ok {
		t.Errorf("Analyze missing KnownBadFnName(curl_exec): %v", got)
	}
	if _, ok := got[TriggeredSignal{Kind: KnownBadFnName, Name: "OOOO"}]; !ok {
		t.Errorf("Analyze missing KnownBadFnName(OOOO): %v", got)
	}
}

func TestAnalyzeErrorReportingDisabled(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		{FnName: "error_reporting", Args: []string{"0"}},
	}}
	got := Analyze(rec)
	if _, ok := got[TriggeredSignal{Kind: ErrorReportingDisabled}]; !ok {
		t.Errorf("Analyze missing ErrorReportingDisabled: %v", got)
	}
}

func TestAnalyzeEvalPct(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		frame("strlen"),
		{FnName: "assert", FileName: "foo.php(3) : eval()'d code"},
	}}
	got := Analyze(rec)
	want := TriggeredSignal{Kind: EvalPct, Value: 50}
	if _, ok := got[want]; !ok {
		t.Errorf("Analyze(eval) = %v, want to contain %v", got, want)
	}
}

func TestAnalyzeIsReferentiallyTransparent(t *testing.T) {
	rec := &xtrace.TraceRecord{Frames: []xtrace.FrameEvent{
		frame("ord"), frame("chr"), frame("ord"),
	}}
	a := Analyze(rec)
	b := Analyze(rec)
	if len(Keys(a)) != len(Keys(b)) {
		t.Fatalf("Analyze not stable across calls: %v vs %v", a, b)
	}
}
