// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package traceanalyzer decides a dynamic-analysis verdict by pattern
// matching a parsed execution trace against a fixed set of heuristics.
//
// Analyze is a pure function: the same TraceRecord always produces the same
// set of TriggeredSignals, independent of call order across distinct traces.
package traceanalyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dreamhost/dirk/internal/xtrace"
)

// SignalKind identifies which heuristic fired.
type SignalKind int

const (
	ErrorReportingDisabled SignalKind = iota
	EvalPct
	Injected
	KnownBadFnName
	NetworkCallout
	Obfuscated
	OrdChrAlternation
	SingleLineOverload
	SuspiciousFunction
	UserProvidedEval
)

// TriggeredSignal is a single heuristic outcome from the trace analyzer. A
// non-empty signal set produced by Analyze implies a Bad verdict.
//
// EvalPct and OrdChrAlternation carry an associated magnitude in Value;
// KnownBadFnName carries the offending function name in Name. All other
// kinds carry no payload.
type TriggeredSignal struct {
	Kind  SignalKind
	Value uint32
	Name  string
}

// key identifies a TriggeredSignal for set-membership purposes: two signals
// of the same kind with the same payload are the same signal.
func (s TriggeredSignal) key() string {
	return fmt.Sprintf("%d|%d|%s", s.Kind, s.Value, s.Name)
}

func (s TriggeredSignal) String() string {
	switch s.Kind {
	case ErrorReportingDisabled:
		return "ErrorReportingDisabled"
	case EvalPct:
		return fmt.Sprintf("EvalPct(%d)", s.Value)
	case Injected:
		return "Injected"
	case KnownBadFnName:
		return fmt.Sprintf("KnownBadFnName(%q)", s.Name)
	case NetworkCallout:
		return "NetworkCallout"
	case Obfuscated:
		return "Obfuscated"
	case OrdChrAlternation:
		return fmt.Sprintf("OrdChrAlternation(%d)", s.Value)
	case SingleLineOverload:
		return "SingleLineOverload"
	case SuspiciousFunction:
		return "SuspiciousFunction"
	case UserProvidedEval:
		return "UserProvidedEval"
	default:
		return "Unknown"
	}
}

var fishyFnRe = regexp.MustCompile(`^[Oo]+$`)

// knownBadFnNames are function calls that are almost never legitimate in an
// uploaded script and are denylisted outright, distinct from the fishy-name
// regex above.
var knownBadFnNames = map[string]bool{
	"curl_exec": true,
}

func fishyFnName(name string) bool {
	return fishyFnRe.MatchString(name)
}

func badFnName(name string) bool {
	return knownBadFnNames[name]
}

func isWithinEval(f xtrace.FrameEvent) bool {
	return strings.Contains(f.FileName, "eval()'d code")
}

// Analyze inspects a parsed execution trace and returns the set of
// TriggeredSignals it exhibits. An empty result means the trace is benign.
func Analyze(rec *xtrace.TraceRecord) map[TriggeredSignal]struct{} {
	triggered := map[TriggeredSignal]struct{}{}
	insert := func(s TriggeredSignal) { triggered[s] = struct{}{} }

	var last string
	haveLast := false
	var ordchrRun uint32
	var runs []uint32
	var fnCount uint32
	var withinEval uint32

	for _, f := range rec.Frames {
		fnCount++
		if f.FnName == "ord" || f.FnName == "chr" {
			if haveLast {
				if last != f.FnName {
					ordchrRun++
					last = f.FnName
				}
			} else {
				last = f.FnName
				haveLast = true
				ordchrRun = 0
			}
		} else {
			haveLast = false
			if ordchrRun > 0 {
				runs = append(runs, ordchrRun)
				ordchrRun = 0
			}
		}

		if fishyFnName(f.FnName) || badFnName(f.FnName) {
			insert(TriggeredSignal{Kind: KnownBadFnName, Name: f.FnName})
		}
		if isWithinEval(f) {
			withinEval++
		}
		if f.FnName == "error_reporting" && len(f.Args) > 0 && f.Args[0] == "0" {
			insert(TriggeredSignal{Kind: ErrorReportingDisabled})
		}
	}
	if ordchrRun > 0 {
		runs = append(runs, ordchrRun)
	}

	var maxRun uint32
	for _, r := range runs {
		if r > maxRun {
			maxRun = r
		}
	}
	if maxRun > 1 {
		insert(TriggeredSignal{Kind: OrdChrAlternation, Value: maxRun})
	}

	if withinEval >= 1 && fnCount > 0 {
		pct := uint32((float64(withinEval) / float64(fnCount)) * 100.0)
		insert(TriggeredSignal{Kind: EvalPct, Value: pct})
	}

	return triggered
}

// Keys returns the deduplication key set for the given signals; used by
// tests and callers comparing signal sets for equality.
func Keys(signals map[TriggeredSignal]struct{}) []string {
	keys := make([]string, 0, len(signals))
	for s := range signals {
		keys = append(keys, s.key())
	}
	return keys
}
