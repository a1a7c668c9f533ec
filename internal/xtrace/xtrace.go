// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xtrace parses Xdebug-style function-trace files into a structured
// TraceRecord consumed by internal/traceanalyzer.
//
// The wire format is Xdebug's tab-delimited "computerized" trace file
// (xdebug.trace_format=1): one ENTRY line when a function is called, and one
// EXIT line when it returns, each row sharing a call-depth and a
// monotonically increasing call number.
package xtrace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FnKind distinguishes internal (builtin) functions from user-defined ones,
// mirroring Xdebug's is_internal trace column.
type FnKind int

const (
	FnUnknown FnKind = iota
	FnInternal
	FnUser
)

// FrameEvent is one call/return pair for a single function invocation.
type FrameEvent struct {
	Depth        int
	CallNum      uint32
	EntryTime    float64
	ExitTime     float64
	FnName       string
	FnKind       FnKind
	FileName     string
	IncludeFile  string
	CallLine     int
	Args         []string
}

// TraceRecord is the full parsed trace for one dynamic-analysis run.
type TraceRecord struct {
	Filename string
	Frames   []FrameEvent
}

// entry line layout (xdebug.trace_format=1), tab separated:
// depth  funcnr  time  mem  "entry"  fn_name  is_internal  include_filename  filename  lineno  nargs  [...args]
// exit line layout:
// depth  funcnr  time  mem  "exit"
const (
	colDepth = iota
	colCallNum
	colTime
	colMem
	colKind
)

// Parse reads an Xdebug computerized trace stream and returns its
// TraceRecord. filename is recorded for diagnostics only.
func Parse(r io.Reader, filename string) (*TraceRecord, error) {
	rec := &TraceRecord{Filename: filename}
	entries := map[string]*FrameEvent{} // keyed by callnum, for filling in exit time
	var order []*FrameEvent             // preserves call order, independent of exit order
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "TRACE START") || strings.HasPrefix(line, "TRACE END") || strings.HasPrefix(line, "Version:") || strings.HasPrefix(line, "File format:") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			continue
		}
		callNum := cols[colCallNum]
		switch cols[colKind] {
		case "0": // entry
			if len(cols) < 10 {
				return nil, fmt.Errorf("xtrace: line %d: truncated entry record", lineNo)
			}
			t, _ := strconv.ParseFloat(cols[colTime], 64)
			depth, _ := strconv.Atoi(cols[colDepth])
			lineno, _ := strconv.Atoi(cols[9])
			kind := FnUser
			if cols[6] == "1" {
				kind = FnInternal
			}
			fe := &FrameEvent{
				Depth:       depth,
				EntryTime:   t,
				FnName:      cols[5],
				FnKind:      kind,
				IncludeFile: cols[7],
				FileName:    cols[8],
				CallLine:    lineno,
			}
			if n, err := strconv.ParseUint(callNum, 10, 32); err == nil {
				fe.CallNum = uint32(n)
			}
			if len(cols) > 11 {
				fe.Args = cols[11:]
			}
			entries[callNum] = fe
			order = append(order, fe)
		case "1": // exit
			t, _ := strconv.ParseFloat(cols[colTime], 64)
			if fe, ok := entries[callNum]; ok {
				fe.ExitTime = t
				delete(entries, callNum)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("xtrace: %w", err)
	}
	rec.Frames = make([]FrameEvent, len(order))
	for i, fe := range order {
		rec.Frames[i] = *fe
	}
	return rec, nil
}
