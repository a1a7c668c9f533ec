// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coordinator implements the ScanCoordinator: it turns one
// BulkRequest into one BulkResult by deduplicating by content hash,
// consulting the verdict cache, fanning out to the configured analyzers,
// merging results, and writing verdicts back to the cache.
package coordinator

import (
	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/hashid"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

// MaxFileSize is the upper bound, in bytes, on one analyzed artifact.
const MaxFileSize = 2_000_000

// ScanKind selects which analyzers run over an item.
type ScanKind string

const (
	KindQuick       ScanKind = "Quick"
	KindFull        ScanKind = "Full"
	KindDynamic     ScanKind = "Dynamic"
	KindFindUnknown ScanKind = "FindUnknown"
)

// VerdictReason explains why a ScanResult has its class.
type VerdictReason string

const (
	ReasonCached        VerdictReason = "Cached"
	ReasonRuleHit        VerdictReason = "RuleHit"
	ReasonDynamicSignal VerdictReason = "DynamicSignal"
	ReasonInternalError VerdictReason = "InternalError"
	ReasonNone          VerdictReason = "None"
)

// ScanRequestItem is one file in a BulkRequest.
type ScanRequestItem struct {
	Hash          hashid.ID
	Kind          ScanKind
	FileName      string
	FileContents  string // base64, optional for Quick/FindUnknown
	HasContents   bool
}

// BulkRequest is one network round-trip's worth of scan items.
type BulkRequest struct {
	Items     []ScanRequestItem
	SkipCache bool
}

// ScanResult is the per-hash outcome of one BulkRequest.
type ScanResult struct {
	FileNames      []string
	Hash           hashid.ID
	Class          cache.VerdictClass
	Reason         VerdictReason
	CacheDetail    cache.FileStatus
	HasCacheDetail bool
	Signatures     []string
	DynamicSignals []traceanalyzer.TriggeredSignal
	HasDynamic     bool
}

// BulkResult is the response to one BulkRequest.
type BulkResult struct {
	ID      string
	Results []ScanResult
}
