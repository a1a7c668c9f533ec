// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/hashid"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

// wireScanRequestItem is the on-wire shape of one ScanRequestItem.
type wireScanRequestItem struct {
	Hash         string `json:"hash"`
	Kind         string `json:"kind"`
	FileName     string `json:"file_name"`
	FileContents string `json:"file_contents,omitempty"`
}

// wireBulkRequest is the on-wire shape of one BulkRequest.
type wireBulkRequest struct {
	Items     []wireScanRequestItem `json:"items"`
	SkipCache bool                  `json:"skip_cache"`
}

func (w wireBulkRequest) toInternal(kind coordinator.ScanKind) coordinator.BulkRequest {
	items := make([]coordinator.ScanRequestItem, len(w.Items))
	for i, it := range w.Items {
		items[i] = coordinator.ScanRequestItem{
			Hash:         hashid.ID(it.Hash),
			Kind:         kind,
			FileName:     it.FileName,
			FileContents: it.FileContents,
			HasContents:  it.FileContents != "",
		}
	}
	return coordinator.BulkRequest{Items: items, SkipCache: w.SkipCache}
}

// wireTriggeredSignal is the on-wire shape of one TriggeredSignal.
type wireTriggeredSignal struct {
	Kind  string `json:"kind"`
	Value uint32 `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
}

func signalToWire(s traceanalyzer.TriggeredSignal) wireTriggeredSignal {
	return wireTriggeredSignal{Kind: s.String(), Value: s.Value, Name: s.Name}
}

// wireScanResult is the on-wire shape of one ScanResult.
type wireScanResult struct {
	FileNames      []string              `json:"file_names"`
	Hash           string                `json:"hash"`
	Class          string                `json:"class"`
	Reason         string                `json:"reason"`
	CacheDetail    string                `json:"cache_detail,omitempty"`
	Signatures     []string              `json:"signatures,omitempty"`
	DynamicSignals []wireTriggeredSignal `json:"dynamic_signals,omitempty"`
}

func resultToWire(r coordinator.ScanResult) wireScanResult {
	wr := wireScanResult{
		FileNames:  r.FileNames,
		Hash:       string(r.Hash),
		Class:      string(r.Class),
		Reason:     string(r.Reason),
		Signatures: r.Signatures,
	}
	if r.HasCacheDetail {
		wr.CacheDetail = string(r.CacheDetail)
	}
	if r.HasDynamic {
		wr.DynamicSignals = make([]wireTriggeredSignal, len(r.DynamicSignals))
		for i, s := range r.DynamicSignals {
			wr.DynamicSignals[i] = signalToWire(s)
		}
	}
	return wr
}

// wireBulkResult is the on-wire shape of one BulkResult.
type wireBulkResult struct {
	ID      string           `json:"id"`
	Results []wireScanResult `json:"results"`
}

func bulkResultToWire(r *coordinator.BulkResult) wireBulkResult {
	out := wireBulkResult{ID: r.ID, Results: make([]wireScanResult, len(r.Results))}
	for i, res := range r.Results {
		out.Results[i] = resultToWire(res)
	}
	return out
}

// wireCachedVerdict is the on-wire shape of one CachedVerdict.
type wireCachedVerdict struct {
	Hash        string   `json:"hash"`
	Status      string   `json:"file_status"`
	FirstSeen   string   `json:"first_seen"`
	LastSeen    string   `json:"last_seen"`
	LastUpdated string   `json:"last_updated"`
	RuleMatches []string `json:"rule_matches,omitempty"`
}

func cachedVerdictToWire(cv cache.CachedVerdict) wireCachedVerdict {
	const layout = "2006-01-02T15:04:05Z07:00"
	return wireCachedVerdict{
		Hash:        string(cv.Hash),
		Status:      string(cv.Status),
		FirstSeen:   cv.FirstSeen.Format(layout),
		LastSeen:    cv.LastSeen.Format(layout),
		LastUpdated: cv.LastUpdated.Format(layout),
		RuleMatches: cv.RuleMatches,
	}
}

// wireFilesUpdateRequest is the request body for POST /files/update.
type wireFilesUpdateRequest struct {
	Checksum   string `json:"checksum"`
	FileStatus string `json:"file_status"`
}
