// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/hashid"
	"github.com/dreamhost/dirk/internal/log"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

// RuleEngine is the subset of internal/rules the Coordinator depends on.
type RuleEngine interface {
	Scan(ctx context.Context, data []byte) (matched []string, err error)
}

// DynamicAnalyzer is the subset of internal/sandbox the Coordinator depends
// on.
type DynamicAnalyzer interface {
	Examine(ctx context.Context, base64Contents string) (map[traceanalyzer.TriggeredSignal]struct{}, error)
}

// Coordinator turns BulkRequests into BulkResults.
type Coordinator struct {
	Cache   cache.Cache
	Rules   RuleEngine
	Sandbox DynamicAnalyzer

	// WritebackGoodResults controls whether OK verdicts from Full/Dynamic
	// analysis are persisted (Good), in addition to always-persisted Bad
	// verdicts.
	WritebackGoodResults bool
}

// New returns a Coordinator wired to the given collaborators.
func New(c cache.Cache, r RuleEngine, s DynamicAnalyzer) *Coordinator {
	return &Coordinator{Cache: c, Rules: r, Sandbox: s, WritebackGoodResults: true}
}

type hashGroup struct {
	names []string
	kind  ScanKind
	item  *ScanRequestItem // representative item carrying file_contents, if any
}

// Handle processes one BulkRequest and returns its BulkResult.
func (c *Coordinator) Handle(ctx context.Context, req BulkRequest) (res *BulkResult, err error) {
	defer derrors.Wrap(&err, "coordinator.Handle")

	groups := map[hashid.ID]*hashGroup{}
	var order []hashid.ID
	for i := range req.Items {
		item := &req.Items[i]
		g, ok := groups[item.Hash]
		if !ok {
			g = &hashGroup{kind: item.Kind}
			groups[item.Hash] = g
			order = append(order, item.Hash)
		}
		g.names = append(g.names, item.FileName)
		if item.HasContents && g.item == nil {
			g.item = item
		}
	}

	var results []ScanResult
	cached := map[hashid.ID]bool{}

	if !req.SkipCache && len(order) > 0 {
		hashes := make([]hashid.ID, len(order))
		copy(hashes, order)
		cvs, err := c.Cache.GetMany(ctx, hashes)
		if err != nil {
			return nil, err
		}
		for _, cv := range cvs {
			g, ok := groups[cv.Hash]
			if !ok {
				continue
			}
			results = append(results, ScanResult{
				FileNames:      g.names,
				Hash:           cv.Hash,
				Class:          cache.Project(cv.Status),
				Reason:         ReasonCached,
				CacheDetail:    cv.Status,
				HasCacheDetail: true,
				Signatures:     cv.RuleMatches,
			})
			cached[cv.Hash] = true
		}
	}

	var remaining []hashid.ID
	for _, h := range order {
		if !cached[h] {
			remaining = append(remaining, h)
		}
	}

	analyzed, err := c.analyze(ctx, groups, remaining)
	if err != nil {
		return nil, err
	}
	// A request whose deadline expired during analysis gets no partial
	// results.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results = append(results, analyzed...)

	c.writeback(ctx, analyzed)

	return &BulkResult{ID: uuid.NewString(), Results: results}, nil
}

// analyze runs the analysis phase over hashes not satisfied by the cache,
// fanning independent items out across goroutines joined before return.
func (c *Coordinator) analyze(ctx context.Context, groups map[hashid.ID]*hashGroup, hashes []hashid.ID) ([]ScanResult, error) {
	results := make([]ScanResult, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hashes {
		i, h := i, h
		group := groups[h]
		g.Go(func() error {
			results[i] = c.analyzeOne(gctx, h, group)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Quick-kind hashes produce no synthetic result; drop their placeholder
	// zero-value entries (recognizable by an empty Hash).
	out := results[:0]
	for _, r := range results {
		if r.Hash == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Coordinator) analyzeOne(ctx context.Context, h hashid.ID, group *hashGroup) ScanResult {
	switch group.kind {
	case KindQuick:
		// Quick relies solely on the cache; an uncached item produces no
		// synthetic result.
		return ScanResult{}

	case KindFull:
		return c.analyzeFull(ctx, h, group)

	case KindDynamic:
		return c.analyzeDynamic(ctx, h, group)

	case KindFindUnknown:
		return ScanResult{
			FileNames: group.names,
			Hash:      h,
			Class:     cache.ClassInconclusive,
			Reason:    ReasonNone,
		}

	default:
		return ScanResult{
			FileNames: group.names,
			Hash:      h,
			Class:     cache.ClassInconclusive,
			Reason:    ReasonInternalError,
		}
	}
}

func (c *Coordinator) analyzeFull(ctx context.Context, h hashid.ID, group *hashGroup) ScanResult {
	base := ScanResult{FileNames: group.names, Hash: h}
	if group.item == nil {
		base.Class = cache.ClassInconclusive
		base.Reason = ReasonInternalError
		return base
	}
	data, err := base64.StdEncoding.DecodeString(group.item.FileContents)
	if err != nil {
		base.Class = cache.ClassInconclusive
		base.Reason = ReasonInternalError
		return base
	}
	matched, err := c.Rules.Scan(ctx, data)
	if err != nil {
		log.Warningf(ctx, "coordinator: rule scan error for %s: %v", h, err)
		base.Class = cache.ClassInconclusive
		base.Reason = ReasonInternalError
		return base
	}
	if len(matched) > 0 {
		base.Class = cache.ClassBad
		base.Reason = ReasonRuleHit
		base.Signatures = matched
		return base
	}
	base.Class = cache.ClassOK
	base.Reason = ReasonNone
	return base
}

func (c *Coordinator) analyzeDynamic(ctx context.Context, h hashid.ID, group *hashGroup) ScanResult {
	base := ScanResult{FileNames: group.names, Hash: h}
	if group.item == nil {
		base.Class = cache.ClassInconclusive
		base.Reason = ReasonInternalError
		return base
	}
	signals, err := c.Sandbox.Examine(ctx, group.item.FileContents)
	if err != nil {
		log.Warningf(ctx, "coordinator: sandbox error for %s: %v", h, err)
		base.Class = cache.ClassInconclusive
		base.Reason = ReasonInternalError
		return base
	}
	base.HasDynamic = true
	for s := range signals {
		base.DynamicSignals = append(base.DynamicSignals, s)
	}
	if len(signals) > 0 {
		base.Class = cache.ClassBad
		base.Reason = ReasonDynamicSignal
		return base
	}
	base.Class = cache.ClassOK
	base.Reason = ReasonNone
	return base
}

// writeback persists Bad verdicts unconditionally, and OK verdicts from
// Full/Dynamic analysis when WritebackGoodResults is set. Writeback
// failures are logged and swallowed: they never affect the response
// already computed for the client.
func (c *Coordinator) writeback(ctx context.Context, results []ScanResult) {
	for _, r := range results {
		var status cache.FileStatus
		switch {
		case r.Class == cache.ClassBad:
			status = cache.StatusBad
		case r.Class == cache.ClassOK && c.WritebackGoodResults && (r.Reason == ReasonNone || r.Reason == ReasonDynamicSignal):
			status = cache.StatusGood
		default:
			continue
		}
		if err := c.Cache.Upsert(ctx, r.Hash, status, r.Signatures); err != nil {
			log.Errorf(ctx, "coordinator: writeback failed for %s: %v", r.Hash, err)
		}
	}
}

// ScanTimeout is the default hard wall-clock deadline for one BulkRequest.
// Handle does not apply it itself; the deadline is whatever ctx carries.
const ScanTimeout = 120 * time.Second
