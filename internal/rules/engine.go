// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rules implements the pattern/rule-matching engine: given file
// bytes, it returns the list of matched rule identifiers. Two backends
// cooperate: a modern YAML-defined regex backend, and a legacy
// base64-encoded substring backend preserved for compatibility.
package rules

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/log"
)

type compiledRule struct {
	id  string
	re  *regexp.Regexp
}

// CompiledRules is an opaque, immutable compiled ruleset produced by
// Compile. It combines the modern regex backend and the legacy
// base64-signature backend into one scan surface.
type CompiledRules struct {
	modern []compiledRule
	legacy []Signature
}

// Compile consumes rule sources — YAML rule directories/files for the
// modern backend, and an optional newline-delimited-JSON signature file for
// the legacy backend — and returns a CompiledRules. Rules that fail to
// parse or compile are skipped individually and logged; they never abort
// compilation of the remainder.
func Compile(ctx context.Context, ruleDirs []string, legacySignatureFile string) (*CompiledRules, error) {
	rawRules, diags := loadModernSources(ruleDirs)
	for _, d := range diags {
		log.Warningf(ctx, "rules: %v", d)
	}

	cr := &CompiledRules{}
	for _, r := range rawRules {
		if r.Pattern == "" {
			log.Warningf(ctx, "rules: skipping rule %q: empty pattern", r.ID)
			continue
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			log.Warningf(ctx, "rules: skipping rule %q: %v", r.ID, err)
			continue
		}
		cr.modern = append(cr.modern, compiledRule{id: r.ID, re: re})
	}

	sigs, diags := loadLegacySignatures(legacySignatureFile)
	for _, d := range diags {
		log.Warningf(ctx, "rules: %v", d)
	}
	cr.legacy = sigs

	if len(cr.modern) == 0 && len(cr.legacy) == 0 && (len(ruleDirs) > 0 || legacySignatureFile != "") {
		log.Warningf(ctx, "rules: compiled ruleset is empty")
	}
	return cr, nil
}

// Engine binds a CompiledRules to a fixed scan timeout, giving callers like
// internal/coordinator a plain Scan(ctx, data) method.
type Engine struct {
	Compiled *CompiledRules
	Timeout  time.Duration
}

// NewEngine returns an Engine wrapping compiled, scanning with the given
// per-call timeout.
func NewEngine(compiled *CompiledRules, timeout time.Duration) *Engine {
	return &Engine{Compiled: compiled, Timeout: timeout}
}

// Scan matches data against e's compiled ruleset.
func (e *Engine) Scan(ctx context.Context, data []byte) ([]string, error) {
	return Scan(ctx, e.Compiled, data, e.Timeout)
}

// Scan matches data against the compiled ruleset and returns the matched
// rule identifiers. The set of names returned is deterministic; their order
// is not. Scan respects timeout, returning RuleScanError if exceeded.
func Scan(ctx context.Context, compiled *CompiledRules, data []byte, timeout time.Duration) (names []string, err error) {
	defer derrors.Wrap(&err, "rules.Scan")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan []string, 1)
	go func() {
		done <- scanSync(compiled, data)
	}()

	select {
	case <-ctx.Done():
		return nil, derrors.RuleScanError
	case names := <-done:
		return names, nil
	}
}

func scanSync(compiled *CompiledRules, data []byte) []string {
	seen := map[string]struct{}{}
	for _, r := range compiled.modern {
		if r.re.Match(data) {
			seen[r.id] = struct{}{}
		}
	}
	text := string(data)
	for _, sig := range compiled.legacy {
		pattern, err := decodeSigPattern(sig)
		if err != nil {
			continue
		}
		if strings.Contains(text, pattern) {
			seen[sig.ID] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names
}

// decodeSigPattern reproduces the legacy decoding rule: a signature may span
// multiple lines, each base64-encoded independently, then rejoined on "\n"
// before being compared as a literal substring of the file text.
func decodeSigPattern(sig Signature) (string, error) {
	parts := strings.Split(sig.Signature, "\n")
	decoded := make([]string, 0, len(parts))
	for _, part := range parts {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}
		decoded = append(decoded, string(b))
	}
	return strings.Join(decoded, "\n"), nil
}
