// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadModernSources walks each of dirs (which may each be a single file or a
// directory, searched recursively) and parses every .yml/.yaml file found
// into Rules. A rule source that fails to parse is skipped and reported as a
// diagnostic rather than aborting the walk: one bad rule file must not
// invalidate the remainder of the ruleset.
func loadModernSources(dirs []string) ([]Rule, []error) {
	var rules []Rule
	var diags []error
	for _, root := range dirs {
		info, err := os.Stat(root)
		if err != nil {
			diags = append(diags, fmt.Errorf("rules: stat %s: %w", root, err))
			continue
		}
		if !info.IsDir() {
			rs, err := parseModernFile(root)
			if err != nil {
				diags = append(diags, err)
				continue
			}
			rules = append(rules, rs...)
			continue
		}
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				diags = append(diags, fmt.Errorf("rules: walk %s: %w", path, err))
				return nil
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yml" && ext != ".yaml" {
				return nil
			}
			rs, err := parseModernFile(path)
			if err != nil {
				diags = append(diags, err)
				return nil
			}
			rules = append(rules, rs...)
			return nil
		})
		if walkErr != nil {
			diags = append(diags, fmt.Errorf("rules: walk %s: %w", root, walkErr))
		}
	}
	return rules, diags
}

func parseModernFile(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	return rf.Rules, nil
}

// loadLegacySignatures reads a newline-delimited-JSON signature file, the
// format produced by the Hank detection system. Each line is one Signature.
// A malformed line is skipped with a diagnostic.
func loadLegacySignatures(path string) ([]Signature, []error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, []error{fmt.Errorf("rules: open %s: %w", path, err)}
	}
	defer f.Close()

	var sigs []Signature
	var diags []error
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var sig Signature
		if err := json.Unmarshal([]byte(line), &sig); err != nil {
			diags = append(diags, fmt.Errorf("rules: %s:%d: %w", path, lineNo, err))
			continue
		}
		sigs = append(sigs, sig)
	}
	if err := sc.Err(); err != nil {
		diags = append(diags, fmt.Errorf("rules: scan %s: %w", path, err))
	}
	return sigs, diags
}
