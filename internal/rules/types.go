// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

// Rule is a single modern (YAML-backed) detection rule.
type Rule struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
	Target      string `yaml:"target"`
	// Pattern is a regular expression matched against the raw file bytes.
	Pattern string `yaml:"pattern"`
}

// RuleFile is the top-level shape of one YAML rule source; a file may
// define any number of rules.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Action mirrors the legacy signature format's disposition field.
type Action string

const (
	ActionClean   Action = "clean"
	ActionDisable Action = "disable"
	ActionIgnore  Action = "ignore"
)

// Priority mirrors the legacy signature format's priority field.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Severity mirrors the legacy signature format's severity field.
type Severity string

const (
	SeverityRed    Severity = "red"
	SeverityYellow Severity = "yellow"
)

// Signature is a single legacy detection rule: a base64-encoded literal
// pattern plus metadata, preserved as an alternate rule backend.
type Signature struct {
	Action     Action   `json:"action"`
	Comment    string   `json:"comment"`
	Date       int64    `json:"date"`
	Filenames  []string `json:"filenames"`
	FlatString bool     `json:"flat_string"`
	ID         string   `json:"id"`
	Priority   Priority `json:"priority"`
	Severity   Severity `json:"severity"`
	Signature  string   `json:"signature"`
	Submitter  string   `json:"submitter"`
	Target     string   `json:"target"`
}
