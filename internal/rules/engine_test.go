// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileAndScanModern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "eval.yaml", `
rules:
  - id: suspicious-eval
    description: calls eval() on request data
    severity: red
    pattern: "eval\\(\\$_"
`)
	writeFile(t, dir, "broken.yaml", "not: [valid yaml")

	compiled, err := Compile(context.Background(), []string{dir}, "")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(compiled.modern) != 1 {
		t.Fatalf("Compile: got %d modern rules, want 1 (bad file should be skipped)", len(compiled.modern))
	}

	names, err := Scan(context.Background(), compiled, []byte(`eval($_GET['x']);`), time.Second)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !contains(names, "suspicious-eval") {
		t.Errorf("Scan = %v, want to contain suspicious-eval", names)
	}

	names, err = Scan(context.Background(), compiled, []byte(`echo "hi";`), time.Second)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Scan(clean) = %v, want empty", names)
	}
}

func TestCompileAndScanLegacy(t *testing.T) {
	payload := "shell_exec($_GET['cmd'])"
	enc := base64.StdEncoding.EncodeToString([]byte(payload))
	ndjson := filepath.Join(t.TempDir(), "signatures.json")
	line := `{"action":"disable","comment":"legacy backdoor","date":1600000000,"filenames":["*.php"],"flat_string":true,"id":"HANK-0001","priority":"high","severity":"red","signature":"` + enc + `","submitter":"ops","target":"PHP"}` + "\n"
	if err := os.WriteFile(ndjson, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}

	compiled, err := Compile(context.Background(), nil, ndjson)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(compiled.legacy) != 1 {
		t.Fatalf("Compile: got %d legacy signatures, want 1", len(compiled.legacy))
	}

	names, err := Scan(context.Background(), compiled, []byte("<?php "+payload+"; ?>"), time.Second)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !contains(names, "HANK-0001") {
		t.Errorf("Scan = %v, want to contain HANK-0001", names)
	}
}

func TestScanIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "r.yaml", `
rules:
  - id: a
    pattern: "a"
  - id: b
    pattern: "b"
`)
	compiled, err := Compile(context.Background(), []string{dir}, "")
	if err != nil {
		t.Fatal(err)
	}
	first, err := Scan(context.Background(), compiled, []byte("ab"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Scan(context.Background(), compiled, []byte("ab"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(first)
	sort.Strings(second)
	if len(first) != len(second) || first[0] != second[0] || first[1] != second[1] {
		t.Errorf("Scan not stable: %v vs %v", first, second)
	}
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
