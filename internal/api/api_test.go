// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/hashid"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

type fakeCache struct {
	verdicts map[hashid.ID]cache.CachedVerdict
}

func (f *fakeCache) Get(_ context.Context, h hashid.ID) (*cache.CachedVerdict, error) {
	if cv, ok := f.verdicts[h]; ok {
		return &cv, nil
	}
	return nil, nil
}

func (f *fakeCache) GetMany(_ context.Context, hashes []hashid.ID) ([]cache.CachedVerdict, error) {
	var out []cache.CachedVerdict
	for _, h := range hashes {
		if cv, ok := f.verdicts[h]; ok {
			out = append(out, cv)
		}
	}
	return out, nil
}

func (f *fakeCache) Upsert(_ context.Context, h hashid.ID, status cache.FileStatus, matches []string) error {
	f.verdicts[h] = cache.CachedVerdict{Hash: h, Status: status, RuleMatches: matches}
	return nil
}

func (f *fakeCache) ListAll(_ context.Context) ([]cache.CachedVerdict, error) {
	var out []cache.CachedVerdict
	for _, cv := range f.verdicts {
		out = append(out, cv)
	}
	return out, nil
}

type fakeRules struct{}

func (fakeRules) Scan(_ context.Context, _ []byte) ([]string, error) { return nil, nil }

type fakeSandbox struct{}

func (fakeSandbox) Examine(_ context.Context, _ string) (map[traceanalyzer.TriggeredSignal]struct{}, error) {
	return nil, nil
}

func newTestServer() (*httptest.Server, *fakeCache) {
	fc := &fakeCache{verdicts: map[hashid.ID]cache.CachedVerdict{}}
	co := coordinator.New(fc, fakeRules{}, fakeSandbox{})
	s := NewServer(co, fc, 5*time.Second)
	mux := http.NewServeMux()
	s.Register(mux)
	return httptest.NewServer(mux), fc
}

func TestHealthCheck(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()
	h := hashid.Of([]byte("x"))
	fc.verdicts[h] = cache.CachedVerdict{Hash: h, Status: cache.StatusGood}

	resp, err := http.Get(srv.URL + "/health-check")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if int(body["cached_files"].(float64)) != 1 {
		t.Errorf("cached_files = %v, want 1", body["cached_files"])
	}
}

func TestScanQuickCacheHit(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()
	h := hashid.Of([]byte("dirk"))
	fc.verdicts[h] = cache.CachedVerdict{Hash: h, Status: cache.StatusGood}

	body := []byte(`{"items":[{"hash":"` + string(h) + `","kind":"Quick","file_name":"a.php"}],"skip_cache":false}`)
	resp, err := http.Post(srv.URL+"/scanner/quick", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out wireBulkResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 1 || out.Results[0].Class != "OK" || out.Results[0].Reason != "Cached" {
		t.Errorf("got %+v, want one OK/Cached result", out)
	}
}

func TestFilesUpdateAndGet(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()
	h := hashid.Of([]byte("op-locked"))

	body := []byte(`{"checksum":"` + string(h) + `","file_status":"Whitelisted"}`)
	resp, err := http.Post(srv.URL+"/files/update", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/files/get/" + string(h))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cv wireCachedVerdict
	if err := json.NewDecoder(resp.Body).Decode(&cv); err != nil {
		t.Fatal(err)
	}
	if cv.Status != "Whitelisted" {
		t.Errorf("Status = %q, want Whitelisted", cv.Status)
	}
}

func TestEmptyBatchReturnsFreshID(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scanner/quick", "application/json", bytes.NewReader([]byte(`{"items":[]}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out wireBulkResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ID == "" {
		t.Error("expected a fresh id for an empty batch")
	}
	if len(out.Results) != 0 {
		t.Errorf("got %d results, want 0", len(out.Results))
	}
}
