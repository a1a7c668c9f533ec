// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type scanRequestItem struct {
	Hash         string `json:"hash"`
	Kind         string `json:"kind"`
	FileName     string `json:"file_name"`
	FileContents string `json:"file_contents,omitempty"`
}

type bulkRequest struct {
	Items     []scanRequestItem `json:"items"`
	SkipCache bool              `json:"skip_cache"`
}

type triggeredSignal struct {
	Kind  string `json:"kind"`
	Value uint32 `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
}

type scanResult struct {
	FileNames      []string          `json:"file_names"`
	Hash           string            `json:"hash"`
	Class          string            `json:"class"`
	Reason         string            `json:"reason"`
	CacheDetail    string            `json:"cache_detail,omitempty"`
	Signatures     []string          `json:"signatures,omitempty"`
	DynamicSignals []triggeredSignal `json:"dynamic_signals,omitempty"`
}

type bulkResult struct {
	ID      string       `json:"id"`
	Results []scanResult `json:"results"`
}

// cachedVerdict is the on-wire shape of one CachedVerdict, as returned by
// GET /files/list.
type cachedVerdict struct {
	Hash        string   `json:"hash"`
	Status      string   `json:"file_status"`
	FirstSeen   string   `json:"first_seen"`
	LastSeen    string   `json:"last_seen"`
	LastUpdated string   `json:"last_updated"`
	RuleMatches []string `json:"rule_matches,omitempty"`
}

// client is a thin HTTP client for the scanning service.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{baseURL: baseURL, http: &http.Client{Timeout: 120 * time.Second}}
}

// endpointForKind maps a scan kind to the server endpoint that performs it.
// FindUnknown has no entry here: this client resolves it locally by diffing
// a local file list against listKnown's result (see runFindUnknown).
func endpointForKind(kind string) (string, error) {
	switch kind {
	case "Quick":
		return "/scanner/quick", nil
	case "Full":
		return "/scanner/full", nil
	case "Dynamic":
		return "/scanner/dynamic", nil
	default:
		return "", errors.Errorf("unknown scan kind %q", kind)
	}
}

func (c *client) scan(kind string, req bulkRequest) (*bulkResult, error) {
	path, err := endpointForKind(kind)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "submitting scan")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("server returned %s", resp.Status)
	}
	var res bulkResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	return &res, nil
}

// listKnown fetches every hash the server's verdict cache currently knows
// about, for FindUnknown's client-side set subtraction.
func (c *client) listKnown() (map[string]bool, error) {
	resp, err := c.http.Get(c.baseURL + "/files/list")
	if err != nil {
		return nil, errors.Wrap(err, "listing known files")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("server returned %s", resp.Status)
	}
	var cvs []cachedVerdict
	if err := json.NewDecoder(resp.Body).Decode(&cvs); err != nil {
		return nil, errors.Wrap(err, "decoding response")
	}
	known := make(map[string]bool, len(cvs))
	for _, cv := range cvs {
		known[cv.Hash] = true
	}
	return known, nil
}

func (c *client) submit(checksum, fileStatus string) error {
	body, err := json.Marshal(map[string]string{"checksum": checksum, "file_status": fileStatus})
	if err != nil {
		return errors.Wrap(err, "marshaling request")
	}
	resp, err := c.http.Post(c.baseURL+"/files/update", "application/json", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "submitting update")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func encodeContents(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
