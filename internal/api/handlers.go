// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/hashid"
)

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) error {
	cvs, err := s.cache.ListAll(r.Context())
	if err != nil {
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	return writeJSON(w, map[string]any{
		"status":       "ok",
		"cached_files": len(cvs),
	})
}

func (s *Server) handleScan(kind coordinator.ScanKind) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if r.Method != http.MethodPost {
			return fmt.Errorf("%w: method %s not allowed", derrors.InvalidArgument, r.Method)
		}
		var wreq wireBulkRequest
		if err := readJSON(r, &wreq); err != nil {
			return err
		}
		for _, it := range wreq.Items {
			// Decoded size of padded base64: 3 bytes per 4 characters, less
			// one byte per "=" of padding.
			size := len(it.FileContents)*3/4 - (len(it.FileContents) - len(strings.TrimRight(it.FileContents, "=")))
			if size > coordinator.MaxFileSize && (kind == coordinator.KindFull || kind == coordinator.KindDynamic) {
				return fmt.Errorf("%w: file exceeds MAX_FILESIZE", derrors.InvalidArgument)
			}
		}
		req := wreq.toInternal(kind)
		res, err := s.coord.Handle(r.Context(), req)
		if err != nil {
			return err
		}
		return writeJSON(w, bulkResultToWire(res))
	}
}

func (s *Server) handleFilesUpdate(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return fmt.Errorf("%w: method %s not allowed", derrors.InvalidArgument, r.Method)
	}
	var req wireFilesUpdateRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	status := cache.FileStatus(req.FileStatus)
	switch status {
	case cache.StatusGood, cache.StatusBad, cache.StatusWhitelisted, cache.StatusBlacklisted:
	default:
		return fmt.Errorf("%w: unknown file_status %q", derrors.InvalidArgument, req.FileStatus)
	}
	if err := s.cache.Upsert(r.Context(), hashid.ID(req.Checksum), status, nil); err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"status": "updated"})
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) error {
	cvs, err := s.cache.ListAll(r.Context())
	if err != nil {
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	out := make([]wireCachedVerdict, len(cvs))
	for i, cv := range cvs {
		out[i] = cachedVerdictToWire(cv)
	}
	return writeJSON(w, out)
}

func (s *Server) handleFilesGet(w http.ResponseWriter, r *http.Request) error {
	hash := strings.TrimPrefix(r.URL.Path, "/files/get/")
	if hash == "" {
		return fmt.Errorf("%w: missing hash", derrors.InvalidArgument)
	}
	cv, err := s.cache.Get(r.Context(), hashid.ID(hash))
	if err != nil {
		return fmt.Errorf("%w: %v", derrors.CacheUnavailable, err)
	}
	if cv == nil {
		w.WriteHeader(http.StatusOK)
		return writeJSON(w, nil)
	}
	return writeJSON(w, cachedVerdictToWire(*cv))
}
