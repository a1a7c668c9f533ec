// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package api implements the HTTP transport boundary: the fixed set of
// endpoints binding the ScanCoordinator to the outside world.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/derrors"
	"github.com/dreamhost/dirk/internal/log"
)

// Server binds the ScanCoordinator and VerdictCache to HTTP handlers.
type Server struct {
	coord   *coordinator.Coordinator
	cache   cache.Cache
	timeout time.Duration
}

// NewServer returns a Server ready to have its handlers registered.
func NewServer(coord *coordinator.Coordinator, c cache.Cache, requestTimeout time.Duration) *Server {
	return &Server{coord: coord, cache: c, timeout: requestTimeout}
}

// Register installs the service's fixed endpoint set on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/health-check", s.handle(s.handleHealthCheck))
	mux.Handle("/scanner/quick", s.handle(s.handleScan(coordinator.KindQuick)))
	mux.Handle("/scanner/full", s.handle(s.handleScan(coordinator.KindFull)))
	mux.Handle("/scanner/dynamic", s.handle(s.handleScan(coordinator.KindDynamic)))
	mux.Handle("/scanner/find-unknown", s.handle(s.handleScan(coordinator.KindFindUnknown)))
	mux.Handle("/files/update", s.handle(s.handleFilesUpdate))
	mux.Handle("/files/list", s.handle(s.handleFilesList))
	mux.Handle("/files/get/", s.handle(s.handleFilesGet))
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle wraps a handlerFunc with permissive CORS, a per-request deadline,
// latency logging, and uniform error translation.
func (s *Server) handle(f handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		r = r.WithContext(ctx)

		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		err := f(rw, r)
		log.Infof(ctx, "%s %s status=%d latency=%s", r.Method, r.URL.Path, rw.status, time.Since(start))
		if err != nil {
			s.writeError(rw, err)
		}
	})
}

// statusWriter records the status code written, for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// writeError translates an error into a status code and a small JSON body,
// carrying enough context to diagnose without leaking internal paths.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := translateStatus(err)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func translateStatus(err error) int {
	switch {
	case errors.Is(err, derrors.InvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, derrors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, derrors.RequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, derrors.CacheUnavailable):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", derrors.InvalidArgument, err)
	}
	return nil
}
