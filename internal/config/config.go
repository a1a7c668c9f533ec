// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config resolves shared configuration for the scanning service, and
// provides functions to access this configuration.
//
// Unlike the source this was adapted from, Config is never a package-level
// singleton: callers build one value and thread it explicitly through
// constructors, so components only ever see the fields they actually use.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration information for the scanning service.
type Config struct {
	// Addr is the address the HTTP transport listens on, e.g. ":8080".
	Addr string

	// DatabaseURL is the Postgres connection string for the verdict cache.
	DatabaseURL string

	// RuleDirs lists directories (searched recursively) and/or individual
	// files containing modern YAML rule sources for the RuleEngine.
	RuleDirs []string

	// LegacySignatureFile, if non-empty, is a path to a newline-delimited
	// JSON file of legacy base64-encoded signatures (the ALTERNATE rule
	// backend from spec.md §4.2).
	LegacySignatureFile string

	// SandboxRuntime is the container-runtime binary used to launch
	// dynamic-analysis containers, e.g. "podman" or "docker".
	SandboxRuntime string

	// SandboxImage is the image reference used for dynamic analysis.
	SandboxImage string

	// SandboxTimeout is handed to the container runtime with each
	// dynamic-analysis container. CLIRuntime passes it as the runtime's
	// --stop-timeout (the grace period of a stop request); it does not cap
	// how long the container runs.
	SandboxTimeout time.Duration

	// TraceWaitInterval is the polling cadence while waiting for the trace
	// artifact to appear.
	TraceWaitInterval time.Duration

	// TraceWaitRetries bounds how many times the driver polls for the trace
	// artifact before giving up.
	TraceWaitRetries int

	// RequestTimeout is the hard wall-clock deadline applied to every bulk
	// scan request.
	RequestTimeout time.Duration

	// Insecure bypasses the sandbox container entirely: cmd/dirkd swaps in
	// a driver that runs nothing and reports every Dynamic item as an empty
	// signal set. Useful for local development, mirroring the teacher's own
	// Insecure escape hatch.
	Insecure bool

	// UseErrorReporting is read from DIRK_ERROR_REPORTING. Nothing in the
	// service consults it: no error-reporting client is installed, so
	// derrors.Report stays a no-op.
	UseErrorReporting bool

	// DevMode enables developer-friendly behavior (line-formatted logs
	// instead of structured JSON).
	DevMode bool
}

// Init resolves configuration from the environment, applying defaults for
// anything unset. Callers (cmd/dirkd) may override individual fields from
// flags after calling Init.
func Init() *Config {
	return &Config{
		Addr:                ":" + GetEnv("DIRK_PORT", "8080"),
		DatabaseURL:         GetEnv("DIRK_DATABASE_URL", "postgres://dirk@localhost:5432/dirk?sslmode=disable"),
		RuleDirs:            splitList(GetEnv("DIRK_RULE_DIRS", "rules")),
		LegacySignatureFile: GetEnv("DIRK_LEGACY_SIGNATURES", "rules/legacy-signatures.ndjson"),
		SandboxRuntime:      GetEnv("DIRK_SANDBOX_RUNTIME", "podman"),
		SandboxImage:        GetEnv("DIRK_SANDBOX_IMAGE", "dreamhost/php-8.0-xdebug:production"),
		SandboxTimeout:      getEnvDuration("DIRK_SANDBOX_TIMEOUT", 60*time.Second),
		TraceWaitInterval:   getEnvDuration("DIRK_TRACE_WAIT_INTERVAL", 500*time.Millisecond),
		TraceWaitRetries:    GetEnvInt("DIRK_TRACE_WAIT_RETRIES", "60", 60),
		RequestTimeout:      getEnvDuration("DIRK_REQUEST_TIMEOUT", 120*time.Second),
		Insecure:            os.Getenv("DIRK_INSECURE") == "true",
		UseErrorReporting:   os.Getenv("DIRK_ERROR_REPORTING") == "true",
	}
}

// Dump outputs the current config information to the given Writer.
func (c *Config) Dump(w io.Writer) error {
	fmt.Fprint(w, "config: ")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

// GetEnv looks up the given key from the environment, returning its value if
// it exists, and otherwise returning the given fallback value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt performs GetEnv(key, fallback) and parses the
// result as int. If parsing fails, returns errVal.
func GetEnvInt(key, fallback string, errVal int) int {
	v := GetEnv(key, fallback)
	i, err := strconv.Atoi(v)
	if err != nil {
		return errVal
	}
	return i
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}
