// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dirkd runs the malware-scanning service: it loads the configured
// ruleset, opens the verdict cache, and binds the HTTP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/dreamhost/dirk/internal/api"
	"github.com/dreamhost/dirk/internal/cache"
	"github.com/dreamhost/dirk/internal/config"
	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/log"
	"github.com/dreamhost/dirk/internal/rules"
	"github.com/dreamhost/dirk/internal/sandbox"
	"github.com/dreamhost/dirk/internal/traceanalyzer"
)

var (
	port       = flag.String("port", config.GetEnv("DIRK_PORT", "8080"), "port to listen on")
	devMode    = flag.Bool("dev", false, "enable developer mode (line-formatted logs)")
	insecure   = flag.Bool("insecure", false, "bypass the sandbox container, for local development")
	ruleDirs   = flag.String("rules", "", "colon-separated rule directories (overrides DIRK_RULE_DIRS)")
	legacySigs = flag.String("legacy-signatures", "", "legacy base64-signature file (overrides DIRK_LEGACY_SIGNATURES)")
)

func main() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintln(out, "usage:")
		fmt.Fprintln(out, "dirkd FLAGS")
		fmt.Fprintln(out, "  run as a server, listening at the DIRK_PORT env var")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx := context.Background()
	var h slog.Handler
	if *devMode {
		h = log.NewLineHandler(os.Stderr)
	} else {
		h = log.NewGoogleCloudHandler()
	}
	slog.SetDefault(slog.New(h))

	if err := run(ctx); err != nil {
		log.Errorf(ctx, "fail: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Init()
	cfg.DevMode = *devMode
	cfg.Insecure = *insecure
	cfg.Addr = ":" + *port
	if *ruleDirs != "" {
		cfg.RuleDirs = splitColon(*ruleDirs)
	}
	if *legacySigs != "" {
		cfg.LegacySignatureFile = *legacySigs
	}
	cfg.Dump(os.Stdout)

	compiled, err := rules.Compile(ctx, cfg.RuleDirs, cfg.LegacySignatureFile)
	if err != nil {
		return fmt.Errorf("compiling rules: %w", err)
	}
	engine := rules.NewEngine(compiled, cfg.RequestTimeout)

	verdictCache, err := cache.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening verdict cache: %w", err)
	}

	var driver coordinator.DynamicAnalyzer
	if cfg.Insecure {
		driver = insecureDriver{}
	} else {
		sb := sandbox.New(sandbox.NewCLIRuntime(cfg.SandboxRuntime), cfg.SandboxImage)
		sb.Timeout = cfg.SandboxTimeout
		sb.Interval = cfg.TraceWaitInterval
		sb.Retries = cfg.TraceWaitRetries
		driver = sb
	}

	coord := coordinator.New(verdictCache, engine, driver)

	srv := api.NewServer(coord, verdictCache, cfg.RequestTimeout)
	mux := http.NewServeMux()
	srv.Register(mux)

	log.Infof(ctx, "listening on %s", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, mux)
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// insecureDriver always returns an empty signal set, bypassing the sandbox
// container entirely for local development (-insecure / DIRK_INSECURE=true).
type insecureDriver struct{}

func (insecureDriver) Examine(context.Context, string) (map[traceanalyzer.TriggeredSignal]struct{}, error) {
	return nil, nil
}
