// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dreamhost/dirk/internal/coordinator"
	"github.com/dreamhost/dirk/internal/hashid"
)

var scanConfiguration struct {
	recursive      bool
	chunkSize      int
	skipCache      bool
	followSymlinks bool
}

var scanCommand = &cobra.Command{
	Use:   "scan {Quick|Full|Dynamic|FindUnknown} PATH",
	Short: "Scan a file or directory against the scanning service",
	Args:  cobra.ExactArgs(2),
	RunE:  runScan,
}

func init() {
	flags := scanCommand.Flags()
	flags.BoolVar(&scanConfiguration.recursive, "recursive", false, "recurse into subdirectories")
	flags.IntVar(&scanConfiguration.chunkSize, "chunk-size", 500, "maximum items per batch request")
	flags.BoolVar(&scanConfiguration.skipCache, "skip-cache", false, "bypass the verdict cache and force analysis")
	flags.BoolVar(&scanConfiguration.followSymlinks, "follow-symlinks", false, "include symlinked files while walking directories (symlinked directories are not descended into)")
}

func runScan(cmd *cobra.Command, args []string) error {
	kind := args[0]
	switch kind {
	case "Quick", "Full", "Dynamic", "FindUnknown":
	default:
		return errors.Errorf("unknown scan kind %q", kind)
	}
	root := args[1]

	paths, err := collectPaths(root, scanConfiguration.recursive, scanConfiguration.followSymlinks)
	if err != nil {
		return err
	}

	c := newClient(rootConfiguration.serverURL)

	if kind == "FindUnknown" {
		return runFindUnknown(c, paths)
	}

	chunkSize := scanConfiguration.chunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}

	for start := 0; start < len(paths); start += chunkSize {
		end := start + chunkSize
		if end > len(paths) {
			end = len(paths)
		}
		items, err := buildItems(paths[start:end], kind)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			continue
		}
		res, err := c.scan(kind, bulkRequest{Items: items, SkipCache: scanConfiguration.skipCache})
		if err != nil {
			return err
		}
		printResults(res)
	}
	return nil
}

// runFindUnknown reports local files whose hash is absent from the
// server's verdict cache entirely. Unlike the other scan kinds, this never
// submits a scan request: it fetches the full known-hash set from
// GET /files/list and subtracts it from the local file list itself.
func runFindUnknown(c *client, paths []string) error {
	known, err := c.listKnown()
	if err != nil {
		return err
	}
	for _, p := range paths {
		contents, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
			continue
		}
		hash := string(hashid.Of(contents))
		if !known[hash] {
			fmt.Println(p)
		}
	}
	return nil
}

func buildItems(paths []string, kind string) ([]scanRequestItem, error) {
	needsContents := kind == "Full" || kind == "Dynamic"
	var items []scanRequestItem
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
			continue
		}
		if info.Size() > coordinator.MaxFileSize {
			fmt.Fprintf(os.Stderr, "skipping %s: %s exceeds the %s limit\n",
				p, humanize.Bytes(uint64(info.Size())), humanize.Bytes(coordinator.MaxFileSize))
			continue
		}
		contents, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
			continue
		}
		hash := string(hashid.Of(contents))
		item := scanRequestItem{Hash: hash, Kind: kind, FileName: p}
		if needsContents {
			item.FileContents = encodeContents(contents)
		}
		items = append(items, item)
	}
	return items, nil
}

func collectPaths(root string, recursive, followSymlinks bool) ([]string, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !followSymlinks {
			return nil
		}
		paths = append(paths, path)
		return nil
	}
	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	return paths, nil
}

func printResults(res *bulkResult) {
	for _, r := range res.Results {
		var paint func(format string, a ...interface{}) string
		switch r.Class {
		case "OK":
			paint = color.GreenString
		case "Bad":
			paint = color.RedString
		default:
			paint = color.YellowString
		}
		fmt.Printf("%s  %s  %s\n", paint("%-12s", r.Class), r.Hash, namesJoined(r.FileNames))
		if len(r.Signatures) > 0 {
			fmt.Printf("  rules: %v\n", r.Signatures)
		}
		if len(r.DynamicSignals) > 0 {
			fmt.Printf("  signals: %v\n", r.DynamicSignals)
		}
	}
}

func namesJoined(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
