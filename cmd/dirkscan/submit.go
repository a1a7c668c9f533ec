// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dreamhost/dirk/internal/hashid"
)

var submitConfiguration struct {
	fileClass string
}

var submitCommand = &cobra.Command{
	Use:   "submit PATH",
	Short: "Record a known-good or known-bad verdict for a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	flags := submitCommand.Flags()
	flags.StringVar(&submitConfiguration.fileClass, "file-class", "", "Good, Bad, Whitelisted, or Blacklisted")
	submitCommand.MarkFlagRequired("file-class")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	switch submitConfiguration.fileClass {
	case "Good", "Bad", "Whitelisted", "Blacklisted":
	default:
		return errors.Errorf("unknown --file-class %q", submitConfiguration.fileClass)
	}

	path := args[0]
	contents, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	hash := hashid.Of(contents)

	c := newClient(rootConfiguration.serverURL)
	if err := c.submit(string(hash), submitConfiguration.fileClass); err != nil {
		return errors.Wrapf(err, "submitting %s", path)
	}
	fmt.Printf("%s  %s  %s\n", hash, submitConfiguration.fileClass, path)
	return nil
}
