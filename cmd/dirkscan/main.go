// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dirkscan is a reference client for the scanning service: it
// submits files for scanning and prints a colorized verdict summary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:          "dirkscan",
	Short:        "Submit files to the scanning service and report verdicts",
	SilenceUsage: true,
}

var rootConfiguration struct {
	serverURL string
}

func init() {
	persistent := rootCommand.PersistentFlags()
	persistent.StringVar(&rootConfiguration.serverURL, "server", "http://localhost:8080", "base URL of the scanning service")
	rootCommand.AddCommand(scanCommand, submitCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
