// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newReplCmd is a placeholder for an interactive shell. An interactive
// REPL front-end is explicitly out of scope; this subcommand exists only
// so `bqdrift repl` fails with a clear message instead of "unknown
// command".
func newReplCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:    "repl",
		Short:  "Not implemented: bqdrift has no interactive shell",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("bqdrift has no interactive REPL; use the other subcommands directly")
		},
	}
}
