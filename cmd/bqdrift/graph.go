// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/repository"
)

func newGraphCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph as an indented forest",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), repo.Graph.PrettyForest())
			return nil
		},
	}
}
