// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/repository"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the query repository without contacting BigQuery",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			if _, err := repo.Graph.TopologicalOrder(); err != nil {
				return err
			}
			for _, w := range repo.Warnings {
				fmt.Fprintln(cmd.OutOrStdout(), "warning:", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d quer(ies) OK\n", len(repo.Queries))
			return nil
		},
	}
}
