// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/repository"
)

func newListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every query in the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(repo.Queries))
			for n := range repo.Queries {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				q := repo.Queries[n]
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n, q.Destination.FullyQualified())
			}
			return nil
		},
	}
}
