// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/repository"
	"github.com/bqdrift/bqdrift/internal/resolve"
)

func newShowCmd(flags *rootFlags) *cobra.Command {
	var partitionKey string

	cmd := &cobra.Command{
		Use:   "show <query>",
		Short: "Show a query's resolved SQL, schema, and invariants for a partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			q, ok := repo.Queries[args[0]]
			if !ok {
				return fmt.Errorf("unknown query %q: %w", args[0], derrors.NotFound)
			}
			today := civil.DateOf(nowFunc())
			partDate := today
			if partitionKey != "" {
				val, err := parsePartitionKeyFlag(q, partitionKey)
				if err != nil {
					return err
				}
				partDate = val
			}
			res, err := resolve.For(q, partDate, today)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\nrevision: %d\n\n%s\n", res.Version.Version, res.Revision.Revision, res.SQLText)
			return nil
		},
	}
	cmd.Flags().StringVar(&partitionKey, "partition", "", "partition key to resolve against (default: today)")
	return cmd
}
