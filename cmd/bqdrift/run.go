// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/cascade"
	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/job"
	"github.com/bqdrift/bqdrift/internal/repository"
	"github.com/bqdrift/bqdrift/internal/runner"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		partitionKey   string
		dryRun         bool
		skipInvariants bool
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Execute a single query for a single partition, regardless of drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			q, ok := repo.Queries[args[0]]
			if !ok {
				return fmt.Errorf("unknown query %q", args[0])
			}

			today := civil.DateOf(nowFunc())
			key := partitionKey
			if key == "" {
				key = definition.FormatPartitionKey(q.Destination.Partition, definition.PartitionValue{Time: civilDateToTime(today)})
			}

			sess, err := connect(ctx, flags.cfg)
			if err != nil {
				return err
			}

			plan := &cascade.Plan{Groups: []cascade.Group{{Units: []cascade.Unit{{Query: q.Name, PartitionKey: key}}}}}
			j := job.New(currentUser(), time.Now(), job.Manual, 1)

			orc := runner.New(sess.Gateway, sess.Warehouse)
			outcomes, err := orc.Execute(ctx, j, repo.Queries, plan, today, currentUser(), runner.Options{
				Parallelism:     flags.cfg.CascadeParallelism,
				ContinueOnError: flags.cfg.ContinueOnError,
				SkipInvariants:  skipInvariants,
				DryRun:          dryRun,
				Timeout:         time.Duration(flags.cfg.WarehouseTimeoutSeconds) * time.Second,
			})
			if err != nil {
				return err
			}
			for _, oc := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", oc.Unit.Query, oc.Unit.PartitionKey, oc.Status)
				if oc.Status == "FAILED" {
					return errUnitsFailed
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&partitionKey, "partition", "", "partition key to execute (default: today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and estimate cost without writing")
	cmd.Flags().BoolVar(&skipInvariants, "skip-invariants", false, "skip before/after invariant checks")
	return cmd
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
