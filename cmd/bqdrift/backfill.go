// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/cascade"
	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/job"
	"github.com/bqdrift/bqdrift/internal/repository"
	"github.com/bqdrift/bqdrift/internal/runner"
)

func newBackfillCmd(flags *rootFlags) *cobra.Command {
	var (
		start, end     string
		dryRun         bool
		skipInvariants bool
	)

	cmd := &cobra.Command{
		Use:   "backfill <query>",
		Short: "Re-execute a query across a range of partitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if start == "" || end == "" {
				return fmt.Errorf("--start and --end are required")
			}

			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			q, ok := repo.Queries[args[0]]
			if !ok {
				return fmt.Errorf("unknown query %q", args[0])
			}

			keys, err := partitionKeyRange(q.Destination.Partition, start, end)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "empty range")
				return nil
			}

			sess, err := connect(ctx, flags.cfg)
			if err != nil {
				return err
			}

			units := make([]cascade.Unit, len(keys))
			for i, k := range keys {
				units[i] = cascade.Unit{Query: q.Name, PartitionKey: k}
			}
			plan := &cascade.Plan{Groups: []cascade.Group{{Units: units}}}

			today := civil.DateOf(nowFunc())
			j := job.New(currentUser(), time.Now(), job.Backfill, len(units))

			orc := runner.New(sess.Gateway, sess.Warehouse)
			outcomes, err := orc.Execute(ctx, j, repo.Queries, plan, today, currentUser(), runner.Options{
				Parallelism:     1, // a single query's partitions always run strictly in order
				ContinueOnError: flags.cfg.ContinueOnError,
				SkipInvariants:  skipInvariants,
				DryRun:          dryRun,
				Timeout:         time.Duration(flags.cfg.WarehouseTimeoutSeconds) * time.Second,
			})
			if err != nil {
				return err
			}

			anyFailed := false
			for _, oc := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", oc.Unit.Query, oc.Unit.PartitionKey, oc.Status)
				if oc.Status == "FAILED" {
					anyFailed = true
				}
			}
			if anyFailed {
				return errUnitsFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first partition key, inclusive")
	cmd.Flags().StringVar(&end, "end", "", "last partition key, inclusive")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and estimate cost without writing")
	cmd.Flags().BoolVar(&skipInvariants, "skip-invariants", false, "skip before/after invariant checks")
	return cmd
}

// partitionKeyRange enumerates every partition key from start to end,
// inclusive, stepping by p's granularity (or by 1 for RANGE partitions).
func partitionKeyRange(p definition.Partition, start, end string) ([]string, error) {
	startVal, err := definition.ParsePartitionKey(p, start)
	if err != nil {
		return nil, fmt.Errorf("--start: %w", err)
	}
	endVal, err := definition.ParsePartitionKey(p, end)
	if err != nil {
		return nil, fmt.Errorf("--end: %w", err)
	}

	var keys []string
	if p.Kind == definition.PartitionRange {
		if endVal.Int < startVal.Int {
			return nil, fmt.Errorf("--end must not be before --start")
		}
		for n := startVal.Int; n <= endVal.Int; n++ {
			keys = append(keys, definition.FormatPartitionKey(p, definition.PartitionValue{Int: n}))
		}
		return keys, nil
	}

	if endVal.Time.Before(startVal.Time) {
		return nil, fmt.Errorf("--end must not be before --start")
	}
	step := granularityStep(p.Granularity)
	for t := startVal.Time; !t.After(endVal.Time); t = step(t) {
		keys = append(keys, definition.FormatPartitionKey(p, definition.PartitionValue{Time: t}))
	}
	return keys, nil
}

func granularityStep(g definition.Granularity) func(time.Time) time.Time {
	switch g {
	case definition.Hour:
		return func(t time.Time) time.Time { return t.Add(time.Hour) }
	case definition.Month:
		return func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case definition.Year:
		return func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default: // Day
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	}
}
