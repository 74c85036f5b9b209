// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/cascade"
	"github.com/bqdrift/bqdrift/internal/drift"
	"github.com/bqdrift/bqdrift/internal/immutable"
	"github.com/bqdrift/bqdrift/internal/job"
	"github.com/bqdrift/bqdrift/internal/repository"
	"github.com/bqdrift/bqdrift/internal/resolve"
	"github.com/bqdrift/bqdrift/internal/runner"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	var (
		useCascade     bool
		dryRun         bool
		skipInvariants bool
	)

	cmd := &cobra.Command{
		Use:   "sync [query...]",
		Short: "Run today's partition for every drifted query, optionally cascading to downstream consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			sess, err := connect(ctx, flags.cfg)
			if err != nil {
				return err
			}

			names := args
			if len(names) == 0 {
				for n := range repo.Queries {
					names = append(names, n)
				}
			}
			sort.Strings(names)

			today := civil.DateOf(nowFunc())
			auditor := immutable.New(sess.Gateway)

			var seeds []cascade.Seed
			for _, name := range names {
				q, ok := repo.Queries[name]
				if !ok {
					return fmt.Errorf("unknown query %q", name)
				}
				result, partKey, err := statusFor(ctx, sess, repo, q, today)
				if err != nil {
					return err
				}
				if result.Status == drift.Current {
					continue
				}

				res, err := resolve.For(q, today, today)
				if err != nil {
					return err
				}
				violation, err := auditor.Check(ctx, q.Name, res.Version.Version, revNum(res), res.SQLText)
				if err != nil {
					return err
				}
				if violation != nil && !flags.cfg.AllowSourceMutation {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: immutability violation, rerun with --allow-source-mutation to proceed: %s vs %s\n",
						q.Name, violation.CurrentSQL, violation.ExecutedSQL)
					return errDriftFound
				}

				seeds = append(seeds, cascade.Seed{Query: name, PartitionKey: partKey})
			}

			if len(seeds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to sync")
				return nil
			}

			var plan *cascade.Plan
			if useCascade {
				plan, err = cascade.Build(repo.Graph, repo.Queries, seeds)
				if err != nil {
					return err
				}
				for _, d := range plan.Dropped {
					fmt.Fprintf(cmd.ErrOrStderr(), "dropped %s/%s -> %s: %s\n", d.UpstreamQuery, d.UpstreamPartition, d.DownstreamQuery, d.Reason)
				}
			} else {
				plan = &cascade.Plan{Groups: []cascade.Group{{Units: seedsToUnits(seeds)}}}
			}

			trig := job.Sync
			if useCascade {
				trig = job.Cascade
			}
			j := job.New(currentUser(), time.Now(), trig, countUnits(plan))

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
	cmd.Flags().BoolVar(&useCascade, "cascade", false, "expand drifted partitions across downstream consumers")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and estimate cost without writing")
	cmd.Flags().BoolVar(&skipInvariants, "skip-invariants", false, "skip before/after invariant checks")
	return cmd
}

func revNum(res resolve.Resolved) int {
	return res.Revision.Revision
}

func seedsToUnits(seeds []cascade.Seed) []cascade.Unit {
	units := make([]cascade.Unit, len(seeds))
	for i, s := range seeds {
		units[i] = cascade.Unit{Query: s.Query, PartitionKey: s.PartitionKey}
	}
	return units
}

func countUnits(plan *cascade.Plan) int {
	n := 0
	for _, g := range plan.Groups {
		n += len(g.Units)
	}
	return n
}
