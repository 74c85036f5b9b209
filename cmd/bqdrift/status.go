// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/checksum"
	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/drift"
	"github.com/bqdrift/bqdrift/internal/repository"
	"github.com/bqdrift/bqdrift/internal/resolve"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [query...]",
		Short: "Show drift classification for today's partition of each query",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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

			today := civil.DateOf(nowFunc())
			anyDrift := false
			for _, name := range names {
				q, ok := repo.Queries[name]
				if !ok {
					return fmt.Errorf("unknown query %q", name)
				}
				result, partKey, err := statusFor(ctx, sess, repo, q, today)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, partKey, result.Status)
				if result.Status != drift.Current {
					anyDrift = true
				}
			}
			if anyDrift {
				return errDriftFound
			}
			return nil
		},
	}
}

func statusFor(ctx context.Context, sess *warehouseSession, repo *repository.Repository, q *definition.Query, today civil.Date) (drift.Result, string, error) {
	res, err := resolve.For(q, today, today)
	if err != nil {
		return drift.Result{}, "", err
	}
	partKey := definition.FormatPartitionKey(q.Destination.Partition, definition.PartitionValue{
		Time: civilDateToTime(today),
	})

	upstreamLatest := map[string]time.Time{}
	for _, up := range q.Upstreams {
		if _, ok := repo.Queries[up]; !ok {
			continue
		}
		ts, ok, err := sess.Gateway.LatestExecution(ctx, up, partKey)
		if err != nil {
			return drift.Result{}, partKey, err
		}
		if ok {
			upstreamLatest[up] = ts
		}
	}

	cur := drift.CurrentSource{
		Version:                  res.Version.Version,
		Revision:                 res.Revision.Revision,
		SQLChecksum:              checksum.SQL(res.SQLText),
		SchemaChecksum:           checksum.Schema(res.Schema),
		InvariantsChecksum:       checksum.Invariants(res.Invariants),
		UpstreamLatestExecutions: upstreamLatest,
	}

	prior, ok, err := sess.Gateway.GetState(ctx, q.Name, partKey)
	if err != nil {
		return drift.Result{}, partKey, err
	}
	if !ok {
		prior = nil
	}
	return drift.Classify(cur, prior), partKey, nil
}

func civilDateToTime(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
