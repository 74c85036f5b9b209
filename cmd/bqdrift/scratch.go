// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"

	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/repository"
)

// newScratchCmd groups the commands that manage scratch-mode tables: ones
// a `run`/`sync` wrote to --scratch-project instead of production, for a
// human to inspect before promoting.
func newScratchCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scratch",
		Short: "Inspect and promote tables written under --scratch-project",
	}
	cmd.AddCommand(newScratchListCmd(flags), newScratchPromoteCmd(flags))
	return cmd
}

func newScratchListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scratch tables and flag ones past their TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if flags.cfg.ScratchProject == "" {
				return fmt.Errorf("--scratch-project is required: %w", derrors.InvalidArgument)
			}
			client, err := bq.NewClient(ctx, flags.cfg.ScratchProject)
			if err != nil {
				return err
			}
			defer client.Close()

			ttl := time.Duration(flags.cfg.ScratchTTLHours) * time.Hour
			it := client.DatasetInProject(flags.cfg.ScratchProject, flags.cfg.TrackingDataset).Tables(ctx)
			for {
				tbl, err := it.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					return err
				}
				meta, err := tbl.Metadata(ctx)
				if err != nil {
					return err
				}
				age := time.Since(meta.CreationTime)
				expired := ttl > 0 && age > ttl
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tage=%s\texpired=%v\n", tbl.TableID, age.Round(time.Minute), expired)
			}
			return nil
		},
	}
}

func newScratchPromoteCmd(flags *rootFlags) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "promote <scratch-table>",
		Short: "Copy a scratch table over a production destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if flags.cfg.ScratchProject == "" {
				return fmt.Errorf("--scratch-project is required: %w", derrors.InvalidArgument)
			}
			if dest == "" {
				repo, err := repository.Load(flags.cfg.QueriesDir)
				if err != nil {
					return err
				}
				q, ok := repo.Queries[args[0]]
				if ok {
					dest = q.Destination.FullyQualified()
				}
			}
			if dest == "" {
				return fmt.Errorf("--dest is required when <scratch-table> is not a known query name: %w", derrors.InvalidArgument)
			}

			client, err := bq.NewClient(ctx, flags.cfg.ProjectID)
			if err != nil {
				return err
			}
			defer client.Close()

			srcClient, err := bq.NewClient(ctx, flags.cfg.ScratchProject)
			if err != nil {
				return err
			}
			defer srcClient.Close()

			src := srcClient.DatasetInProject(flags.cfg.ScratchProject, flags.cfg.TrackingDataset).Table(args[0])
			dst := destTable(client, dest)

			copier := dst.CopierFrom(src)
			copier.WriteDisposition = bq.WriteTruncate
			job, err := copier.Run(ctx)
			if err != nil {
				return err
			}
			status, err := job.Wait(ctx)
			if err != nil {
				return err
			}
			if err := status.Err(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "promoted %s to %s\n", args[0], dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "dataset.table to overwrite, if <scratch-table> isn't a known query name")
	return cmd
}

// destTable splits "dataset.table" and returns a handle in client's project.
func destTable(client *bq.Client, datasetDotTable string) *bq.Table {
	dataset, table := splitOnce(datasetDotTable, '.')
	return client.Dataset(dataset).Table(table)
}

func splitOnce(s string, sep byte) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
