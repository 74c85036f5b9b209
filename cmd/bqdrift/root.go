// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/config"
	"github.com/bqdrift/bqdrift/internal/derrors"
	bqlog "github.com/bqdrift/bqdrift/internal/log"
)

// Exit codes, per the specification's CLI surface: 0 success, 1 generic
// failure, 2 bad usage, 3 drift/immutability found (for commands whose
// job is to report that), 4 a run completed with failed units, 130
// interrupted.
const (
	exitOK               = 0
	exitError            = 1
	exitUsage            = 2
	exitDriftFound        = 3
	exitUnitsFailed       = 4
	exitInterrupted       = 130
)

// errDriftFound and errUnitsFailed are sentinels a subcommand's RunE
// wraps its returned error in, to select an exit code distinct from a
// plain failure.
var (
	errDriftFound  = errors.New("drift found")
	errUnitsFailed = errors.New("one or more units failed")
)

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, errDriftFound):
		return exitDriftFound
	case errors.Is(err, errUnitsFailed):
		return exitUnitsFailed
	case errors.Is(err, derrors.InvalidArgument):
		return exitUsage
	default:
		return exitError
	}
}

type rootFlags struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{cfg: config.Default()}

	root := &cobra.Command{
		Use:           "bqdrift",
		Short:         "Orchestrate versioned SQL jobs against BigQuery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(flags.cfg)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.cfg.ProjectID, "project", "", "GCP project owning the destination tables")
	pf.StringVar(&flags.cfg.QueriesDir, "queries", ".", "root of the query definition repository")
	pf.StringVar(&flags.cfg.TrackingDataset, "dataset", flags.cfg.TrackingDataset, "dataset holding bqdrift's state and history tables, or \"disable\"")
	pf.StringVar(&flags.cfg.ScratchProject, "scratch-project", "", "project scratch-mode executions write to")
	pf.BoolVar(&flags.cfg.AllowSourceMutation, "allow-source-mutation", false, "permit sync despite immutability violations")
	pf.IntVar(&flags.cfg.CascadeParallelism, "parallelism", flags.cfg.CascadeParallelism, "max concurrent queries per cascade level")
	pf.BoolVar(&flags.cfg.ContinueOnError, "continue-on-error", false, "continue a backfill after a partition fails")
	pf.BoolVar(&flags.cfg.JSONLogs, "json-logs", false, "emit structured JSON logs instead of line-oriented text")

	root.AddCommand(
		newValidateCmd(flags),
		newListCmd(flags),
		newShowCmd(flags),
		newGraphCmd(flags),
		newStatusCmd(flags),
		newRunCmd(flags),
		newSyncCmd(flags),
		newBackfillCmd(flags),
		newAuditCmd(flags),
		newInitCmd(flags),
		newScratchCmd(flags),
		newReplCmd(flags),
	)
	return root
}

func setupLogging(cfg *config.Config) {
	var h slog.Handler
	if cfg.JSONLogs {
		h = bqlog.NewJSONHandler()
	} else {
		h = bqlog.NewLineHandler(os.Stderr)
	}
	slog.SetDefault(slog.New(h))
}

// signalContext returns a context canceled on SIGINT/SIGTERM, so a
// backfill or sync mid-flight stops scheduling new units instead of
// being killed outright.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
