// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package warehouse abstracts the query engine the Runner Orchestrator
// submits SQL to, so the orchestrator itself never imports
// cloud.google.com/go/bigquery directly.
package warehouse

import (
	"context"
	"time"
)

// SubmitOptions configures one execution unit.
type SubmitOptions struct {
	// Destination is the "dataset.table" the query's "{destination}"
	// placeholder expands to (the Runner Orchestrator passes
	// Destination.FullyQualified()). It carries no project, so the table
	// resolves in the client's project.
	Destination string
	// PartitionDate is bound to the SQL's @partition_date parameter; it
	// is never interpolated as text, so a query can never be tricked into
	// treating a crafted partition key as SQL.
	PartitionDate time.Time
	// DryRun validates and estimates cost without writing.
	DryRun bool
	// Timeout bounds how long Submit may block before returning
	// derrors.WarehouseTimeout.
	Timeout time.Duration
}

// Result summarizes a completed (or dry-run) execution.
type Result struct {
	JobID          string
	BytesProcessed int64
	RowCount       int64
}

// Client submits resolved SQL for execution. The production
// implementation is BQClient; Fake backs tests.
type Client interface {
	Submit(ctx context.Context, sqlTemplate string, opts SubmitOptions) (Result, error)

	// Measure runs sql, a single-row, single-column SELECT producing a
	// column named "value", and returns that value. It is how the Runner
	// Orchestrator evaluates an InvariantCheck's threshold against live
	// data, separately from Submit since a measurement never writes.
	Measure(ctx context.Context, sql string) (float64, error)
}
