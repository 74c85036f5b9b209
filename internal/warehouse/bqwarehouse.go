// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// bqClient is the subset of *bq.Client Client uses, narrowed for
// testability without a fake warehouse.Client.
type bqClient interface {
	Query(string) *bq.Query
}

// BQClient submits SQL to BigQuery. sqlTemplate's "{destination}"
// placeholder is substituted textually (a table identifier is not a
// value BigQuery lets us bind as a query parameter); every other
// variable, including the partition date, is bound as a real
// bq.QueryParameter.
type BQClient struct {
	client bqClient
}

// NewBQClient wraps an existing *bq.Client.
func NewBQClient(client *bq.Client) *BQClient {
	return &BQClient{client: client}
}

func (c *BQClient) Submit(ctx context.Context, sqlTemplate string, opts SubmitOptions) (_ Result, err error) {
	defer derrors.Wrap(&err, "warehouse.BQClient.Submit(%s)", opts.Destination)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sql := strings.ReplaceAll(sqlTemplate, "{destination}", "`"+opts.Destination+"`")
	q := c.client.Query(sql)
	q.Parameters = []bq.QueryParameter{
		{Name: "partition_date", Value: civil.DateOf(opts.PartitionDate)},
	}
	q.DryRun = opts.DryRun

	job, err := q.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%v: %w", ctx.Err(), derrors.WarehouseTimeout)
		}
		return Result{}, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}

	if opts.DryRun {
		stats := job.LastStatus().Statistics
		var bytes int64
		if qstats, ok := stats.Details.(*bq.QueryStatistics); ok {
			bytes = qstats.TotalBytesProcessed
		}
		return Result{JobID: job.ID(), BytesProcessed: bytes}, nil
	}

	status, err := job.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%v: %w", ctx.Err(), derrors.WarehouseTimeout)
		}
		return Result{}, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	if err := status.Err(); err != nil {
		return Result{}, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}

	var bytes int64
	if qstats, ok := status.Statistics.Details.(*bq.QueryStatistics); ok {
		bytes = qstats.TotalBytesProcessed
	}
	// RowCount is left zero: getting it requires a separate read of the
	// destination partition, which callers that need it already do for
	// invariant checks.
	return Result{JobID: job.ID(), BytesProcessed: bytes}, nil
}

// Measure runs sql and returns the single "value" column of its single
// result row.
func (c *BQClient) Measure(ctx context.Context, sql string) (_ float64, err error) {
	defer derrors.Wrap(&err, "warehouse.BQClient.Measure")

	it, err := c.client.Query(sql).Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	var row struct {
		Value float64 `bigquery:"value"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	return row.Value, nil
}
