// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runner is bqdrift's Runner Orchestrator: it executes a
// cascade.Plan against a warehouse.Client, enforcing per-partition
// invariants and the history-before-state write ordering that keeps a
// crash mid-run from losing track of what actually happened.
package runner

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bqdrift/bqdrift/internal/bigquery"
	"github.com/bqdrift/bqdrift/internal/cascade"
	"github.com/bqdrift/bqdrift/internal/checksum"
	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/job"
	"github.com/bqdrift/bqdrift/internal/log"
	"github.com/bqdrift/bqdrift/internal/resolve"
	"github.com/bqdrift/bqdrift/internal/warehouse"
)

// Options configures one Execute call.
type Options struct {
	Parallelism     int  // max concurrent queries within one cascade.Group; <=0 means 1
	ContinueOnError bool // keep executing a query's remaining partitions after a failure
	SkipInvariants  bool // for --skip-invariants; still records state/history normally
	DryRun          bool
	Timeout         time.Duration // per-unit warehouse timeout
}

// UnitOutcome is one cascade.Unit's terminal result.
type UnitOutcome struct {
	Unit   cascade.Unit
	Status string // SUCCESS, FAILED, or SKIPPED
	Err    error
}

// Orchestrator executes plans against a warehouse, recording outcomes in
// the tracking dataset's Gateway.
type Orchestrator struct {
	gw *bigquery.Gateway
	wh warehouse.Client
}

// New returns an Orchestrator that records through gw and executes
// through wh.
func New(gw *bigquery.Gateway, wh warehouse.Client) *Orchestrator {
	return &Orchestrator{gw: gw, wh: wh}
}

// Execute runs plan's groups in order, one at a time, with up to
// opts.Parallelism queries within a group running concurrently. today is
// the wall-clock date used for revision selection; executedBy identifies
// the invoking principal for HistoryRecord.ExecutedBy.
func (o *Orchestrator) Execute(ctx context.Context, j *job.Job, queries map[string]*definition.Query, plan *cascade.Plan, today civil.Date, executedBy string, opts Options) ([]UnitOutcome, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	var outcomes []UnitOutcome
	for _, group := range plan.Groups {
		byQuery := map[string][]cascade.Unit{}
		for _, u := range group.Units {
			byQuery[u.Query] = append(byQuery[u.Query], u)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)

		results := make(chan []UnitOutcome, len(byQuery))
		for name, units := range byQuery {
			name, units := name, units
			g.Go(func() error {
				q, ok := queries[name]
				if !ok {
					results <- nil
					return fmt.Errorf("plan references unknown query %q: %w", name, derrors.InternalError)
				}
				qOutcomes := o.runQuery(gctx, j, q, units, today, executedBy, opts)
				results <- qOutcomes
				for _, oc := range qOutcomes {
					if oc.Status == "FAILED" && !opts.ContinueOnError {
						return oc.Err
					}
				}
				return nil
			})
		}

		groupErr := g.Wait()
		close(results)
		for r := range results {
			outcomes = append(outcomes, r...)
		}
		if groupErr != nil && !opts.ContinueOnError {
			j.Canceled = true
			return outcomes, groupErr
		}
	}
	return outcomes, nil
}

// runQuery executes units (all for the same query) strictly in order.
func (o *Orchestrator) runQuery(ctx context.Context, j *job.Job, q *definition.Query, units []cascade.Unit, today civil.Date, executedBy string, opts Options) []UnitOutcome {
	var outcomes []UnitOutcome
	for _, u := range units {
		if ctx.Err() != nil {
			outcomes = append(outcomes, UnitOutcome{Unit: u, Status: "SKIPPED", Err: ctx.Err()})
			j.NumSkipped++
			continue
		}
		oc := o.runUnit(ctx, j, q, u, today, executedBy, opts)
		outcomes = append(outcomes, oc)
		switch oc.Status {
		case "SUCCESS":
			j.NumSucceeded++
		case "FAILED":
			j.NumFailed++
		case "SKIPPED":
			j.NumSkipped++
		}
		j.NumStarted++
		if oc.Status == "FAILED" && !opts.ContinueOnError {
			break
		}
	}
	return outcomes
}

func (o *Orchestrator) runUnit(ctx context.Context, j *job.Job, q *definition.Query, u cascade.Unit, today civil.Date, executedBy string, opts Options) UnitOutcome {
	partVal, err := definition.ParsePartitionKey(q.Destination.Partition, u.PartitionKey)
	if err != nil {
		return o.fail(ctx, j, q, u, 0, 0, "", err, executedBy)
	}

	res, err := resolve.For(q, partVal.CivilDate(), today)
	if err != nil {
		return o.fail(ctx, j, q, u, 0, 0, "", err, executedBy)
	}

	destFQ := q.Destination.FullyQualified()
	if !opts.SkipInvariants {
		if err := o.runInvariants(ctx, res.Invariants.Before, destFQ, u.PartitionKey); err != nil {
			return o.fail(ctx, j, q, u, res.Version.Version, revisionNumber(res), res.SQLText, err, executedBy)
		}
	}

	start := time.Now()
	result, err := o.wh.Submit(ctx, res.SQLText, warehouse.SubmitOptions{
		Destination:   destFQ,
		PartitionDate: partVal.Time,
		DryRun:        opts.DryRun,
		Timeout:       opts.Timeout,
	})
	if err != nil {
		return o.fail(ctx, j, q, u, res.Version.Version, revisionNumber(res), res.SQLText, err, executedBy)
	}

	if !opts.SkipInvariants {
		if err := o.runInvariants(ctx, res.Invariants.After, destFQ, u.PartitionKey); err != nil {
			return o.fail(ctx, j, q, u, res.Version.Version, revisionNumber(res), res.SQLText, err, executedBy)
		}
	}

	upstreamStates := map[string]string{}
	for _, up := range q.Upstreams {
		ts, ok, err := o.gw.LatestExecution(ctx, up, u.PartitionKey)
		if err != nil {
			log.Errorf(ctx, err, "latest_execution for upstream %s of %s %s", up, q.Name, u.PartitionKey)
			continue
		}
		if ok {
			upstreamStates[up] = ts.Format(time.RFC3339Nano)
		}
	}

	now := time.Now()
	hist := &bigquery.HistoryRecord{
		ID:           uuid.NewString(),
		Query:        q.Name,
		PartitionKey: u.PartitionKey,
		Version:      res.Version.Version,
		Revision:     revisionNumber(res),
		TriggeredBy:  string(j.TriggeredBy),
		ExecutedBy:   executedBy,
		StartedAt:    start,
		FinishedAt:   now,
		Status:       "SUCCESS",
		SQLChecksum:  checksum.SQL(res.SQLText),
		JobID:        result.JobID,
		BytesProcessed: result.BytesProcessed,
		RowCount:       result.RowCount,
	}
	if !opts.DryRun {
		if err := o.gw.AppendHistory(ctx, hist); err != nil {
			log.Errorf(ctx, err, "append history for %s %s", q.Name, u.PartitionKey)
		}
		state := &bigquery.StateRecord{
			Query:              q.Name,
			PartitionKey:       u.PartitionKey,
			Version:            res.Version.Version,
			Revision:           revisionNumber(res),
			SQLChecksum:        checksum.SQL(res.SQLText),
			SchemaChecksum:     checksum.Schema(res.Schema),
			YAMLChecksum:       checksum.YAML(q.RawYAML),
			InvariantsChecksum: checksum.Invariants(res.Invariants),
			ExecutedSQL:        res.SQLText,
			UpstreamStates:     bigquery.EncodeUpstreamStates(upstreamStates),
			Status:             "SUCCESS",
			ExecutedAt:         now,
		}
		if err := o.gw.UpsertState(ctx, state); err != nil {
			log.Errorf(ctx, err, "upsert state for %s %s", q.Name, u.PartitionKey)
		}
	}

	return UnitOutcome{Unit: u, Status: "SUCCESS"}
}

func (o *Orchestrator) fail(ctx context.Context, j *job.Job, q *definition.Query, u cascade.Unit, version, revision int, sqlText string, cause error, executedBy string) UnitOutcome {
	now := time.Now()
	hist := &bigquery.HistoryRecord{
		ID:            uuid.NewString(),
		Query:         q.Name,
		PartitionKey:  u.PartitionKey,
		Version:       version,
		Revision:      revision,
		TriggeredBy:   string(j.TriggeredBy),
		ExecutedBy:    executedBy,
		StartedAt:     now,
		FinishedAt:    now,
		Status:        "FAILED",
		ErrorCategory: derrors.CategorizeError(cause),
		ErrorMessage:  cause.Error(),
		SQLChecksum:   checksum.SQL(sqlText),
	}
	if err := o.gw.AppendHistory(ctx, hist); err != nil {
		log.Errorf(ctx, err, "append failure history for %s %s", q.Name, u.PartitionKey)
	}
	return UnitOutcome{Unit: u, Status: "FAILED", Err: cause}
}

func revisionNumber(res resolve.Resolved) int {
	return res.Revision.Revision
}

// runInvariants measures each check against destFQ and returns the first
// error-severity failure; a warning-severity failure is logged but never
// blocks execution, per §3's severity semantics.
func (o *Orchestrator) runInvariants(ctx context.Context, invs []definition.Invariant, destFQ, partitionKey string) error {
	for _, inv := range invs {
		ok, measured, err := o.evaluateCheck(ctx, inv.Check, destFQ, partitionKey)
		if err != nil {
			return fmt.Errorf("invariant %q: %w", inv.Name, err)
		}
		if ok {
			continue
		}
		msg := fmt.Errorf("invariant %q failed: measured %v: %w", inv.Name, measured, derrors.InvariantFailure)
		if inv.Severity == definition.SeverityWarning {
			log.Warningf(ctx, "%v", msg)
			continue
		}
		return msg
	}
	return nil
}

// evaluateCheck measures check.Kind's quantity and reports whether it
// satisfies the check's threshold.
func (o *Orchestrator) evaluateCheck(ctx context.Context, check definition.InvariantCheck, destFQ, partitionKey string) (bool, float64, error) {
	sql, err := measurementSQL(check, destFQ, partitionKey)
	if err != nil {
		return false, 0, err
	}
	value, err := o.wh.Measure(ctx, sql)
	if err != nil {
		return false, 0, err
	}

	switch check.Kind {
	case definition.RowCount, definition.DistinctCount:
		if check.Min != nil && value < float64(*check.Min) {
			return false, value, nil
		}
		if check.Max != nil && value > float64(*check.Max) {
			return false, value, nil
		}
		return true, value, nil
	case definition.NullPercentage:
		return value <= *check.MaxPercentage, value, nil
	case definition.ValueRange:
		if check.RangeMin != nil && value < *check.RangeMin {
			return false, value, nil
		}
		if check.RangeMax != nil && value > *check.RangeMax {
			return false, value, nil
		}
		return true, value, nil
	default:
		return false, 0, fmt.Errorf("unknown check kind %q: %w", check.Kind, derrors.InternalError)
	}
}

// measurementSQL builds the single-row, single-column SELECT
// warehouse.Client.Measure expects, reading from check.Source if set or
// destFQ otherwise, filtered to partitionKey.
func measurementSQL(check definition.InvariantCheck, destFQ, partitionKey string) (string, error) {
	source := destFQ
	if check.Source != "" {
		source = check.Source
	}
	from := fmt.Sprintf("`%s` WHERE partition_key = '%s'", source, partitionKey)

	switch check.Kind {
	case definition.RowCount:
		return fmt.Sprintf("SELECT COUNT(*) AS value FROM %s", from), nil
	case definition.DistinctCount:
		return fmt.Sprintf("SELECT COUNT(DISTINCT %s) AS value FROM %s", check.Column, from), nil
	case definition.NullPercentage:
		return fmt.Sprintf(
			"SELECT 100.0 * COUNTIF(%s IS NULL) / NULLIF(COUNT(*), 0) AS value FROM %s",
			check.Column, from), nil
	case definition.ValueRange:
		return fmt.Sprintf("SELECT MAX(%s) AS value FROM %s", check.Column, from), nil
	default:
		return "", fmt.Errorf("unknown check kind %q: %w", check.Kind, derrors.InternalError)
	}
}
