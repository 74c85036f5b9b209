// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// Table names within the tracking dataset.
const (
	StateTableName   = "state"
	HistoryTableName = "history"
)

func init() {
	s, err := InferSchema(StateRecord{})
	if err != nil {
		panic(err)
	}
	AddTable(StateTableName, s)
	s, err = InferSchema(HistoryRecord{})
	if err != nil {
		panic(err)
	}
	AddTable(HistoryTableName, s)
}

// StateRecord is one row of _bqdrift_state: the last outcome and content
// fingerprints bqdrift observed for one (query, partition_key). The Drift
// Classifier and Immutability Auditor read this table; the Runner
// Orchestrator is its only writer.
type StateRecord struct {
	UploadedAt time.Time `bigquery:"uploaded_at"`

	Query        string `bigquery:"query"`
	PartitionKey string `bigquery:"partition_key"`
	Version      int    `bigquery:"version"`
	Revision     int    `bigquery:"revision"`

	SQLChecksum        string `bigquery:"sql_checksum"`
	SchemaChecksum      string `bigquery:"schema_checksum"`
	YAMLChecksum        string `bigquery:"yaml_checksum"`
	InvariantsChecksum  string `bigquery:"invariants_checksum"`

	// ExecutedSQL is the SQL text that actually ran, the comparand the
	// Immutability Auditor uses (a checksum would be enough to detect a
	// mismatch, but not to show the operator what changed).
	ExecutedSQL string `bigquery:"executed_sql"`

	// UpstreamStates is a JSON object mapping each upstream query name
	// this execution depended on to that upstream's latest executed_at
	// for the same partition key (RFC3339Nano) at the time, the input to
	// the UPSTREAM_CHANGED drift rule.
	UpstreamStates string `bigquery:"upstream_states"`

	Status     string    `bigquery:"status"` // SUCCESS or FAILED
	ExecutedAt time.Time `bigquery:"executed_at"`
}

// SetUploadTime is used by Client.Upload.
func (r *StateRecord) SetUploadTime(t time.Time) { r.UploadedAt = t }

// HistoryRecord is one row of _bqdrift_history: an append-only log of
// every execution attempt, successful or not. Nothing ever updates a
// HistoryRecord once written.
type HistoryRecord struct {
	UploadedAt time.Time `bigquery:"uploaded_at"`

	ID           string `bigquery:"id"`
	Query        string `bigquery:"query"`
	PartitionKey string `bigquery:"partition_key"`
	Version      int    `bigquery:"version"`
	Revision     int    `bigquery:"revision"`

	TriggeredBy string `bigquery:"triggered_by"` // job.TriggeredBy
	ExecutedBy  string `bigquery:"executed_by"`

	StartedAt  time.Time `bigquery:"started_at"`
	FinishedAt time.Time `bigquery:"finished_at"`

	Status        string `bigquery:"status"` // SUCCESS or FAILED
	ErrorCategory string `bigquery:"error_category"`
	ErrorMessage  string `bigquery:"error_message"`

	SQLChecksum    string `bigquery:"sql_checksum"`
	JobID          string `bigquery:"job_id"`
	BytesProcessed int64  `bigquery:"bytes_processed"`
	RowCount       int64  `bigquery:"row_count"`
}

// SetUploadTime is used by Client.Upload.
func (r *HistoryRecord) SetUploadTime(t time.Time) { r.UploadedAt = t }

// Gateway is the tracking-dataset API the Drift Classifier, Immutability
// Auditor, and Runner Orchestrator use; it is the only thing in bqdrift
// that issues SQL against _bqdrift_state and _bqdrift_history.
type Gateway struct {
	client *Client
}

// NewGateway wraps client, which must already be bound to the tracking
// dataset.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// EnsureTables creates the state and history tables if they don't exist.
func (g *Gateway) EnsureTables(ctx context.Context) (err error) {
	defer derrors.Wrap(&err, "Gateway.EnsureTables")
	if _, err := g.client.CreateOrUpdateTable(ctx, StateTableName); err != nil {
		return err
	}
	if _, err := g.client.CreateOrUpdateTable(ctx, HistoryTableName); err != nil {
		return err
	}
	return nil
}

// GetState returns the most recently recorded state for (query,
// partitionKey), or ok=false if none exists.
func (g *Gateway) GetState(ctx context.Context, query, partitionKey string) (_ *StateRecord, ok bool, err error) {
	defer derrors.Wrap(&err, "Gateway.GetState(%q, %q)", query, partitionKey)

	q := fmt.Sprintf(`
		SELECT * FROM `+"`%s`"+`
		WHERE query = @query AND partition_key = @partition_key
		ORDER BY executed_at DESC
		LIMIT 1`, g.client.FullTableName(StateTableName))
	iter, err := g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "query", Value: query},
		{Name: "partition_key", Value: partitionKey},
	})
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	rows, err := All[StateRecord](iter)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// GetStatesRange returns the most recent state for every partition of
// query whose partition_key falls in [startKey, endKey], ascending.
func (g *Gateway) GetStatesRange(ctx context.Context, query, startKey, endKey string) (_ []*StateRecord, err error) {
	defer derrors.Wrap(&err, "Gateway.GetStatesRange(%q, %q, %q)", query, startKey, endKey)

	inner := PartitionQuery{
		Table:       g.client.FullTableName(StateTableName),
		PartitionOn: "partition_key",
		OrderBy:     "executed_at DESC",
	}
	q := fmt.Sprintf(`
		SELECT * FROM (%s)
		WHERE query = @query AND partition_key BETWEEN @start AND @end
		ORDER BY partition_key ASC`, inner.String())
	iter, err := g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "query", Value: query},
		{Name: "start", Value: startKey},
		{Name: "end", Value: endKey},
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	return All[StateRecord](iter)
}

// LatestExecution returns the executed_at timestamp of the most recently
// recorded state row for (query, partitionKey), or ok=false if that
// partition has never run. Per §4.8/§4.9, this is what the Drift
// Classifier compares against an upstream's recorded upstream_states
// entry to detect that the upstream reran since.
func (g *Gateway) LatestExecution(ctx context.Context, query, partitionKey string) (_ time.Time, ok bool, err error) {
	defer derrors.Wrap(&err, "Gateway.LatestExecution(%q, %q)", query, partitionKey)

	q := fmt.Sprintf(`
		SELECT * FROM `+"`%s`"+`
		WHERE query = @query AND partition_key = @partition_key
		ORDER BY executed_at DESC
		LIMIT 1`, g.client.FullTableName(StateTableName))
	iter, err := g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "query", Value: query},
		{Name: "partition_key", Value: partitionKey},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	rows, err := All[StateRecord](iter)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].ExecutedAt, true, nil
}

// DistinctPartitionsFor returns every partition_key ever recorded for
// (query, version, revision), ascending.
func (g *Gateway) DistinctPartitionsFor(ctx context.Context, query string, version, revision int) (_ []string, err error) {
	defer derrors.Wrap(&err, "Gateway.DistinctPartitionsFor(%q, %d, %d)", query, version, revision)

	q := fmt.Sprintf(`
		SELECT DISTINCT partition_key FROM `+"`%s`"+`
		WHERE query = @query AND version = @version AND revision = @revision
		ORDER BY partition_key ASC`, g.client.FullTableName(StateTableName))
	iter, err := g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "query", Value: query},
		{Name: "version", Value: version},
		{Name: "revision", Value: revision},
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	type row struct {
		PartitionKey string `bigquery:"partition_key"`
	}
	rows, err := All[row](iter)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.PartitionKey
	}
	return out, nil
}

// ExecutedSQLFor returns the distinct set of SQL texts ever recorded as
// executed for (query, version, revision), across all partitions. More
// than one distinct value is itself evidence of an immutability
// violation predating this run; the Immutability Auditor reports that
// case distinctly from a mismatch against currently-resolved SQL.
func (g *Gateway) ExecutedSQLFor(ctx context.Context, query string, version, revision int) (_ []string, err error) {
	defer derrors.Wrap(&err, "Gateway.ExecutedSQLFor(%q, %d, %d)", query, version, revision)

	q := fmt.Sprintf(`
		SELECT DISTINCT executed_sql FROM `+"`%s`"+`
		WHERE query = @query AND version = @version AND revision = @revision`,
		g.client.FullTableName(StateTableName))
	iter, err := g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "query", Value: query},
		{Name: "version", Value: version},
		{Name: "revision", Value: revision},
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	type row struct {
		ExecutedSQL string `bigquery:"executed_sql"`
	}
	rows, err := All[row](iter)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ExecutedSQL
	}
	return out, nil
}

// UpsertState records rec as the new state for its (query, partition_key),
// merging on that key so a second execution of the same partition
// replaces rather than accumulates. Per the Runner Orchestrator's
// crash-safety ordering, this must be called only after AppendHistory has
// durably recorded the same outcome.
func (g *Gateway) UpsertState(ctx context.Context, rec *StateRecord) (err error) {
	defer derrors.Wrap(&err, "Gateway.UpsertState(%q, %q)", rec.Query, rec.PartitionKey)

	rec.UploadedAt = time.Now()
	q := fmt.Sprintf(`
		MERGE `+"`%s`"+` T
		USING (SELECT
			@uploaded_at AS uploaded_at, @query AS query, @partition_key AS partition_key,
			@version AS version, @revision AS revision,
			@sql_checksum AS sql_checksum, @schema_checksum AS schema_checksum,
			@yaml_checksum AS yaml_checksum, @invariants_checksum AS invariants_checksum,
			@executed_sql AS executed_sql, @upstream_states AS upstream_states,
			@status AS status, @executed_at AS executed_at
		) S
		ON T.query = S.query AND T.partition_key = S.partition_key
		WHEN MATCHED THEN UPDATE SET
			uploaded_at = S.uploaded_at, version = S.version, revision = S.revision,
			sql_checksum = S.sql_checksum, schema_checksum = S.schema_checksum,
			yaml_checksum = S.yaml_checksum, invariants_checksum = S.invariants_checksum,
			executed_sql = S.executed_sql, upstream_states = S.upstream_states,
			status = S.status, executed_at = S.executed_at
		WHEN NOT MATCHED THEN INSERT ROW`,
		g.client.FullTableName(StateTableName))

	_, err = g.client.QueryWithParams(ctx, q, []bq.QueryParameter{
		{Name: "uploaded_at", Value: rec.UploadedAt},
		{Name: "query", Value: rec.Query},
		{Name: "partition_key", Value: rec.PartitionKey},
		{Name: "version", Value: rec.Version},
		{Name: "revision", Value: rec.Revision},
		{Name: "sql_checksum", Value: rec.SQLChecksum},
		{Name: "schema_checksum", Value: rec.SchemaChecksum},
		{Name: "yaml_checksum", Value: rec.YAMLChecksum},
		{Name: "invariants_checksum", Value: rec.InvariantsChecksum},
		{Name: "executed_sql", Value: rec.ExecutedSQL},
		{Name: "upstream_states", Value: rec.UpstreamStates},
		{Name: "status", Value: rec.Status},
		{Name: "executed_at", Value: rec.ExecutedAt},
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}
	return nil
}

// EncodeUpstreamStates renders an upstream-name to executed_at
// (RFC3339Nano) map as the JSON text stored in StateRecord.UpstreamStates.
func EncodeUpstreamStates(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		// m is map[string]string; json.Marshal cannot fail on it.
		panic(err)
	}
	return string(b)
}

// DecodeUpstreamStates parses StateRecord.UpstreamStates back into a map,
// treating malformed or empty input as "no recorded upstreams" rather
// than an error: a corrupt snapshot should read as drift, not crash the
// classifier.
func DecodeUpstreamStates(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// AppendHistory streams rec into _bqdrift_history. History rows are
// never updated, so a plain streaming insert (rather than the MERGE
// UpsertState uses) is both correct and cheaper.
func (g *Gateway) AppendHistory(ctx context.Context, rec *HistoryRecord) (err error) {
	defer derrors.Wrap(&err, "Gateway.AppendHistory(%q, %q)", rec.Query, rec.PartitionKey)
	return g.client.Upload(ctx, HistoryTableName, rec)
}
