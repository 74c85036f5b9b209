// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package definition holds bqdrift's typed representation of a query
// repository: Query, Version, Revision, Field, Invariant, and the
// Destination/Partition types that determine a table's PartitionKey
// grammar. Values of these types are produced once by Load and handed
// read-only to every downstream component (SQL extraction, resolution,
// drift classification).
package definition

import (
	"cloud.google.com/go/civil"
)

// Mode is a BigQuery field mode.
type Mode string

const (
	Required Mode = "REQUIRED"
	Nullable Mode = "NULLABLE"
	Repeated Mode = "REPEATED"
)

// Field is one column of a materialized schema.
type Field struct {
	Name        string
	Type        string
	Mode        Mode
	Description string
	// Fields holds nested columns; required and non-empty iff Type is
	// RECORD.
	Fields []Field
}

// Severity is the severity of an Invariant.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Phase is when an Invariant runs relative to query execution.
type Phase string

const (
	Before Phase = "before"
	After  Phase = "after"
)

// CheckKind names an InvariantCheck variant.
type CheckKind string

const (
	RowCount        CheckKind = "row_count"
	NullPercentage  CheckKind = "null_percentage"
	ValueRange      CheckKind = "value_range"
	DistinctCount   CheckKind = "distinct_count"
)

// InvariantCheck is a tagged union over the four check kinds in §3 of the
// specification. Kind selects which of the field groups below are
// meaningful; the others are left zero.
type InvariantCheck struct {
	Kind CheckKind

	// row_count
	Min    *int64
	Max    *int64
	Source string // optional; "" means count the destination partition

	// null_percentage / value_range / distinct_count
	Column string

	// null_percentage
	MaxPercentage *float64

	// value_range
	RangeMin *float64
	RangeMax *float64

	// distinct_count reuses Min/Max above.
}

// Invariant wraps one data-quality check with its metadata.
type Invariant struct {
	Name        string
	Description string
	Severity    Severity
	Phase       Phase
	Check       InvariantCheck
}

// InvariantSet is the materialized {before, after} invariant lists for one
// Version, after inheritance has been applied.
type InvariantSet struct {
	Before []Invariant
	After  []Invariant
}

// PartitionKind names the three partitioning strategies in §3.
type PartitionKind string

const (
	PartitionTime          PartitionKind = "TIME"
	PartitionRange         PartitionKind = "RANGE"
	PartitionIngestionTime PartitionKind = "INGESTION_TIME"
)

// Granularity is a TIME or INGESTION_TIME partition's bucket size.
type Granularity string

const (
	Hour  Granularity = "HOUR"
	Day   Granularity = "DAY"
	Month Granularity = "MONTH"
	Year  Granularity = "YEAR"
)

// Partition describes how a destination table is partitioned. Which
// fields are meaningful is determined by Kind:
//
//	TIME:            Granularity, Field
//	RANGE:           RangeStart, RangeEnd, RangeInterval
//	INGESTION_TIME:  Granularity
type Partition struct {
	Kind        PartitionKind
	Granularity Granularity
	Field       string

	RangeStart    int64
	RangeEnd      int64
	RangeInterval int64
}

// Destination names the table a query writes to, and how it is laid out.
type Destination struct {
	Dataset       string
	Table         string
	Partition     Partition
	ClusterFields []string
}

// FullyQualified returns "dataset.table", the identifier dependencies are
// matched against (not the query name).
func (d Destination) FullyQualified() string {
	return d.Dataset + "." + d.Table
}

// Revision is a within-version bugfix: same schema, different SQL.
type Revision struct {
	Revision      int
	EffectiveFrom civil.Date
	Source        string
	Reason        string
	BackfillSince *civil.Date
}

// Version is a schema-stable epoch of a query.
type Version struct {
	Version       int
	EffectiveFrom civil.Date
	Source        string
	Schema        []Field
	Revisions     []Revision
	Invariants    InvariantSet
}

// Query is a named unit of computation producing one destination table.
type Query struct {
	Name        string
	Destination Destination
	Description string
	Owner       string
	Tags        []string
	Versions    []Version

	// SourceFile is the absolute path to the query's top-level YAML file.
	SourceFile string
	// RawYAML is the verbatim bytes of SourceFile, read before any
	// ${{ }} directive is expanded. It is the input to yaml_checksum.
	RawYAML []byte

	// Upstreams is the sorted set of names of the other queries in the
	// repository whose destinations this query's latest version's SQL
	// reads from, as found by the SQL Dependency Extractor; references to
	// tables no query defines are not included. Populated by
	// repository.Load, not by the parser itself.
	Upstreams []string
	// DependencyWarning is set when SQL extraction could not parse this
	// query's SQL; Upstreams is then empty by definition, per §4.6.
	DependencyWarning error
}

// LatestVersion returns the Version with the greatest Version number, or
// the zero Version and false if Versions is empty.
func (q *Query) LatestVersion() (Version, bool) {
	if len(q.Versions) == 0 {
		return Version{}, false
	}
	best := q.Versions[0]
	for _, v := range q.Versions[1:] {
		if v.Version > best.Version {
			best = v
		}
	}
	return best, true
}
