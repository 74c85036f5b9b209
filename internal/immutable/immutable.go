// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package immutable implements the Immutability Auditor: it checks that
// the SQL currently resolved for a (query, version, revision) matches
// what the state store recorded as having actually executed for that
// same tuple, since a version or revision's source must never change
// once partitions have run against it.
package immutable

import (
	"context"

	"github.com/bqdrift/bqdrift/internal/bigquery"
	"github.com/bqdrift/bqdrift/internal/derrors"
)

// Violation describes one (query, version, revision) whose currently
// resolved SQL no longer matches what was executed historically.
type Violation struct {
	Query            string
	Version          int
	Revision         int
	CurrentSQL       string
	ExecutedSQL      string // one of the historical values; Inconsistent lists the rest
	Inconsistent     []string
	AffectedPartitions int
}

// Auditor checks resolved sources against the tracking dataset's history.
type Auditor struct {
	gw *bigquery.Gateway
}

// New returns an Auditor reading through gw.
func New(gw *bigquery.Gateway) *Auditor {
	return &Auditor{gw: gw}
}

// Check compares currentSQL (the SQL that would execute today for
// (query, version, revision), as computed by the Version Resolver)
// against what the tracking dataset recorded for that same tuple. It
// returns a nil *Violation if the tuple has never executed, or if every
// historical execution used exactly currentSQL.
func (a *Auditor) Check(ctx context.Context, query string, version, revision int, currentSQL string) (_ *Violation, err error) {
	defer derrors.Wrap(&err, "immutable.Check(%q, v%d, r%d)", query, version, revision)

	executed, err := a.gw.ExecutedSQLFor(ctx, query, version, revision)
	if err != nil {
		return nil, err
	}
	if len(executed) == 0 {
		return nil, nil
	}

	matchesCurrent := false
	var other []string
	for _, sql := range executed {
		if sql == currentSQL {
			matchesCurrent = true
		} else {
			other = append(other, sql)
		}
	}
	if matchesCurrent && len(other) == 0 {
		return nil, nil
	}

	executedSQL := executed[0]
	if matchesCurrent {
		// Every execution matches current except some that don't: report
		// one of the mismatching ones as the headline comparand.
		executedSQL = other[0]
	}

	count, err := a.affectedPartitionCount(ctx, query, version, revision)
	if err != nil {
		return nil, err
	}

	return &Violation{
		Query:              query,
		Version:            version,
		Revision:           revision,
		CurrentSQL:         currentSQL,
		ExecutedSQL:        executedSQL,
		Inconsistent:       other[1:],
		AffectedPartitions: count,
	}, nil
}

func (a *Auditor) affectedPartitionCount(ctx context.Context, query string, version, revision int) (int, error) {
	parts, err := a.gw.DistinctPartitionsFor(ctx, query, version, revision)
	if err != nil {
		return 0, err
	}
	return len(parts), nil
}
