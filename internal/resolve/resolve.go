// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package resolve implements bqdrift's Version Resolver: for a query and
// a target partition, it selects the effective Version and Revision and
// assembles the SQL, schema, and invariants that would run.
//
// The two selections are intentionally asymmetric: a Version is selected
// against the partition's own date, so a backfill re-runs the SQL that
// was historically correct for that partition; a Revision is selected
// against the current date, so a bugfix applies to every partition the
// moment it is merged, including ones being backfilled for a date long
// past.
package resolve

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/derrors"
)

// Resolved is the fully assembled source that would execute for one
// query at one partition.
type Resolved struct {
	Version    definition.Version
	Revision   definition.Revision // zero value if the version has none
	SQLText    string              // the revision's source if present, else the version's
	Schema     []definition.Field
	Invariants definition.InvariantSet
}

// For resolves q against partitionDate (the partition being computed, in
// the query's destination's own calendar) and today (wall-clock date, for
// revision selection). It returns derrors.NoEffectiveVersion if no
// version's effective_from is on or before partitionDate.
func For(q *definition.Query, partitionDate, today civil.Date) (Resolved, error) {
	v, ok := selectVersion(q, partitionDate)
	if !ok {
		return Resolved{}, fmt.Errorf("%s: no version effective on or before %s: %w", q.Name, partitionDate, derrors.NoEffectiveVersion)
	}

	r, hasRevision := selectRevision(v, today)

	sql := v.Source
	if hasRevision {
		sql = r.Source
	}

	return Resolved{
		Version:    v,
		Revision:   r,
		SQLText:    sql,
		Schema:     v.Schema,
		Invariants: v.Invariants,
	}, nil
}

// selectVersion returns the Version with the greatest EffectiveFrom that
// is <= partitionDate, breaking ties (which should not occur in a valid
// repository, since effective_from must be unique per query) by the
// greater Version number.
func selectVersion(q *definition.Query, partitionDate civil.Date) (definition.Version, bool) {
	var (
		best  definition.Version
		found bool
	)
	for _, v := range q.Versions {
		if v.EffectiveFrom.After(partitionDate) {
			continue
		}
		if !found ||
			v.EffectiveFrom.After(best.EffectiveFrom) ||
			(v.EffectiveFrom == best.EffectiveFrom && v.Version > best.Version) {
			best = v
			found = true
		}
	}
	return best, found
}

// selectRevision returns the Revision of v with the greatest
// EffectiveFrom that is <= today, or the zero Revision and false if v has
// none or none is yet effective.
func selectRevision(v definition.Version, today civil.Date) (definition.Revision, bool) {
	var (
		best  definition.Revision
		found bool
	)
	for _, r := range v.Revisions {
		if r.EffectiveFrom.After(today) {
			continue
		}
		if !found || r.EffectiveFrom.After(best.EffectiveFrom) || (r.EffectiveFrom == best.EffectiveFrom && r.Revision > best.Revision) {
			best = r
			found = true
		}
	}
	return best, found
}
