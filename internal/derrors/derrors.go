// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package derrors defines internal error values to categorize the different
// types error semantics used across bqdrift's definition, resolution, and
// drift subsystems.
package derrors

import (
	"errors"
	"fmt"
	"runtime"

	"cloud.google.com/go/errorreporting"
)

//lint:file-ignore ST1012 prefixing error values with Err would stutter

var (
	// NotFound indicates that a requested query, partition, or state row
	// does not exist.
	NotFound = errors.New("not found")

	// InvalidArgument indicates malformed input (a partition key that
	// doesn't match the destination's grammar, an unknown query name).
	InvalidArgument = errors.New("invalid argument")

	// LoadError categorizes failures while reading and preprocessing the
	// YAML/SQL tree: missing files, circular includes, circular
	// references, disallowed field spellings.
	LoadError = errors.New("load error")

	// CircularInclude is returned when a ${{ file: }} directive re-enters
	// a file that is already being loaded.
	CircularInclude = errors.New("circular file include")

	// CircularReference is returned when a ${{ path }} directive forms a
	// cycle among path references within one document.
	CircularReference = errors.New("circular path reference")

	// DefinitionError categorizes violations of the repository-level
	// invariants in §3: duplicate version/revision numbers, missing
	// partition or cluster fields, empty RECORD field lists, duplicate
	// query names or destinations.
	DefinitionError = errors.New("definition error")

	// DependencyError categorizes failures building the dependency graph:
	// cycles, or (as a warning, not a hard failure) SQL the extractor
	// could not parse.
	DependencyError = errors.New("dependency error")

	// GraphCycle is returned when the dependency graph contains a cycle;
	// the error message names the cycle's member queries.
	GraphCycle = errors.New("dependency cycle")

	// SQLParseFailed indicates the SQL dependency extractor could not
	// parse a destination's SQL; per spec this is downgraded to a
	// validation warning with an empty upstream set, never propagated as
	// a hard failure.
	SQLParseFailed = errors.New("SQL parse failed")

	// ResolutionError categorizes failures selecting a version/revision
	// for a partition.
	ResolutionError = errors.New("resolution error")

	// NoEffectiveVersion is returned when no version's effective_from is
	// on or before the requested partition date.
	NoEffectiveVersion = errors.New("no effective version for partition")

	// StateError categorizes malformed or inconsistent state-store rows:
	// a recorded version/revision absent from current definitions,
	// malformed upstream_states JSON.
	StateError = errors.New("state error")

	// ImmutabilityViolation is returned when the SQL currently resolved
	// for a (query, version, revision) differs from what the state store
	// recorded as executed for that same (version, revision).
	ImmutabilityViolation = errors.New("immutability violation")

	// InvariantFailure is returned when a before/after data-quality check
	// fails at error severity.
	InvariantFailure = errors.New("invariant failure")

	// WarehouseError categorizes submission, job, timeout, and quota
	// failures from the warehouse client.
	WarehouseError = errors.New("warehouse error")

	// WarehouseTimeout is a distinguished WarehouseError kind for a
	// per-unit timeout being exceeded.
	WarehouseTimeout = errors.New("warehouse timeout")

	// InternalError categorizes assertion failures and other bugs that
	// should never be reachable given valid input.
	InternalError = errors.New("internal error")
)

// Wrap adds context to the error and allows
// unwrapping the result to recover the original error.
//
// Example:
//
//	defer derrors.Wrap(&err, "resolve(%s, %s)", query, partitionKey)
//
// See WrapStack for an equivalent function that also attaches a stack
// trace the first time the error is wrapped.
func Wrap(errp *error, format string, args ...interface{}) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
	}
}

// WrapStack is like Wrap, but adds a stack trace if there isn't one already.
func WrapStack(errp *error, format string, args ...interface{}) {
	if *errp != nil {
		if se := (*StackError)(nil); !errors.As(*errp, &se) {
			*errp = NewStackError(*errp)
		}
		Wrap(errp, format, args...)
	}
}

// StackError wraps an error and adds a stack trace.
type StackError struct {
	Stack []byte
	err   error
}

// NewStackError returns a StackError, capturing a stack trace.
func NewStackError(err error) *StackError {
	// Limit the stack trace to 16K. Same value used in the errorreporting client,
	// cloud.google.com/go@v0.66.0/errorreporting/errors.go.
	var buf [16 * 1024]byte
	n := runtime.Stack(buf[:], false)
	return &StackError{
		err:   err,
		Stack: buf[:n],
	}
}

func (e *StackError) Error() string {
	return e.err.Error() // ignore the stack
}

func (e *StackError) Unwrap() error {
	return e.err
}

// WrapAndReport calls Wrap followed by Report.
func WrapAndReport(errp *error, format string, args ...interface{}) {
	Wrap(errp, format, args...)
	if *errp != nil {
		Report(*errp)
	}
}

var repClient *errorreporting.Client

// SetReportingClient sets an errorreporting client, for use by Report.
func SetReportingClient(c *errorreporting.Client) {
	repClient = c
}

// Report uses the errorreporting API to report an error.
func Report(err error) {
	if repClient != nil {
		repClient.Report(errorreporting.Entry{Error: err})
	}
}

// CategorizeError returns the category for a given error, for use in
// history rows and operator-facing summaries.
func CategorizeError(err error) string {
	switch {
	case errors.Is(err, GraphCycle):
		return "DEPENDENCY - CYCLE"
	case errors.Is(err, SQLParseFailed):
		return "DEPENDENCY - SQL PARSE"
	case errors.Is(err, DependencyError):
		return "DEPENDENCY"
	case errors.Is(err, NoEffectiveVersion):
		return "RESOLUTION - NO EFFECTIVE VERSION"
	case errors.Is(err, ResolutionError):
		return "RESOLUTION"
	case errors.Is(err, CircularInclude):
		return "LOAD - CIRCULAR INCLUDE"
	case errors.Is(err, CircularReference):
		return "LOAD - CIRCULAR REFERENCE"
	case errors.Is(err, LoadError):
		return "LOAD"
	case errors.Is(err, DefinitionError):
		return "DEFINITION"
	case errors.Is(err, StateError):
		return "STATE"
	case errors.Is(err, ImmutabilityViolation):
		return "IMMUTABILITY"
	case errors.Is(err, InvariantFailure):
		return "INVARIANT"
	case errors.Is(err, WarehouseTimeout):
		return "WAREHOUSE - TIMEOUT"
	case errors.Is(err, WarehouseError):
		return "WAREHOUSE"
	case errors.Is(err, InternalError):
		return "INTERNAL"
	}
	return ""
}
