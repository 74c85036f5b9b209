// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// Submission records one call made to a Fake.
type Submission struct {
	SQL     string // sqlTemplate with {destination} substituted
	Options SubmitOptions
}

// Fake is an in-memory warehouse.Client for tests: it records every
// submission and returns a scripted result or error, never touching a
// real warehouse.
type Fake struct {
	mu sync.Mutex

	// FailDestinations, if non-nil, names destinations whose Submit call
	// should fail with the given error.
	FailDestinations map[string]error

	// MeasureValues, if non-nil, maps a measurement SQL string verbatim to
	// the value Measure should return for it; an unlisted SQL returns 0.
	MeasureValues map[string]float64

	submissions []Submission
	measured    []string
	nextJobID   int
}

func (f *Fake) Submit(_ context.Context, sqlTemplate string, opts SubmitOptions) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sql := strings.ReplaceAll(sqlTemplate, "{destination}", opts.Destination)
	f.submissions = append(f.submissions, Submission{SQL: sql, Options: opts})

	if err, ok := f.FailDestinations[opts.Destination]; ok {
		return Result{}, fmt.Errorf("%v: %w", err, derrors.WarehouseError)
	}

	f.nextJobID++
	return Result{JobID: fmt.Sprintf("fake-job-%d", f.nextJobID), BytesProcessed: int64(len(sql))}, nil
}

func (f *Fake) Measure(_ context.Context, sql string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measured = append(f.measured, sql)
	return f.MeasureValues[sql], nil
}

// Submissions returns every call made to Submit so far, in call order.
func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// DestinationsSubmitted returns the sorted, de-duplicated set of
// destinations Submit was called with.
func (f *Fake) DestinationsSubmitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	for _, s := range f.submissions {
		seen[s.Options.Destination] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
