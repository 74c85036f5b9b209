// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package job tracks progress of one sync/backfill invocation: a batch of
// plan units submitted to the Runner Orchestrator together.
package job

import "time"

// TriggeredBy identifies what initiated a job, mirroring
// HistoryRecord.TriggeredBy.
type TriggeredBy string

const (
	Manual   TriggeredBy = "manual"
	Run      TriggeredBy = "run"
	Sync     TriggeredBy = "sync"
	Backfill TriggeredBy = "backfill"
	Cascade  TriggeredBy = "cascade"
)

// A Job is the set of plan units submitted together by one CLI invocation.
type Job struct {
	ExecutedBy  string
	StartedAt   time.Time
	TriggeredBy TriggeredBy
	Canceled    bool // set on user interrupt; remaining units were not scheduled

	// Counts of units, updated as the orchestrator progresses.
	NumEnqueued  int // total units in the plan
	NumStarted   int // attempted by the orchestrator, whatever the outcome
	NumSkipped   int // not run because the invocation's context was canceled
	NumFailed    int // failed at any step: resolution, an error-severity invariant, or execution
	NumSucceeded int
}

// New creates a Job for a plan of the given size.
func New(executedBy string, start time.Time, triggeredBy TriggeredBy, numUnits int) *Job {
	return &Job{
		ExecutedBy:  executedBy,
		StartedAt:   start,
		TriggeredBy: triggeredBy,
		NumEnqueued: numUnits,
	}
}

const startTimeFormat = "060102-150405" // YYMMDD-HHMMSS, UTC

// ID returns a human-readable, roughly-unique identifier for the job,
// suitable for correlating log lines across a run.
func (j *Job) ID() string {
	return j.ExecutedBy + "-" + j.StartedAt.In(time.UTC).Format(startTimeFormat)
}

// Done reports whether every enqueued unit has reached a terminal outcome.
func (j *Job) Done() bool {
	return j.NumStarted+j.NumSkipped >= j.NumEnqueued
}
