// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package drift

import (
	"testing"
	"time"

	bqint "github.com/bqdrift/bqdrift/internal/bigquery"
)

func TestClassifyNeverRun(t *testing.T) {
	got := Classify(CurrentSource{Version: 1, SQLChecksum: "x"}, nil)
	if got.Status != NeverRun {
		t.Fatalf("got %v, want NeverRun", got.Status)
	}
}

func TestClassifyCurrent(t *testing.T) {
	prior := &bqint.StateRecord{Status: "SUCCESS", Version: 1, SQLChecksum: "x", SchemaChecksum: "y"}
	cur := CurrentSource{Version: 1, SQLChecksum: "x", SchemaChecksum: "y"}
	got := Classify(cur, prior)
	if got.Status != Current {
		t.Fatalf("got %v, want Current", got.Status)
	}
}

func TestClassifyFailed(t *testing.T) {
	prior := &bqint.StateRecord{Status: "FAILED", Version: 1, SQLChecksum: "x", SchemaChecksum: "y"}
	cur := CurrentSource{Version: 1, SQLChecksum: "x", SchemaChecksum: "y"}
	got := Classify(cur, prior)
	if got.Status != Failed {
		t.Fatalf("got %v, want Failed", got.Status)
	}
}

func TestClassifyPriorityOrder(t *testing.T) {
	// Failed beats version upgraded beats sql changed.
	prior := &bqint.StateRecord{Status: "FAILED", Version: 1, SQLChecksum: "old", SchemaChecksum: "y"}
	cur := CurrentSource{Version: 2, SQLChecksum: "new", SchemaChecksum: "y"}
	got := Classify(cur, prior)
	if got.Status != Failed {
		t.Fatalf("got %v, want Failed (highest priority)", got.Status)
	}
	if got.Flags&FlagVersionUpgraded == 0 || got.Flags&FlagSQLChanged == 0 {
		t.Fatalf("expected both flags set, got %b", got.Flags)
	}
}

func TestClassifySQLAndSchemaChangedResolvesToSchema(t *testing.T) {
	prior := &bqint.StateRecord{Status: "SUCCESS", Version: 1, SQLChecksum: "old", SchemaChecksum: "old-schema"}
	cur := CurrentSource{Version: 1, SQLChecksum: "new", SchemaChecksum: "new-schema"}
	got := Classify(cur, prior)
	if got.Status != SchemaChanged {
		t.Fatalf("got %v, want SchemaChanged", got.Status)
	}
}

func TestClassifyUpstreamChanged(t *testing.T) {
	recorded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rerun := recorded.Add(24 * time.Hour)
	prior := &bqint.StateRecord{
		Status: "SUCCESS", Version: 1, SQLChecksum: "x", SchemaChecksum: "y",
		UpstreamStates: bqint.EncodeUpstreamStates(map[string]string{"up": recorded.Format(time.RFC3339Nano)}),
	}
	cur := CurrentSource{
		Version: 1, SQLChecksum: "x", SchemaChecksum: "y",
		UpstreamLatestExecutions: map[string]time.Time{"up": rerun},
	}
	got := Classify(cur, prior)
	if got.Status != UpstreamChanged {
		t.Fatalf("got %v, want UpstreamChanged", got.Status)
	}
}

func TestClassifyUpstreamUnchangedWhenNotRerun(t *testing.T) {
	recorded := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prior := &bqint.StateRecord{
		Status: "SUCCESS", Version: 1, SQLChecksum: "x", SchemaChecksum: "y",
		UpstreamStates: bqint.EncodeUpstreamStates(map[string]string{"up": recorded.Format(time.RFC3339Nano)}),
	}
	cur := CurrentSource{
		Version: 1, SQLChecksum: "x", SchemaChecksum: "y",
		UpstreamLatestExecutions: map[string]time.Time{"up": recorded},
	}
	got := Classify(cur, prior)
	if got.Status != Current {
		t.Fatalf("got %v, want Current (upstream rerun timestamp unchanged)", got.Status)
	}
}
