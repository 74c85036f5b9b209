// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package warehouse

import (
	"context"
	"errors"
	"testing"
)

func TestFakeSubmitRecordsAndSubstitutes(t *testing.T) {
	f := &Fake{}
	_, err := f.Submit(context.Background(), "SELECT * FROM {destination}", SubmitOptions{Destination: "d.t"})
	if err != nil {
		t.Fatal(err)
	}
	subs := f.Submissions()
	if len(subs) != 1 || subs[0].SQL != "SELECT * FROM d.t" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
	if got := f.DestinationsSubmitted(); len(got) != 1 || got[0] != "d.t" {
		t.Fatalf("unexpected destinations: %v", got)
	}
}

func TestFakeSubmitFailsScripted(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	f := &Fake{FailDestinations: map[string]error{"d.t": wantErr}}
	_, err := f.Submit(context.Background(), "SELECT 1", SubmitOptions{Destination: "d.t"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFakeMeasureReturnsScriptedValue(t *testing.T) {
	f := &Fake{MeasureValues: map[string]float64{"SELECT COUNT(*) AS value": 42}}
	v, err := f.Measure(context.Background(), "SELECT COUNT(*) AS value")
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %v, want 42", v)
	}

	// Unlisted SQL defaults to zero rather than erroring.
	v, err = f.Measure(context.Background(), "SELECT COUNT(*) AS value FROM other")
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Fatalf("got %v, want 0", v)
	}
}
