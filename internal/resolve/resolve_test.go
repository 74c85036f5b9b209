// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package resolve

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/derrors"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testQuery() *definition.Query {
	return &definition.Query{
		Name: "q",
		Versions: []definition.Version{
			{
				Version:       1,
				EffectiveFrom: date("2024-01-01"),
				Source:        "SELECT 1",
			},
			{
				Version:       2,
				EffectiveFrom: date("2024-06-01"),
				Source:        "SELECT 2",
				Revisions: []definition.Revision{
					{Revision: 1, EffectiveFrom: date("2024-07-01"), Source: "SELECT 2 -- fixed"},
				},
			},
		},
	}
}

func TestForSelectsVersionByPartitionDate(t *testing.T) {
	q := testQuery()

	res, err := For(q, date("2024-03-01"), date("2024-03-01"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Version.Version != 1 {
		t.Fatalf("expected version 1, got %d", res.Version.Version)
	}

	res, err = For(q, date("2024-06-15"), date("2024-06-15"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Version.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version.Version)
	}
}

func TestForSelectsRevisionByToday(t *testing.T) {
	q := testQuery()

	// Partition is old, but today is after the revision's effective date:
	// the bugfix applies even to a backfill of a historical partition.
	res, err := For(q, date("2024-06-10"), date("2024-08-01"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Version.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version.Version)
	}
	if res.SQLText != "SELECT 2 -- fixed" {
		t.Fatalf("expected revision SQL, got %q", res.SQLText)
	}

	// Today is before the revision kicks in: version source applies.
	res, err = For(q, date("2024-06-10"), date("2024-06-20"))
	if err != nil {
		t.Fatal(err)
	}
	if res.SQLText != "SELECT 2" {
		t.Fatalf("expected version SQL, got %q", res.SQLText)
	}
}

func TestForNoEffectiveVersion(t *testing.T) {
	q := testQuery()
	_, err := For(q, date("2023-01-01"), date("2023-01-01"))
	if !errors.Is(err, derrors.NoEffectiveVersion) {
		t.Fatalf("expected NoEffectiveVersion, got %v", err)
	}
}
