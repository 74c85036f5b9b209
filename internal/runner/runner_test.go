// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/warehouse"
)

func TestMeasurementSQLRowCount(t *testing.T) {
	check := definition.InvariantCheck{Kind: definition.RowCount}
	sql, err := measurementSQL(check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT COUNT(*) AS value FROM `d.t` WHERE partition_key = '2024-01-01'"
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
}

func TestMeasurementSQLUsesCheckSource(t *testing.T) {
	check := definition.InvariantCheck{Kind: definition.RowCount, Source: "other.table"}
	sql, err := measurementSQL(check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT COUNT(*) AS value FROM `other.table` WHERE partition_key = '2024-01-01'"
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
}

func TestMeasurementSQLNullPercentage(t *testing.T) {
	check := definition.InvariantCheck{Kind: definition.NullPercentage, Column: "c"}
	sql, err := measurementSQL(check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	want := "SELECT 100.0 * COUNTIF(c IS NULL) / NULLIF(COUNT(*), 0) AS value FROM `d.t` WHERE partition_key = '2024-01-01'"
	if sql != want {
		t.Fatalf("got %q, want %q", sql, want)
	}
}

func TestEvaluateCheckRowCountThreshold(t *testing.T) {
	min := int64(10)
	check := definition.InvariantCheck{Kind: definition.RowCount, Min: &min}
	sql, err := measurementSQL(check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}

	fake := &warehouse.Fake{MeasureValues: map[string]float64{sql: 5}}
	o := New(nil, fake)

	ok, measured, err := o.evaluateCheck(context.Background(), check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected failure, measured %v below min %d", measured, min)
	}

	fake.MeasureValues[sql] = 20
	ok, _, err = o.evaluateCheck(context.Background(), check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected success above min threshold")
	}
}

func TestRunInvariantsWarningDoesNotBlock(t *testing.T) {
	maxPct := 50.0
	invs := []definition.Invariant{
		{Name: "nulls", Severity: definition.SeverityWarning, Check: definition.InvariantCheck{
			Kind: definition.NullPercentage, Column: "c", MaxPercentage: &maxPct,
		}},
	}
	sql, err := measurementSQL(invs[0].Check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	fake := &warehouse.Fake{MeasureValues: map[string]float64{sql: 90}} // exceeds threshold
	o := New(nil, fake)

	if err := o.runInvariants(context.Background(), invs, "d.t", "2024-01-01"); err != nil {
		t.Fatalf("warning-severity failure should not block: %v", err)
	}
}

func TestRunInvariantsErrorBlocks(t *testing.T) {
	maxPct := 50.0
	invs := []definition.Invariant{
		{Name: "nulls", Severity: definition.SeverityError, Check: definition.InvariantCheck{
			Kind: definition.NullPercentage, Column: "c", MaxPercentage: &maxPct,
		}},
	}
	sql, err := measurementSQL(invs[0].Check, "d.t", "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	fake := &warehouse.Fake{MeasureValues: map[string]float64{sql: 90}}
	o := New(nil, fake)

	err = o.runInvariants(context.Background(), invs, "d.t", "2024-01-01")
	if !errors.Is(err, derrors.InvariantFailure) {
		t.Fatalf("expected InvariantFailure, got %v", err)
	}
}
