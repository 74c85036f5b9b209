// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import "testing"

func TestResolveSchemaLiteralWins(t *testing.T) {
	lit := []Field{{Name: "a", Type: "STRING"}}
	prev := []Field{{Name: "b", Type: "INT64"}}
	got, err := ResolveSchema(SchemaClause{Literal: lit}, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("got %+v, want literal schema", got)
	}
}

func TestResolveSchemaFirstVersionRequiresLiteral(t *testing.T) {
	_, err := ResolveSchema(SchemaClause{}, nil)
	if err == nil {
		t.Fatal("expected error when first version has no literal schema")
	}
}

func TestResolveSchemaMutatorOrder(t *testing.T) {
	prev := []Field{
		{Name: "a", Type: "STRING"},
		{Name: "b", Type: "INT64"},
	}
	desc := "renamed"
	clause := SchemaClause{Mutator: &SchemaMutator{
		Remove: []string{"a"},
		Modify: []FieldPatch{{Name: "b", Description: &desc}},
		Add:    []Field{{Name: "c", Type: "BOOL"}},
	}}
	got, err := ResolveSchema(clause, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d fields, want 2: %+v", len(got), got)
	}
	if got[0].Name != "b" || got[0].Description != "renamed" {
		t.Fatalf("modify did not apply: %+v", got[0])
	}
	if got[1].Name != "c" {
		t.Fatalf("add did not apply: %+v", got[1])
	}
}

func TestResolveSchemaRemoveUnknownFieldErrors(t *testing.T) {
	prev := []Field{{Name: "a", Type: "STRING"}}
	clause := SchemaClause{Mutator: &SchemaMutator{Remove: []string{"missing"}}}
	if _, err := ResolveSchema(clause, prev); err == nil {
		t.Fatal("expected error removing unknown field")
	}
}

func TestResolveInvariantsInheritsWhenNoMutator(t *testing.T) {
	max := int64(100)
	prev := InvariantSet{Before: []Invariant{
		{Name: "row_count", Severity: SeverityError, Check: InvariantCheck{Kind: RowCount, Max: &max}},
	}}
	got, err := ResolveInvariants(InvariantsClause{}, prev)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Before) != 1 || got.Before[0].Name != "row_count" {
		t.Fatalf("expected inherited invariant, got %+v", got.Before)
	}
}

func TestResolveInvariantsMutatorModify(t *testing.T) {
	max := int64(100)
	newMax := int64(200)
	prev := InvariantSet{Before: []Invariant{
		{Name: "row_count", Severity: SeverityError, Check: InvariantCheck{Kind: RowCount, Max: &max}},
	}}
	clause := InvariantsClause{Before: InvariantPhaseClause{Mutator: &InvariantPhaseMutator{
		Modify: []InvariantPatch{{Name: "row_count", Max: &newMax}},
	}}}
	got, err := ResolveInvariants(clause, prev)
	if err != nil {
		t.Fatal(err)
	}
	if *got.Before[0].Check.Max != 200 {
		t.Fatalf("modify did not apply, got max=%v", *got.Before[0].Check.Max)
	}
}

func TestRawInvariantResolveRequiresKind(t *testing.T) {
	ri := rawInvariant{Name: "x"}
	if _, err := ri.resolve(Before); err == nil {
		t.Fatal("expected error for missing/unknown kind")
	}
}

func TestRawInvariantResolveNullPercentageRequiresColumn(t *testing.T) {
	pct := 5.0
	ri := rawInvariant{Name: "x", Kind: "null_percentage", MaxPercentage: &pct}
	if _, err := ri.resolve(Before); err == nil {
		t.Fatal("expected error for missing column")
	}
}

func TestRawInvariantResolveDefaultsToErrorSeverity(t *testing.T) {
	max := int64(1)
	ri := rawInvariant{Name: "x", Kind: "row_count", Max: &max}
	inv, err := ri.resolve(Before)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Severity != SeverityError {
		t.Fatalf("got severity %q, want error", inv.Severity)
	}
}
