// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/derrors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func basicQuery(name, table, source string) string {
	return `
name: ` + name + `
destination:
  dataset: analytics
  table: ` + table + `
  partition:
    kind: TIME
    granularity: DAY
    field: event_date
versions:
  - version: 1
    effective_from: "2024-01-01"
    source: "` + source + `"
    schema:
      - name: id
        type: STRING
        mode: REQUIRED
      - name: event_date
        type: DATE
        mode: REQUIRED
`
}

func TestLoadBuildsDependencyGraph(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "upstream.yaml", basicQuery("upstream", "upstream", "SELECT id FROM raw_events"))
	writeFile(t, dir, "downstream.yaml", basicQuery("downstream", "downstream", "SELECT id FROM analytics.upstream"))

	repo, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(repo.Queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(repo.Queries))
	}
	order, err := repo.Graph.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	if order[0] != "upstream" || order[1] != "downstream" {
		t.Fatalf("got order %v, want [upstream downstream]", order)
	}
}

func TestLoadSkipsUnderscorePrefixedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "_shared.yaml", "not a query at all: [[[")
	writeFile(t, dir, "q.yaml", basicQuery("q", "q", "SELECT 1"))

	repo, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.Queries["q"]; !ok {
		t.Fatal("expected query q to be loaded")
	}
}

func TestLoadCollectsDuplicateNameAsValidationError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", basicQuery("dup", "table_a", "SELECT 1"))
	writeFile(t, dir, "b.yaml", basicQuery("dup", "table_b", "SELECT 1"))

	_, err := Load(dir)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !errors.Is(err, derrors.DefinitionError) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
}

func TestLoadCollectsDuplicateDestinationAsValidationError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", basicQuery("query_a", "same_table", "SELECT 1"))
	writeFile(t, dir, "b.yaml", basicQuery("query_b", "same_table", "SELECT 1"))

	_, err := Load(dir)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestLoadDetectsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", basicQuery("a", "a", "SELECT 1 FROM analytics.b"))
	writeFile(t, dir, "b.yaml", basicQuery("b", "b", "SELECT 1 FROM analytics.a"))

	_, err := Load(dir)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	found := false
	for _, e := range verr.Errors {
		if errors.Is(e, derrors.GraphCycle) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a GraphCycle among errors, got %v", verr.Errors)
	}
}

func TestResolveUpstreamNamesDropsExternalReferences(t *testing.T) {
	queries := map[string]*definition.Query{
		"a": {Name: "a", Destination: definition.Destination{Dataset: "analytics", Table: "a"}},
	}
	got := resolveUpstreamNames([]string{"analytics.a", "raw.external_source"}, queries)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
}

func TestLoadWithMalformedQueryCollectsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "name: bad\nversions: not-a-list\n")

	_, err := Load(dir)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}
