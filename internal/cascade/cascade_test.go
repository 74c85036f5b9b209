// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cascade

import (
	"testing"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/depgraph"
)

func dayQuery(name string) *definition.Query {
	return &definition.Query{
		Name: name,
		Destination: definition.Destination{
			Dataset: "d", Table: name,
			Partition: definition.Partition{Kind: definition.PartitionTime, Granularity: definition.Day, Field: "ts"},
		},
	}
}

func monthQuery(name string) *definition.Query {
	return &definition.Query{
		Name: name,
		Destination: definition.Destination{
			Dataset: "d", Table: name,
			Partition: definition.Partition{Kind: definition.PartitionTime, Granularity: definition.Month, Field: "ts"},
		},
	}
}

func TestBuildExpandsDownstream(t *testing.T) {
	// b depends on a.
	g := depgraph.New(map[string][]string{"a": nil, "b": {"a"}})
	queries := map[string]*definition.Query{"a": dayQuery("a"), "b": dayQuery("b")}

	plan, err := Build(g, queries, []Seed{{Query: "a", PartitionKey: "2024-01-01"}})
	if err != nil {
		t.Fatal(err)
	}

	var units []Unit
	for _, grp := range plan.Groups {
		units = append(units, grp.Units...)
	}
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d: %+v", len(units), units)
	}
}

func TestBuildMapsContainingPartition(t *testing.T) {
	// daily "a" feeds monthly "b": a's partition maps into b's containing month.
	g := depgraph.New(map[string][]string{"a": nil, "b": {"a"}})
	queries := map[string]*definition.Query{"a": dayQuery("a"), "b": monthQuery("b")}

	plan, err := Build(g, queries, []Seed{{Query: "a", PartitionKey: "2024-03-15"}})
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, grp := range plan.Groups {
		for _, u := range grp.Units {
			if u.Query == "b" {
				found = true
				if u.PartitionKey != "2024-03" {
					t.Fatalf("expected containing month 2024-03, got %s", u.PartitionKey)
				}
			}
		}
	}
	if !found {
		t.Fatal("downstream query b missing from plan")
	}
}

func TestBuildDropsRangeMapping(t *testing.T) {
	rangeQ := &definition.Query{
		Name: "r",
		Destination: definition.Destination{
			Dataset: "d", Table: "r",
			Partition: definition.Partition{Kind: definition.PartitionRange, RangeInterval: 1},
		},
	}
	g := depgraph.New(map[string][]string{"a": nil, "r": {"a"}})
	queries := map[string]*definition.Query{"a": dayQuery("a"), "r": rangeQ}

	plan, err := Build(g, queries, []Seed{{Query: "a", PartitionKey: "2024-01-01"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Dropped) != 1 {
		t.Fatalf("expected 1 dropped mapping, got %d: %+v", len(plan.Dropped), plan.Dropped)
	}
	for _, grp := range plan.Groups {
		for _, u := range grp.Units {
			if u.Query == "r" {
				t.Fatal("range-partitioned downstream should have been dropped, not planned")
			}
		}
	}
}

func TestBuildGroupsByLevel(t *testing.T) {
	g := depgraph.New(map[string][]string{"a": nil, "b": {"a"}, "c": {"b"}})
	queries := map[string]*definition.Query{"a": dayQuery("a"), "b": dayQuery("b"), "c": dayQuery("c")}

	plan, err := Build(g, queries, []Seed{{Query: "a", PartitionKey: "2024-01-01"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Groups) != 3 {
		t.Fatalf("expected 3 groups (one per level), got %d", len(plan.Groups))
	}
	if plan.Groups[0].Units[0].Query != "a" || plan.Groups[1].Units[0].Query != "b" || plan.Groups[2].Units[0].Query != "c" {
		t.Fatalf("groups not ordered by dependency level: %+v", plan.Groups)
	}
}
