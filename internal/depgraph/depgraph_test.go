// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package depgraph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

func TestTopologicalOrder(t *testing.T) {
	// c depends on b, b depends on a.
	g := New(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})
	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Fatalf("order violates dependencies: %v", order)
	}
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	g := New(map[string][]string{
		"x": nil,
		"y": nil,
		"z": nil,
	})
	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(order, []string{"x", "y", "z"}) {
		t.Fatalf("expected lexicographic tie-break, got %v", order)
	}
}

func TestCycleDetected(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	_, err := g.TopologicalOrder()
	if !errors.Is(err, derrors.GraphCycle) {
		t.Fatalf("expected GraphCycle, got %v", err)
	}
}

func TestDownstreamClosure(t *testing.T) {
	// b and c depend on a; d depends on c.
	g := New(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"c"},
	})
	closure := g.DownstreamClosure([]string{"a"})
	want := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(closure, want) {
		t.Fatalf("DownstreamClosure(a) = %v, want %v", closure, want)
	}
}

func TestTopologicalLevels(t *testing.T) {
	g := New(map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	})
	levels, err := g.TopologicalLevels()
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if levels[0][0] != "a" || levels[1][0] != "b" || levels[2][0] != "c" {
		t.Fatalf("unexpected level assignment: %v", levels)
	}
}

func TestUpstreamAndDownstream(t *testing.T) {
	g := New(map[string][]string{
		"a": nil,
		"b": {"a"},
	})
	if got := g.Upstream("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("Upstream(b) = %v", got)
	}
	if got := g.Downstream("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("Downstream(a) = %v", got)
	}
}
