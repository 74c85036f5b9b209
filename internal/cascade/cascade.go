// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cascade implements the Cascade Planner: given a set of
// partitions that drifted, it expands that seed set across the
// downstream closure of the Dependency Graph and produces an ordered
// execution plan.
package cascade

import (
	"fmt"
	"sort"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/depgraph"
)

// Unit is one (query, partition) the plan must execute.
type Unit struct {
	Query        string
	PartitionKey string
}

// Group is every Unit at one topological level; the Runner Orchestrator
// executes the queries within a Group concurrently (up to its configured
// parallelism) but never starts a Group before the previous one finishes.
type Group struct {
	Level int
	Units []Unit
}

// Plan is the Cascade Planner's output: ordered groups, each internally
// sorted by query then partition key for determinism.
type Plan struct {
	Groups []Group
	// Dropped records (query, seed partition key) pairs whose downstream
	// mapping was undefined and so were excluded from the plan, for
	// `sync --cascade` to report as warnings rather than silently skip.
	Dropped []DroppedMapping
}

// DroppedMapping names one partition that could not be mapped into a
// downstream query's partitioning scheme.
type DroppedMapping struct {
	UpstreamQuery    string
	UpstreamPartition string
	DownstreamQuery  string
	Reason           string
}

// Seed is one drifted partition the cascade starts from.
type Seed struct {
	Query        string
	PartitionKey string
}

// Build expands seeds across graph's downstream closure. queries supplies
// each query's Destination, needed to map one query's partition key into
// a downstream query's own partitioning scheme.
func Build(graph *depgraph.Graph, queries map[string]*definition.Query, seeds []Seed) (*Plan, error) {
	levels, err := graph.TopologicalLevels()
	if err != nil {
		return nil, err
	}
	levelOf := map[string]int{}
	for i, names := range levels {
		for _, n := range names {
			levelOf[n] = i
		}
	}

	// unitSet dedupes (query, partitionKey) across multiple seeds that map
	// to the same downstream partition.
	unitSet := map[string]map[string]bool{}
	addUnit := func(query, key string) {
		if unitSet[query] == nil {
			unitSet[query] = map[string]bool{}
		}
		unitSet[query][key] = true
	}

	plan := &Plan{}

	for _, seed := range seeds {
		addUnit(seed.Query, seed.PartitionKey)
		closure := graph.DownstreamClosure([]string{seed.Query})
		for _, downName := range closure {
			if downName == seed.Query {
				continue
			}
			downQ, ok := queries[downName]
			if !ok {
				continue // a downstream name with no local definition (external consumer)
			}
			upQ, ok := queries[seed.Query]
			if !ok {
				continue
			}
			mapped, reason, ok := mapPartition(upQ, seed.PartitionKey, downQ)
			if !ok {
				plan.Dropped = append(plan.Dropped, DroppedMapping{
					UpstreamQuery:     seed.Query,
					UpstreamPartition: seed.PartitionKey,
					DownstreamQuery:   downName,
					Reason:            reason,
				})
				continue
			}
			addUnit(downName, mapped)
		}
	}

	maxLevel := 0
	for q := range unitSet {
		if l := levelOf[q]; l > maxLevel {
			maxLevel = l
		}
	}
	groups := make([]Group, maxLevel+1)
	for i := range groups {
		groups[i].Level = i
	}
	for q, keys := range unitSet {
		l := levelOf[q]
		for k := range keys {
			groups[l].Units = append(groups[l].Units, Unit{Query: q, PartitionKey: k})
		}
	}
	for i := range groups {
		sort.Slice(groups[i].Units, func(a, b int) bool {
			if groups[i].Units[a].Query != groups[i].Units[b].Query {
				return groups[i].Units[a].Query < groups[i].Units[b].Query
			}
			return groups[i].Units[a].PartitionKey < groups[i].Units[b].PartitionKey
		})
	}
	// Drop every empty group (levels with no drifted units).
	var nonEmpty []Group
	for _, g := range groups {
		if len(g.Units) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	plan.Groups = nonEmpty

	return plan, nil
}

// mapPartition maps an upstream partition key into downQ's own
// partitioning scheme, per the "containing partition" rule: a TIME
// upstream maps onto a TIME (or INGESTION_TIME) downstream by truncating
// to the downstream's granularity. Any mapping involving a RANGE
// partition on either side is undefined and reported as dropped, since
// there is no general correspondence between a time bucket and a
// numeric range bucket.
func mapPartition(upQ *definition.Query, upKey string, downQ *definition.Query) (string, string, bool) {
	up := upQ.Destination.Partition
	down := downQ.Destination.Partition

	if up.Kind == definition.PartitionRange || down.Kind == definition.PartitionRange {
		return "", fmt.Sprintf("mapping a %s partition onto a %s partition is undefined", up.Kind, down.Kind), false
	}

	upVal, err := definition.ParsePartitionKey(up, upKey)
	if err != nil {
		return "", err.Error(), false
	}
	bucketStart := definition.TruncateToGranularity(down.Granularity, upVal.Time)
	downVal := definition.PartitionValue{Time: bucketStart}
	return definition.FormatPartitionKey(down, downVal), "", true
}
