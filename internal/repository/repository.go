// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package repository loads a query definition tree into a validated
// Repository: a Query set plus its Dependency Graph. It is the single
// entry point every bqdrift subcommand uses to turn a directory of YAML
// on disk into the typed model the rest of the system operates on.
package repository

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bqdrift/bqdrift/internal/definition"
	"github.com/bqdrift/bqdrift/internal/depgraph"
	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/sqldeps"
)

// Repository is a fully loaded, validated set of query definitions.
type Repository struct {
	Queries  map[string]*definition.Query
	Graph    *depgraph.Graph
	Warnings []string
}

// ValidationError collects every problem found while loading a
// repository; validation does not stop at the first failure, so an
// operator sees every broken query in one pass.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d error(s):\n  %s", len(e.Errors), strings.Join(msgs, "\n  "))
}

func (e *ValidationError) Unwrap() error { return derrors.DefinitionError }

// Load walks root for *.yaml/*.yml query files (skipping files beginning
// with "_", a convention for shared includes that are not themselves
// query definitions), parses and validates each, builds the Dependency
// Graph from their extracted SQL references, and returns the result.
//
// Every query-level problem is collected rather than returned
// immediately; Load only returns early for a filesystem error walking
// root itself.
func Load(root string) (*Repository, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, "_") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(paths)

	var (
		verrs    []error
		warnings []string
		queries  = map[string]*definition.Query{}
	)

	for _, p := range paths {
		q, parseWarnings, err := definition.Load(p)
		if err != nil {
			verrs = append(verrs, err)
			continue
		}
		for _, w := range parseWarnings {
			warnings = append(warnings, w.String())
		}
		if existing, dup := queries[q.Name]; dup {
			verrs = append(verrs, fmt.Errorf("%s: duplicate query name %q, already defined in %s: %w",
				p, q.Name, existing.SourceFile, derrors.DefinitionError))
			continue
		}
		queries[q.Name] = q
	}

	if errs := checkUniqueDestinations(queries); len(errs) > 0 {
		verrs = append(verrs, errs...)
	}

	edges := map[string][]string{}
	for name, q := range queries {
		lv, ok := q.LatestVersion()
		if !ok {
			continue
		}
		ups, err := sqldeps.Extract(lv.Source, q.Destination.FullyQualified())
		if err != nil {
			q.DependencyWarning = err
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		q.Upstreams = resolveUpstreamNames(ups, queries)
		edges[name] = q.Upstreams
	}

	graph := depgraph.New(edges)
	if _, err := graph.TopologicalOrder(); err != nil {
		verrs = append(verrs, err)
	}

	if len(verrs) > 0 {
		return nil, &ValidationError{Errors: verrs}
	}

	return &Repository{Queries: queries, Graph: graph, Warnings: warnings}, nil
}

// resolveUpstreamNames maps "dataset.table" references to the query name
// that owns that destination, dropping references to tables no query in
// this repository defines (an external or raw source table).
func resolveUpstreamNames(destRefs []string, queries map[string]*definition.Query) []string {
	byDest := map[string]string{}
	for name, q := range queries {
		byDest[q.Destination.FullyQualified()] = name
	}
	var out []string
	for _, ref := range destRefs {
		if name, ok := byDest[ref]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func checkUniqueDestinations(queries map[string]*definition.Query) []error {
	byDest := map[string]string{}
	var errs []error
	names := make([]string, 0, len(queries))
	for n := range queries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		q := queries[n]
		fq := q.Destination.FullyQualified()
		if other, dup := byDest[fq]; dup {
			errs = append(errs, fmt.Errorf("%s and %s both declare destination %q: %w", n, other, fq, derrors.DefinitionError))
			continue
		}
		byDest[fq] = n
	}
	return errs
}
