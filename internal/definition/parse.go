// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"fmt"

	"cloud.google.com/go/civil"
	"gopkg.in/yaml.v3"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// ParseError reports a required field missing or malformed in one query
// file.
type ParseError struct {
	Path  string // query YAML path
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Path, e.Field, e.Msg)
}

func (e *ParseError) Unwrap() error { return derrors.DefinitionError }

// ParseWarning reports a non-fatal oddity. The only one Parse reports is
// a version whose effective_from is earlier than a prior version's;
// unrecognized keys are ignored without a warning, and legacy spellings
// are accepted without one.
type ParseWarning struct {
	Path  string
	Field string
	Msg   string
}

func (w *ParseWarning) String() string {
	return fmt.Sprintf("%s: field %q: %s", w.Path, w.Field, w.Msg)
}

// legacyFieldAliases maps a deprecated key to the name Parse treats it as,
// per §4.2. Both spellings are accepted and no ParseWarning is collected
// for either; rawVersion.UnmarshalYAML performs the aliasing.
var legacyFieldAliases = map[string]string{
	"sql":           "source",
	"sql_revisions": "revisions",
	"effective":     "effective_from",
}

// rawQuery, rawVersion, and rawRevision mirror the YAML field names of a
// query file, after yamltree.Load has expanded ${{ }} directives but
// before legacy-alias normalization or typed conversion.
type rawQuery struct {
	Name        string       `yaml:"name"`
	Destination rawDest      `yaml:"destination"`
	Description string       `yaml:"description"`
	Owner       string       `yaml:"owner"`
	Tags        []string     `yaml:"tags"`
	Versions    []rawVersion `yaml:"versions"`
}

type rawDest struct {
	Dataset       string        `yaml:"dataset"`
	Table         string        `yaml:"table"`
	Partition     rawPartition  `yaml:"partition"`
	ClusterFields []string      `yaml:"cluster_fields"`
}

type rawPartition struct {
	Kind          string `yaml:"kind"`
	Granularity   string `yaml:"granularity"`
	Field         string `yaml:"field"`
	RangeStart    int64  `yaml:"range_start"`
	RangeEnd      int64  `yaml:"range_end"`
	RangeInterval int64  `yaml:"range_interval"`
}

type rawVersion struct {
	Version       int            `yaml:"version"`
	EffectiveFrom string         `yaml:"effective_from"`
	Source        string         `yaml:"source"`
	Schema        SchemaClause   `yaml:"schema"`
	Revisions     []rawRevision  `yaml:"revisions"`
	Invariants    InvariantsClause `yaml:"invariants"`

	// legacy spellings; UnmarshalYAML folds them into Source and
	// EffectiveFrom, so these are never set
	legacySource        string
	legacyEffectiveFrom string
}

type rawRevision struct {
	Revision      int     `yaml:"revision"`
	EffectiveFrom string  `yaml:"effective_from"`
	Source        string  `yaml:"source"`
	Reason        string  `yaml:"reason"`
	BackfillSince *string `yaml:"backfill_since"`
}

// UnmarshalYAML implements the legacy alias lookup for rawVersion: "sql"
// for "source" and "sql_revisions" for "revisions", and "effective" for
// "effective_from". It decodes into an intermediate map first so aliasing
// doesn't depend on field order.
func (v *rawVersion) UnmarshalYAML(n *yaml.Node) error {
	type plain rawVersion // avoid recursing into this method
	var m map[string]yaml.Node
	if err := n.Decode(&m); err != nil {
		return err
	}
	if alt, ok := m["sql"]; ok {
		if _, have := m["source"]; !have {
			m["source"] = alt
		}
	}
	if alt, ok := m["sql_revisions"]; ok {
		if _, have := m["revisions"]; !have {
			m["revisions"] = alt
		}
	}
	if alt, ok := m["effective"]; ok {
		if _, have := m["effective_from"]; !have {
			m["effective_from"] = alt
		}
	}
	rebuilt := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for k, vn := range m {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		vv := vn
		rebuilt.Content = append(rebuilt.Content, key, &vv)
	}
	var p plain
	if err := rebuilt.Decode(&p); err != nil {
		return err
	}
	*v = rawVersion(p)
	return nil
}

// Parse converts doc (a *yaml.Node produced by yamltree.Load) and its raw
// bytes into a Query, along with any non-fatal ParseWarnings. path is used
// only for error messages.
func Parse(path string, doc *yaml.Node, raw []byte) (*Query, []*ParseWarning, error) {
	var rq rawQuery
	if err := doc.Decode(&rq); err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", path, derrors.DefinitionError, err)
	}

	var warnings []*ParseWarning
	if rq.Name == "" {
		return nil, nil, &ParseError{path, "name", "required"}
	}
	if rq.Destination.Dataset == "" || rq.Destination.Table == "" {
		return nil, nil, &ParseError{path, "destination", "dataset and table are required"}
	}
	dest, err := parseDestination(path, rq.Destination)
	if err != nil {
		return nil, nil, err
	}
	if len(rq.Versions) == 0 {
		return nil, nil, &ParseError{path, "versions", "at least one version is required"}
	}

	q := &Query{
		Name:        rq.Name,
		Destination: dest,
		Description: rq.Description,
		Owner:       rq.Owner,
		Tags:        rq.Tags,
		SourceFile:  path,
		RawYAML:     raw,
	}

	var prevSchema []Field
	var prevInvariants InvariantSet
	for i, rv := range rq.Versions {
		v, vWarnings, err := parseVersion(path, i, rv, prevSchema, prevInvariants)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, vWarnings...)
		q.Versions = append(q.Versions, v)
		prevSchema = v.Schema
		prevInvariants = v.Invariants
	}

	structWarnings, err := validateQuery(path, q)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, structWarnings...)

	return q, warnings, nil
}

// validateQuery checks the repository-level invariants of §3 that span an
// entire Query rather than a single version: unique version/revision
// numbers, non-empty RECORD fields, partition/cluster fields present in
// schema, and (as a warning, not an error) weakly monotonic effective_from
// across versions.
func validateQuery(path string, q *Query) ([]*ParseWarning, error) {
	var warnings []*ParseWarning

	seenVersions := map[int]bool{}
	var prevEff civil.Date
	havePrev := false
	for i, v := range q.Versions {
		field := fmt.Sprintf("versions[%d]", i)
		if seenVersions[v.Version] {
			return nil, &ParseError{path, field + ".version", fmt.Sprintf("duplicate version number %d", v.Version)}
		}
		seenVersions[v.Version] = true

		if havePrev && v.EffectiveFrom.Before(prevEff) {
			warnings = append(warnings, &ParseWarning{path, field + ".effective_from",
				fmt.Sprintf("effective_from %s is earlier than a prior version's %s", v.EffectiveFrom, prevEff)})
		}
		prevEff, havePrev = v.EffectiveFrom, true

		seenRevisions := map[int]bool{}
		for j, r := range v.Revisions {
			if seenRevisions[r.Revision] {
				return nil, &ParseError{path, fmt.Sprintf("%s.revisions[%d].revision", field, j),
					fmt.Sprintf("duplicate revision number %d", r.Revision)}
			}
			seenRevisions[r.Revision] = true
		}

		if err := validateRecordFields(path, field+".schema", v.Schema); err != nil {
			return nil, err
		}

		p := q.Destination.Partition
		if (p.Kind == PartitionTime || p.Kind == PartitionRange) && p.Field != "" && !fieldExists(v.Schema, p.Field) {
			return nil, &ParseError{path, field + ".schema",
				fmt.Sprintf("partition field %q not found in schema", p.Field)}
		}
		for _, cf := range q.Destination.ClusterFields {
			if !fieldExists(v.Schema, cf) {
				return nil, &ParseError{path, field + ".schema",
					fmt.Sprintf("cluster field %q not found in schema", cf)}
			}
		}
	}
	return warnings, nil
}

// fieldExists reports whether name appears among fields' top-level names.
func fieldExists(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// validateRecordFields checks, recursively, that every RECORD-typed field
// declares at least one nested field.
func validateRecordFields(path, field string, fields []Field) error {
	for _, f := range fields {
		if f.Type == "RECORD" && len(f.Fields) == 0 {
			return &ParseError{path, field + "." + f.Name, "RECORD field requires non-empty nested fields"}
		}
		if err := validateRecordFields(path, field+"."+f.Name, f.Fields); err != nil {
			return err
		}
	}
	return nil
}

func parseDestination(path string, rd rawDest) (Destination, error) {
	p, err := parsePartition(path, rd.Partition)
	if err != nil {
		return Destination{}, err
	}
	return Destination{
		Dataset:       rd.Dataset,
		Table:         rd.Table,
		Partition:     p,
		ClusterFields: rd.ClusterFields,
	}, nil
}

func parsePartition(path string, rp rawPartition) (Partition, error) {
	if rp.Kind == "" {
		return Partition{}, &ParseError{path, "destination.partition.kind", "required"}
	}
	p := Partition{
		Kind:          PartitionKind(rp.Kind),
		Granularity:   Granularity(rp.Granularity),
		Field:         rp.Field,
		RangeStart:    rp.RangeStart,
		RangeEnd:      rp.RangeEnd,
		RangeInterval: rp.RangeInterval,
	}
	switch p.Kind {
	case PartitionTime:
		if p.Field == "" || p.Granularity == "" {
			return Partition{}, &ParseError{path, "destination.partition", "TIME partitions require field and granularity"}
		}
	case PartitionIngestionTime:
		if p.Granularity == "" {
			return Partition{}, &ParseError{path, "destination.partition", "INGESTION_TIME partitions require granularity"}
		}
	case PartitionRange:
		if p.RangeInterval == 0 {
			return Partition{}, &ParseError{path, "destination.partition", "RANGE partitions require a nonzero range_interval"}
		}
	default:
		return Partition{}, &ParseError{path, "destination.partition.kind", fmt.Sprintf("unknown kind %q", rp.Kind)}
	}
	return p, nil
}

func parseVersion(path string, idx int, rv rawVersion, prevSchema []Field, prevInvariants InvariantSet) (Version, []*ParseWarning, error) {
	field := fmt.Sprintf("versions[%d]", idx)
	if rv.EffectiveFrom == "" {
		return Version{}, nil, &ParseError{path, field + ".effective_from", "required"}
	}
	eff, err := civil.ParseDate(rv.EffectiveFrom)
	if err != nil {
		return Version{}, nil, &ParseError{path, field + ".effective_from", err.Error()}
	}
	if rv.Source == "" {
		return Version{}, nil, &ParseError{path, field + ".source", "required"}
	}

	schema, err := ResolveSchema(rv.Schema, prevSchema)
	if err != nil {
		return Version{}, nil, fmt.Errorf("%s: %s.schema: %w", path, field, err)
	}
	invariants, err := ResolveInvariants(rv.Invariants, prevInvariants)
	if err != nil {
		return Version{}, nil, fmt.Errorf("%s: %s.invariants: %w", path, field, err)
	}

	v := Version{
		Version:       rv.Version,
		EffectiveFrom: eff,
		Source:        rv.Source,
		Schema:        schema,
		Invariants:    invariants,
	}

	var warnings []*ParseWarning
	for j, rr := range rv.Revisions {
		rfield := fmt.Sprintf("%s.revisions[%d]", field, j)
		if rr.EffectiveFrom == "" {
			return Version{}, nil, &ParseError{path, rfield + ".effective_from", "required"}
		}
		reff, err := civil.ParseDate(rr.EffectiveFrom)
		if err != nil {
			return Version{}, nil, &ParseError{path, rfield + ".effective_from", err.Error()}
		}
		if rr.Source == "" {
			return Version{}, nil, &ParseError{path, rfield + ".source", "required"}
		}
		var backfillSince *civil.Date
		if rr.BackfillSince != nil {
			d, err := civil.ParseDate(*rr.BackfillSince)
			if err != nil {
				return Version{}, nil, &ParseError{path, rfield + ".backfill_since", err.Error()}
			}
			backfillSince = &d
		}
		v.Revisions = append(v.Revisions, Revision{
			Revision:      rr.Revision,
			EffectiveFrom: reff,
			Source:        rr.Source,
			Reason:        rr.Reason,
			BackfillSince: backfillSince,
		})
	}

	return v, warnings, nil
}
