// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SchemaClause is a version's `schema:` entry: either a complete literal
// field list (the first version must use this form) or a mutator that
// edits the previous version's resolved schema. Node shape selects which:
// a YAML sequence is a literal, a YAML mapping is a mutator.
type SchemaClause struct {
	Literal []Field
	Mutator *SchemaMutator
}

func (c *SchemaClause) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return nil // absent; inherit unchanged
	case yaml.SequenceNode:
		return n.Decode(&c.Literal)
	case yaml.MappingNode:
		c.Mutator = &SchemaMutator{}
		return n.Decode(c.Mutator)
	default:
		return fmt.Errorf("schema: expected a list or a mutator object, got %v", n.Tag)
	}
}

// SchemaMutator edits a previous version's schema in the fixed order
// remove, then modify, then add.
type SchemaMutator struct {
	Remove []string    `yaml:"remove"`
	Modify []FieldPatch `yaml:"modify"`
	Add    []Field     `yaml:"add"`
}

// FieldPatch overrides one named field of the base schema. Only
// non-nil/non-empty members are applied.
type FieldPatch struct {
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Mode        Mode    `yaml:"mode"`
	Description *string `yaml:"description"`
	Fields      []Field `yaml:"fields"`
}

// ResolveSchema applies clause against prev (the previous version's
// resolved schema, or nil for a query's first version) to produce the
// resolved schema for one version.
func ResolveSchema(clause SchemaClause, prev []Field) ([]Field, error) {
	if clause.Literal != nil {
		return clause.Literal, nil
	}
	if clause.Mutator == nil {
		if prev == nil {
			return nil, fmt.Errorf("first version must declare a literal schema")
		}
		return prev, nil
	}
	if prev == nil {
		return nil, fmt.Errorf("a schema mutator requires a previous version to mutate")
	}

	working := append([]Field(nil), prev...)
	for _, name := range clause.Mutator.Remove {
		idx := fieldIndex(working, name)
		if idx < 0 {
			return nil, fmt.Errorf("remove: field %q not found in previous schema", name)
		}
		working = append(working[:idx], working[idx+1:]...)
	}
	for _, patch := range clause.Mutator.Modify {
		idx := fieldIndex(working, patch.Name)
		if idx < 0 {
			return nil, fmt.Errorf("modify: field %q not found in previous schema", patch.Name)
		}
		working[idx] = applyFieldPatch(working[idx], patch)
	}
	working = append(working, clause.Mutator.Add...)
	return working, nil
}

func fieldIndex(fields []Field, name string) int {
	for i, f := range fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func applyFieldPatch(f Field, p FieldPatch) Field {
	if p.Type != "" {
		f.Type = p.Type
	}
	if p.Mode != "" {
		f.Mode = p.Mode
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Fields != nil {
		f.Fields = p.Fields
	}
	return f
}

// InvariantsClause is a version's `invariants:` entry: before/after
// phases, each independently a literal list or a mutator.
type InvariantsClause struct {
	Before InvariantPhaseClause `yaml:"before"`
	After  InvariantPhaseClause `yaml:"after"`
}

// InvariantPhaseClause is one phase's clause, shaped like SchemaClause.
type InvariantPhaseClause struct {
	Literal []rawInvariant
	Mutator *InvariantPhaseMutator
}

func (c *InvariantPhaseClause) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.SequenceNode:
		return n.Decode(&c.Literal)
	case yaml.MappingNode:
		c.Mutator = &InvariantPhaseMutator{}
		return n.Decode(c.Mutator)
	default:
		return fmt.Errorf("invariants: expected a list or a mutator object, got %v", n.Tag)
	}
}

// InvariantPhaseMutator edits a previous version's invariant list for one
// phase, keyed by invariant name, in the fixed order remove, modify, add.
type InvariantPhaseMutator struct {
	Remove []string         `yaml:"remove"`
	Modify []InvariantPatch `yaml:"modify"`
	Add    []rawInvariant   `yaml:"add"`
}

// InvariantPatch overrides one named invariant of the base phase list.
type InvariantPatch struct {
	Name          string   `yaml:"name"`
	Description   *string  `yaml:"description"`
	Severity      *string  `yaml:"severity"`
	Kind          string   `yaml:"kind"`
	Min           *int64   `yaml:"min"`
	Max           *int64   `yaml:"max"`
	Source        *string  `yaml:"source"`
	Column        *string  `yaml:"column"`
	MaxPercentage *float64 `yaml:"max_percentage"`
	RangeMin      *float64 `yaml:"range_min"`
	RangeMax      *float64 `yaml:"range_max"`
}

// rawInvariant is the YAML shape of one invariant: name/description/
// severity plus the flattened fields of its check, disambiguated by an
// explicit "kind" rather than shape heuristics, since a wrong heuristic
// guess here would silently mis-check production data.
type rawInvariant struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Severity      string   `yaml:"severity"`
	Kind          string   `yaml:"kind"`
	Min           *int64   `yaml:"min"`
	Max           *int64   `yaml:"max"`
	Source        string   `yaml:"source"`
	Column        string   `yaml:"column"`
	MaxPercentage *float64 `yaml:"max_percentage"`
	RangeMin      *float64 `yaml:"range_min"`
	RangeMax      *float64 `yaml:"range_max"`
}

func (ri rawInvariant) resolve(phase Phase) (Invariant, error) {
	if ri.Name == "" {
		return Invariant{}, fmt.Errorf("invariant: name is required")
	}
	sev := Severity(ri.Severity)
	if sev == "" {
		sev = SeverityError
	}
	if sev != SeverityError && sev != SeverityWarning {
		return Invariant{}, fmt.Errorf("invariant %q: unknown severity %q", ri.Name, ri.Severity)
	}

	check := InvariantCheck{
		Kind:          CheckKind(ri.Kind),
		Min:           ri.Min,
		Max:           ri.Max,
		Source:        ri.Source,
		Column:        ri.Column,
		MaxPercentage: ri.MaxPercentage,
		RangeMin:      ri.RangeMin,
		RangeMax:      ri.RangeMax,
	}
	switch check.Kind {
	case RowCount:
		// Min and/or Max; Source optional.
	case NullPercentage:
		if check.Column == "" || check.MaxPercentage == nil {
			return Invariant{}, fmt.Errorf("invariant %q: null_percentage requires column and max_percentage", ri.Name)
		}
	case ValueRange:
		if check.Column == "" {
			return Invariant{}, fmt.Errorf("invariant %q: value_range requires column", ri.Name)
		}
	case DistinctCount:
		if check.Column == "" {
			return Invariant{}, fmt.Errorf("invariant %q: distinct_count requires column", ri.Name)
		}
	default:
		return Invariant{}, fmt.Errorf("invariant %q: unknown kind %q", ri.Name, ri.Kind)
	}

	return Invariant{
		Name:        ri.Name,
		Description: ri.Description,
		Severity:    sev,
		Phase:       phase,
		Check:       check,
	}, nil
}

// ResolveInvariants applies clause's before/after phases against prev to
// produce the resolved InvariantSet for one version.
func ResolveInvariants(clause InvariantsClause, prev InvariantSet) (InvariantSet, error) {
	before, err := resolvePhase(clause.Before, prev.Before, Before)
	if err != nil {
		return InvariantSet{}, fmt.Errorf("before: %w", err)
	}
	after, err := resolvePhase(clause.After, prev.After, After)
	if err != nil {
		return InvariantSet{}, fmt.Errorf("after: %w", err)
	}
	return InvariantSet{Before: before, After: after}, nil
}

func resolvePhase(clause InvariantPhaseClause, prev []Invariant, phase Phase) ([]Invariant, error) {
	if clause.Literal != nil {
		out := make([]Invariant, 0, len(clause.Literal))
		for _, ri := range clause.Literal {
			inv, err := ri.resolve(phase)
			if err != nil {
				return nil, err
			}
			out = append(out, inv)
		}
		return out, nil
	}
	if clause.Mutator == nil {
		return prev, nil
	}

	working := append([]Invariant(nil), prev...)
	for _, name := range clause.Mutator.Remove {
		idx := invariantIndex(working, name)
		if idx < 0 {
			return nil, fmt.Errorf("remove: invariant %q not found in previous version", name)
		}
		working = append(working[:idx], working[idx+1:]...)
	}
	for _, patch := range clause.Mutator.Modify {
		idx := invariantIndex(working, patch.Name)
		if idx < 0 {
			return nil, fmt.Errorf("modify: invariant %q not found in previous version", patch.Name)
		}
		working[idx] = applyInvariantPatch(working[idx], patch)
	}
	for _, ri := range clause.Mutator.Add {
		inv, err := ri.resolve(phase)
		if err != nil {
			return nil, err
		}
		working = append(working, inv)
	}
	return working, nil
}

func invariantIndex(invs []Invariant, name string) int {
	for i, inv := range invs {
		if inv.Name == name {
			return i
		}
	}
	return -1
}

func applyInvariantPatch(inv Invariant, p InvariantPatch) Invariant {
	if p.Description != nil {
		inv.Description = *p.Description
	}
	if p.Severity != nil {
		inv.Severity = Severity(*p.Severity)
	}
	if p.Kind != "" {
		inv.Check.Kind = CheckKind(p.Kind)
	}
	if p.Min != nil {
		inv.Check.Min = p.Min
	}
	if p.Max != nil {
		inv.Check.Max = p.Max
	}
	if p.Source != nil {
		inv.Check.Source = *p.Source
	}
	if p.Column != nil {
		inv.Check.Column = *p.Column
	}
	if p.MaxPercentage != nil {
		inv.Check.MaxPercentage = p.MaxPercentage
	}
	if p.RangeMin != nil {
		inv.Check.RangeMin = p.RangeMin
	}
	if p.RangeMax != nil {
		inv.Check.RangeMax = p.RangeMax
	}
	return inv
}
