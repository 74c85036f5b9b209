// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqldeps extracts a query's upstream table references from its
// resolved SQL text, for use by the Dependency Graph. Per §4.6 of the
// specification, a SQL the extractor cannot parse is never a hard
// failure: the caller downgrades derrors.SQLParseFailed to a validation
// warning and treats the query as having no upstreams.
package sqldeps

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

// cteRE recognizes `WITH name AS (` / `, name AS (` headers so their
// names can be excluded from the upstream set. Extract hands the SQL to
// sqlparser unchanged; sqlparser's grammar predates CTEs, so a statement
// with a WITH clause does not parse and Extract returns
// derrors.SQLParseFailed for it.
var cteRE = regexp.MustCompile(`(?is)(?:^\s*WITH\s+|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\s*\(`)

// Extract parses sqlText and returns the sorted, de-duplicated set of
// "dataset.table" references it reads from, excluding selfDest (a query
// never depends on its own destination, even if it self-joins a prior
// partition) and any name the SQL itself defines as a CTE.
//
// A parse failure is returned wrapped in derrors.SQLParseFailed; callers
// must treat that as a warning, not a fatal error.
func Extract(sqlText, selfDest string) (_ []string, err error) {
	defer derrors.Wrap(&err, "sqldeps.Extract")

	ctes := cteNames(sqlText)

	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.SQLParseFailed)
	}

	seen := map[string]bool{}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		tn, ok := aliased.Expr.(sqlparser.TableName)
		if !ok {
			return true, nil
		}
		name := tableRefName(tn)
		if name == "" || ctes[strings.ToLower(name)] {
			return true, nil
		}
		seen[name] = true
		return true, nil
	}, stmt)

	delete(seen, selfDest)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// tableRefName renders a sqlparser.TableName as "qualifier.table" when a
// qualifier is present ("dataset.table", matching how destinations are
// identified elsewhere in bqdrift), or as the bare table name otherwise.
func tableRefName(tn sqlparser.TableName) string {
	name := tn.Name.String()
	if name == "" {
		return ""
	}
	if q := tn.Qualifier.String(); q != "" {
		return q + "." + name
	}
	return name
}

func cteNames(sqlText string) map[string]bool {
	names := map[string]bool{}
	for _, m := range cteRE.FindAllStringSubmatch(sqlText, -1) {
		names[strings.ToLower(m[1])] = true
	}
	return names
}
