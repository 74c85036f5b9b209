// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"fmt"

	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/yamltree"
)

// Load reads the query file at path, expands its ${{ }} directives via
// yamltree, and parses the result into a Query. The returned Query's
// RawYAML is path's content as it was before expansion, the input to
// yaml_checksum.
func Load(path string) (q *Query, warnings []*ParseWarning, err error) {
	defer derrors.Wrap(&err, "definition.Load(%s)", path)

	doc, raw, err := yamltree.Load(path)
	if err != nil {
		return nil, nil, err
	}
	q, warnings, err = Parse(path, doc, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w", err)
	}
	return q, warnings, nil
}
