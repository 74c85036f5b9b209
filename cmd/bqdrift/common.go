// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/bqdrift/bqdrift/internal/definition"
)

// nowFunc is a seam for tests that need to pin "today"; production code
// always calls time.Now.
var nowFunc = time.Now

func parsePartitionKeyFlag(q *definition.Query, key string) (civil.Date, error) {
	val, err := definition.ParsePartitionKey(q.Destination.Partition, key)
	if err != nil {
		return civil.Date{}, err
	}
	return val.CivilDate(), nil
}
