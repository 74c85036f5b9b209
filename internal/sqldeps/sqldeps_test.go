// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqldeps

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

func TestExtractSimpleFrom(t *testing.T) {
	got, err := Extract("SELECT * FROM upstream_table", "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"upstream_table"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractExcludesSelfDest(t *testing.T) {
	got, err := Extract("SELECT * FROM self_table JOIN upstream_table ON 1=1", "self_table")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"upstream_table"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractDeduplicatesAndSorts(t *testing.T) {
	got, err := Extract("SELECT * FROM b_table UNION ALL SELECT * FROM a_table UNION ALL SELECT * FROM b_table", "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a_table", "b_table"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractExcludesCTENames(t *testing.T) {
	sql := "WITH recent AS (SELECT * FROM upstream_table) SELECT * FROM recent"
	got, err := Extract(sql, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"upstream_table"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractParseFailureWrapsSentinel(t *testing.T) {
	_, err := Extract("THIS IS NOT valid &&& SQL (((", "")
	if !errors.Is(err, derrors.SQLParseFailed) {
		t.Fatalf("expected SQLParseFailed, got %v", err)
	}
}
