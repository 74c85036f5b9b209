// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestValidateRequiresProjectQueriesAndDataset(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error on empty config")
	}
	c.ProjectID = "proj"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error without queries dir")
	}
	c.QueriesDir = "./queries"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error with dataset still 'disable'")
	}
	c.TrackingDataset = "tracking"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestGetEnvFallback(t *testing.T) {
	if got := GetEnv("BQDRIFT_DOES_NOT_EXIST", "fallback"); got != "fallback" {
		t.Fatalf("got %q, want fallback", got)
	}
}

func TestGetEnvIntFallsBackOnBadValue(t *testing.T) {
	t.Setenv("BQDRIFT_TEST_INT", "not-a-number")
	if got := GetEnvInt("BQDRIFT_TEST_INT", "1", 99); got != 99 {
		t.Fatalf("got %d, want 99", got)
	}
}

func TestGetEnvIntParsesValue(t *testing.T) {
	t.Setenv("BQDRIFT_TEST_INT", "7")
	if got := GetEnvInt("BQDRIFT_TEST_INT", "1", 99); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestDumpWritesJSON(t *testing.T) {
	c := Default()
	c.ProjectID = "proj"
	var buf bytes.Buffer
	if err := c.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"ProjectID": "proj"`) {
		t.Fatalf("dump missing ProjectID: %s", buf.String())
	}
}
