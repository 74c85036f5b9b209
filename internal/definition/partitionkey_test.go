// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []struct {
		p   Partition
		key string
	}{
		{Partition{Kind: PartitionTime, Granularity: Hour}, "2024-03-15T08"},
		{Partition{Kind: PartitionTime, Granularity: Day}, "2024-03-15"},
		{Partition{Kind: PartitionTime, Granularity: Month}, "2024-03"},
		{Partition{Kind: PartitionTime, Granularity: Year}, "2024"},
		{Partition{Kind: PartitionRange}, "42"},
	}
	for _, c := range cases {
		v, err := ParsePartitionKey(c.p, c.key)
		if err != nil {
			t.Fatalf("%v: %v", c.key, err)
		}
		got := FormatPartitionKey(c.p, v)
		if got != c.key {
			t.Fatalf("round trip %q -> %q", c.key, got)
		}
	}
}

func TestParsePartitionKeyRejectsBadRange(t *testing.T) {
	_, err := ParsePartitionKey(Partition{Kind: PartitionRange}, "not-a-number")
	if err == nil {
		t.Fatal("expected error for non-numeric RANGE key")
	}
}

func TestParsePartitionKeyRejectsMismatchedGranularity(t *testing.T) {
	_, err := ParsePartitionKey(Partition{Kind: PartitionTime, Granularity: Day}, "2024-03")
	if err == nil {
		t.Fatal("expected error for MONTH-shaped key against a DAY partition")
	}
}

func TestTruncateToGranularity(t *testing.T) {
	v, err := ParsePartitionKey(Partition{Kind: PartitionTime, Granularity: Day}, "2024-03-15")
	if err != nil {
		t.Fatal(err)
	}
	truncated := TruncateToGranularity(Month, v.Time)
	got := FormatPartitionKey(Partition{Kind: PartitionTime, Granularity: Month}, PartitionValue{Time: truncated})
	if got != "2024-03" {
		t.Fatalf("got %q, want 2024-03", got)
	}
}
