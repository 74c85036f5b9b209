// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bigquery

import "testing"

func TestEncodeDecodeUpstreamStatesRoundTrip(t *testing.T) {
	m := map[string]string{"upstream_a": "abc123", "upstream_b": "def456"}
	encoded := EncodeUpstreamStates(m)
	got := DecodeUpstreamStates(encoded)
	if len(got) != len(m) {
		t.Fatalf("got %v, want %v", got, m)
	}
	for k, v := range m {
		if got[k] != v {
			t.Fatalf("key %q: got %q, want %q", k, got[k], v)
		}
	}
}

func TestEncodeUpstreamStatesEmpty(t *testing.T) {
	if got := EncodeUpstreamStates(nil); got != "{}" {
		t.Fatalf("got %q, want {}", got)
	}
	if got := EncodeUpstreamStates(map[string]string{}); got != "{}" {
		t.Fatalf("got %q, want {}", got)
	}
}

func TestDecodeUpstreamStatesTreatsMalformedAsNil(t *testing.T) {
	if got := DecodeUpstreamStates(""); got != nil {
		t.Fatalf("got %v, want nil for empty string", got)
	}
	if got := DecodeUpstreamStates("not json"); got != nil {
		t.Fatalf("got %v, want nil for malformed input", got)
	}
}
