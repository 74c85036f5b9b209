// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package yamltree

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsFileInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "query.sql", "SELECT 1")
	main := writeFile(t, dir, "main.yaml", "name: q\nsource: '${{ file: query.sql }}'\n")

	root, raw, err := Load(main)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw bytes")
	}

	var m map[string]string
	if err := root.Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["source"] != "SELECT 1" {
		t.Fatalf("got %q, want %q", m["source"], "SELECT 1")
	}
}

func TestLoadExpandsPathReference(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.yaml", "base:\n  field: hello\ncopy: ${{ base.field }}\n")

	root, _, err := Load(main)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := root.Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["copy"] != "hello" {
		t.Fatalf("got %v, want hello", m["copy"])
	}
}

func TestLoadExpandsSequenceIndex(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.yaml", "items:\n  - first\n  - second\ncopy: ${{ items.1 }}\n")

	root, _, err := Load(main)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	if err := root.Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m["copy"] != "second" {
		t.Fatalf("got %v, want second", m["copy"])
	}
}

func TestLoadCircularInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "x: '${{ file: b.yaml }}'\n")
	b := writeFile(t, dir, "b.yaml", "x: '${{ file: a.yaml }}'\n")

	_, _, err := Load(b)
	if !errors.Is(err, derrors.CircularInclude) {
		t.Fatalf("expected CircularInclude, got %v", err)
	}
}

func TestLoadCircularReference(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.yaml", "a: ${{ b }}\nb: ${{ a }}\n")

	_, _, err := Load(main)
	if !errors.Is(err, derrors.CircularReference) {
		t.Fatalf("expected CircularReference, got %v", err)
	}
}

func TestLoadNonYAMLIncludeIsScalar(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "body.sql", "SELECT * FROM t")
	main := writeFile(t, dir, "main.yaml", "source: '${{ file: body.sql }}'\n")

	root, _, err := Load(main)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(root.Content); i += 2 {
		if root.Content[i-1].Value == "source" {
			if root.Content[i].Kind != yaml.ScalarNode {
				t.Fatalf("expected scalar node for non-YAML include, got kind %v", root.Content[i].Kind)
			}
		}
	}
}
