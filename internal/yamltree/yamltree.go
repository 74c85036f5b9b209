// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package yamltree implements bqdrift's Preprocessor: it expands
// ${{ file: path }} includes and ${{ dotted.path }} references against a
// gopkg.in/yaml.v3 document tree, running to a fixed point before any
// typed parsing happens. Directives are data, not code: a cycle is a
// structural property of the tree, not a runtime condition, so both
// kinds of cycle are detected with simple stacks rather than a timeout.
package yamltree

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bqdrift/bqdrift/internal/derrors"
)

var directiveRE = regexp.MustCompile(`^\$\{\{\s*(.+?)\s*\}\}$`)

// Load reads path, expands every ${{ }} directive it contains (including
// transitively, through ${{ file: }} includes) to a fixed point, and
// returns the resulting document node together with the raw bytes of
// path as they were before any expansion (the input to yaml_checksum).
func Load(path string) (*yaml.Node, []byte, error) {
	l := &loader{}
	return l.loadFile(path)
}

// loader tracks the stack of absolute paths currently being loaded, so a
// file that (transitively) includes itself is rejected rather than
// looping forever. It is shared across one top-level Load call.
type loader struct {
	stack []string
}

func (l *loader) push(abs string) (err error) {
	for _, p := range l.stack {
		if p == abs {
			return fmt.Errorf("%s: %w", abs, derrors.CircularInclude)
		}
	}
	l.stack = append(l.stack, abs)
	return nil
}

func (l *loader) pop() {
	l.stack = l.stack[:len(l.stack)-1]
}

func (l *loader) loadFile(path string) (_ *yaml.Node, raw []byte, err error) {
	defer derrors.Wrap(&err, "yamltree.Load(%s)", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	if err := l.push(abs); err != nil {
		return nil, nil, err
	}
	defer l.pop()

	raw, err = os.ReadFile(abs)
	if err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, derrors.LoadError)
	}

	if !isYAMLPath(abs) {
		// A non-YAML include (typically .sql) becomes a bare scalar string.
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(raw)}, raw, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, derrors.LoadError)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, raw, nil
	}
	root := doc.Content[0]

	fc := &fileContext{
		loader:    l,
		dir:       filepath.Dir(abs),
		root:      root,
		resolving: map[string]bool{},
		resolved:  map[string]*yaml.Node{},
	}
	if err := fc.resolve(root); err != nil {
		return nil, nil, err
	}
	return root, raw, nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// fileContext resolves directives within one YAML document: path
// references are demand-driven and memoized against this document's root,
// matching the spec's "same YAML document" scoping.
type fileContext struct {
	loader    *loader
	dir       string
	root      *yaml.Node
	resolving map[string]bool
	resolved  map[string]*yaml.Node
}

// resolve walks n in place, replacing every directive scalar it (or its
// descendants) contains.
func (c *fileContext) resolve(n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c2 := range n.Content {
			if err := c.resolve(c2); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			if err := c.resolveChild(n, i); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for i := range n.Content {
			if err := c.resolveChild(n, i); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		return c.resolveScalarInPlace(n)
	case yaml.AliasNode:
		// yaml.v3 resolves aliases to their anchor's node already; nothing
		// further to expand structurally.
	}
	return nil
}

// resolveChild resolves parent.Content[i], which may replace that node's
// Kind/Value/Content (a directive can expand a scalar into a mapping or
// sequence), then recurses into the replacement.
func (c *fileContext) resolveChild(parent *yaml.Node, i int) error {
	child := parent.Content[i]
	if child.Kind == yaml.ScalarNode {
		if err := c.resolveScalarInPlace(child); err != nil {
			return err
		}
		return nil
	}
	return c.resolve(child)
}

// resolveScalarInPlace checks whether n is a ${{ ... }} directive and, if
// so, overwrites n's contents with the expansion.
func (c *fileContext) resolveScalarInPlace(n *yaml.Node) error {
	m := directiveRE.FindStringSubmatch(n.Value)
	if m == nil {
		return nil
	}
	inner := m[1]
	var (
		repl *yaml.Node
		err  error
	)
	if rest, ok := strings.CutPrefix(inner, "file:"); ok {
		repl, err = c.expandFile(strings.TrimSpace(rest))
	} else {
		repl, err = c.expandPath(inner)
	}
	if err != nil {
		return err
	}
	*n = *repl
	return nil
}

func (c *fileContext) expandFile(relPath string) (*yaml.Node, error) {
	full := relPath
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.dir, relPath)
	}
	node, _, err := c.loader.loadFile(full)
	return node, err
}

// expandPath resolves a dotted path reference against c.root, first
// resolving any directives within the referenced subtree (demand-driven),
// and memoizing the result.
func (c *fileContext) expandPath(path string) (*yaml.Node, error) {
	if cached, ok := c.resolved[path]; ok {
		return deepCopy(cached), nil
	}
	if c.resolving[path] {
		return nil, fmt.Errorf("%s: %w", path, derrors.CircularReference)
	}
	c.resolving[path] = true
	defer delete(c.resolving, path)

	target, err := navigate(c.root, path)
	if err != nil {
		return nil, err
	}
	if err := c.resolve(target); err != nil {
		return nil, err
	}
	result := deepCopy(target)
	c.resolved[path] = result
	return deepCopy(result), nil
}

// navigate walks dotted path segments through c.root. A numeric segment
// indexes a sequence (0-based); any other segment is a mapping key.
func navigate(root *yaml.Node, path string) (*yaml.Node, error) {
	n := root
	for _, seg := range strings.Split(path, ".") {
		switch n.Kind {
		case yaml.MappingNode:
			found := false
			for i := 0; i < len(n.Content); i += 2 {
				if n.Content[i].Value == seg {
					n = n.Content[i+1]
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("path reference %q: no key %q: %w", path, seg, derrors.LoadError)
			}
		case yaml.SequenceNode:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n.Content) {
				return nil, fmt.Errorf("path reference %q: bad index %q: %w", path, seg, derrors.LoadError)
			}
			n = n.Content[idx]
		default:
			return nil, fmt.Errorf("path reference %q: cannot descend into scalar at %q: %w", path, seg, derrors.LoadError)
		}
	}
	return n, nil
}

func deepCopy(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Content = nil
	for _, c := range n.Content {
		cp.Content = append(cp.Content, deepCopy(c))
	}
	return &cp
}
