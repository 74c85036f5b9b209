// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bqdrift orchestrates versioned SQL jobs against BigQuery:
// validating a query repository, inspecting drift against what has
// already run, and executing the partitions that need to run again.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bqdrift:", err)
		os.Exit(exitCodeFor(err))
	}
}
