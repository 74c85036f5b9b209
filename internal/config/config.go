// Copyright 2022 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config resolves bqdrift's shared configuration: the global
// flags every subcommand accepts (§6 of the specification) plus a
// handful of values that only make sense as environment variables.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
)

// Config holds configuration shared by every bqdrift subcommand.
type Config struct {
	// ProjectID is the GCP project that owns the destination tables.
	ProjectID string

	// TrackingDataset is the dataset holding _bqdrift_state and
	// _bqdrift_history.
	TrackingDataset string

	// QueriesDir is the root of the query definition repository.
	QueriesDir string

	// ScratchProject, if set, is the project scratch-mode executions
	// write to instead of production.
	ScratchProject string

	// ScratchTTLHours is how long a scratch table may live before it is
	// eligible for cleanup by `scratch promote`'s counterpart.
	ScratchTTLHours int

	// AllowSourceMutation permits `sync` to proceed despite immutability
	// violations, overwriting stored SQL for affected partitions.
	AllowSourceMutation bool

	// CascadeParallelism bounds how many queries at the same topological
	// level the Runner Orchestrator executes concurrently.
	CascadeParallelism int

	// ContinueOnError, when set, makes the orchestrator continue to the
	// next partition within a query after a failure instead of stopping.
	ContinueOnError bool

	// WarehouseTimeoutSeconds bounds how long a single execution unit may
	// run before it is treated as WarehouseTimeout.
	WarehouseTimeoutSeconds int

	// JSONLogs selects the JSON log handler over the line handler.
	JSONLogs bool
}

// Default returns a Config with bqdrift's documented defaults, before any
// flags are applied. CascadeParallelism and WarehouseTimeoutSeconds are
// already read from BQDRIFT_CASCADE_PARALLELISM and
// BQDRIFT_WAREHOUSE_TIMEOUT_SECONDS when those are set.
func Default() *Config {
	return &Config{
		TrackingDataset:         "disable",
		CascadeParallelism:      GetEnvInt("BQDRIFT_CASCADE_PARALLELISM", "4", 4),
		WarehouseTimeoutSeconds: GetEnvInt("BQDRIFT_WAREHOUSE_TIMEOUT_SECONDS", "600", 600),
	}
}

// Validate reports whether the config has enough information to run
// against a real warehouse (some subcommands, like `validate`, need
// neither ProjectID nor TrackingDataset and should not call this).
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("missing --project")
	}
	if c.QueriesDir == "" {
		return errors.New("missing --queries")
	}
	if c.TrackingDataset == "" || c.TrackingDataset == "disable" {
		return errors.New("missing --dataset")
	}
	return nil
}

// Dump writes the config as indented JSON, for `--dump-config`-style
// debugging.
func (c *Config) Dump(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(c)
}

// GetEnv looks up key in the environment, returning fallback if unset.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// GetEnvInt is GetEnv parsed as an int; errVal is used if parsing fails.
func GetEnvInt(key, fallback string, errVal int) int {
	v := GetEnv(key, fallback)
	i, err := strconv.Atoi(v)
	if err != nil {
		return errVal
	}
	return i
}
