// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	bq "cloud.google.com/go/bigquery"

	bqint "github.com/bqdrift/bqdrift/internal/bigquery"
	"github.com/bqdrift/bqdrift/internal/config"
	"github.com/bqdrift/bqdrift/internal/derrors"
	"github.com/bqdrift/bqdrift/internal/warehouse"
)

// warehouseSession bundles the live connections a subcommand that talks
// to BigQuery needs.
type warehouseSession struct {
	Gateway    *bqint.Gateway
	Warehouse  warehouse.Client
}

func connect(ctx context.Context, cfg *config.Config) (*warehouseSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, derrors.InvalidArgument)
	}

	trackingClient, err := bqint.NewClientCreate(ctx, cfg.ProjectID, cfg.TrackingDataset)
	if err != nil {
		return nil, err
	}
	gw := bqint.NewGateway(trackingClient)
	if err := gw.EnsureTables(ctx); err != nil {
		return nil, err
	}

	rawClient, err := bq.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	wh := warehouse.NewBQClient(rawClient)

	return &warehouseSession{Gateway: gw, Warehouse: wh}, nil
}
