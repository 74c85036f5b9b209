// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the tracking dataset's state and history tables if they don't already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := connect(ctx, flags.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracking dataset %s.%s ready\n", flags.cfg.ProjectID, flags.cfg.TrackingDataset)
			return nil
		},
	}
}
