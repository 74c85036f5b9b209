// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bqdrift/bqdrift/internal/immutable"
	"github.com/bqdrift/bqdrift/internal/repository"
)

func newAuditCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [query...]",
		Short: "Check every version/revision's currently resolved SQL against its execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := repository.Load(flags.cfg.QueriesDir)
			if err != nil {
				return err
			}
			sess, err := connect(ctx, flags.cfg)
			if err != nil {
				return err
			}
			auditor := immutable.New(sess.Gateway)

			names := args
			if len(names) == 0 {
				for n := range repo.Queries {
					names = append(names, n)
				}
			}
			sort.Strings(names)

			anyViolation := false
			for _, name := range names {
				q, ok := repo.Queries[name]
				if !ok {
					return fmt.Errorf("unknown query %q", name)
				}
				for _, v := range q.Versions {
					violation, err := auditor.Check(ctx, q.Name, v.Version, 0, v.Source)
					if err != nil {
						return err
					}
					if violation != nil {
						anyViolation = true
						reportViolation(cmd, violation.Query, violation.Version, violation.Revision, violation)
					}
					for _, r := range v.Revisions {
						violation, err := auditor.Check(ctx, q.Name, v.Version, r.Revision, r.Source)
						if err != nil {
							return err
						}
						if violation != nil {
							anyViolation = true
							reportViolation(cmd, q.Name, v.Version, r.Revision, violation)
						}
					}
				}
			}
			if anyViolation {
				return errDriftFound
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no immutability violations")
			return nil
		},
	}
}

func reportViolation(cmd *cobra.Command, query string, version, revision int, v *immutable.Violation) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s v%d.r%d: currently resolved SQL differs from %d historically executed value(s) across %d partition(s)\n",
		query, version, revision, len(v.Inconsistent)+1, v.AffectedPartitions)
}
