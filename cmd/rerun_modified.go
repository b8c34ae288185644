// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func rerunModifiedCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rerun-modified [migration...]",
		Short: "Revert and re-apply migrations whose scripts changed on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, t, err := NewMitch(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			return m.RerunModified(ctx, args, yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Do not ask before re-running dependants")

	return cmd
}
