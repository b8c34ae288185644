// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func downCmd() *cobra.Command {
	var yes bool
	var prune bool

	cmd := &cobra.Command{
		Use:   "down <migration>...",
		Short: "Revert migrations and their dependants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, t, err := NewMitch(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			return m.Down(ctx, args, yes, prune)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Do not ask before reverting dependants")
	cmd.Flags().BoolVar(&prune, "prune", false, "Prune stale dependencies afterwards")

	return cmd
}
