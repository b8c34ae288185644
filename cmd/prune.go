// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	var exceptIDs []string
	var exceptFiles []string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Revert installed migrations that are not kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ids := append([]string{}, exceptIDs...)
			for _, f := range exceptFiles {
				lines, err := readIDFile(f)
				if err != nil {
					return err
				}
				ids = append(ids, lines...)
			}

			m, t, err := NewMitch(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			return m.Prune(ctx, ids)
		},
	}

	cmd.Flags().StringArrayVar(&exceptIDs, "except", nil, "Keep this migration installed (its dependencies are not kept unless listed)")
	cmd.Flags().StringArrayVar(&exceptFiles, "except-from-file", nil, "Read ids to keep from a file, one per non-blank line")

	return cmd
}
