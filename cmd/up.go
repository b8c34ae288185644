// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mitchtool/mitch/pkg/mitch"
)

func upCmd() *cobra.Command {
	var fromFiles []string
	var savePath string
	var asDependency bool

	cmd := &cobra.Command{
		Use:     "up <migration>...",
		Short:   "Apply migrations and their dependencies",
		Example: "  mitch up app-schema\n  mitch up --from-file plan.txt --save applied.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			ids := append([]string{}, args...)
			for _, f := range fromFiles {
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

			return m.Up(ctx, ids, mitch.UpOptions{
				AsDependency: asDependency,
				SavePath:     savePath,
			})
		},
	}

	cmd.Flags().StringArrayVar(&fromFiles, "from-file", nil, "Read migration ids from a file, one per non-blank line")
	cmd.Flags().StringVar(&savePath, "save", "", "Append explicitly applied migration ids to a file")
	cmd.Flags().BoolVar(&asDependency, "as-dependency", false, "Record the chosen migrations as dependencies")

	return cmd
}
