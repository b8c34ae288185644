// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mitchtool/mitch/pkg/migrations"
	"github.com/mitchtool/mitch/pkg/repository"
)

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create migration or repository skeletons on disk",
	}
	cmd.AddCommand(addMigrationCmd())
	cmd.AddCommand(addRepositoryCmd())
	return cmd
}

func addMigrationCmd() *cobra.Command {
	var id string
	var transactional bool
	var idempotent bool
	var dependencies []string

	cmd := &cobra.Command{
		Use:   "migration <path>",
		Short: "Create a migration skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("cannot create migration, %q already exists", path)
			} else if !os.IsNotExist(err) {
				return err
			}

			repo, err := OpenRepository()
			if err != nil {
				return err
			}

			if id == "" {
				rel, err := filepath.Rel(repo.RootDir, path)
				if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
					return fmt.Errorf("%q is outside the repository rooted at %q", path, repo.RootDir)
				}
				id = filepath.ToSlash(rel)
			}

			// Declared dependencies must exist before the skeleton is
			// written.
			resolved, err := repo.ByIDs(dependencies)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(path, migrations.UpScriptFile), fmt.Appendf(nil, "-- deploy %s\n", id), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(path, migrations.DownScriptFile), fmt.Appendf(nil, "-- revert %s\n", id), 0o644); err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "id = %q\n", id)
			fmt.Fprintf(&b, "author = \"\"\n")
			fmt.Fprintf(&b, "created_at = %q\n", time.Now().UTC().Format(time.RFC3339))
			fmt.Fprintf(&b, "transactional = %t\n", transactional)
			fmt.Fprintf(&b, "idempotent = %t\n", idempotent)
			if len(resolved) == 0 {
				fmt.Fprintf(&b, "dependencies = []\n")
			} else {
				fmt.Fprintf(&b, "dependencies = [\n")
				for _, d := range resolved {
					fmt.Fprintf(&b, "    %q,\n", d.ID().String())
				}
				fmt.Fprintf(&b, "]\n")
			}
			if err := os.WriteFile(filepath.Join(path, migrations.DescriptorFile), []byte(b.String()), 0o644); err != nil {
				return err
			}

			pterm.Success.Println("Created migration " + id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Migration id (defaults to the path relative to the repository root)")
	cmd.Flags().BoolVar(&transactional, "transactional", true, "Mark the migration as transactional")
	cmd.Flags().BoolVar(&idempotent, "idempotent", false, "Mark the migration as idempotent")
	cmd.Flags().StringArrayVarP(&dependencies, "dependencies", "d", nil, "Migration ids the new migration depends on")

	return cmd
}

func addRepositoryCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "repository <path>",
		Short: "Create a repository skeleton",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("cannot create repository, %q already exists", path)
			} else if !os.IsNotExist(err) {
				return err
			}

			if name == "" {
				base := ""
				if repo, err := OpenRepository(); err == nil {
					base = repo.RootDir
				} else if wd, err := os.Getwd(); err == nil {
					base = wd
				}
				rel, err := filepath.Rel(base, path)
				if err != nil {
					return err
				}
				name = filepath.ToSlash(rel)
			}

			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "[repository]\n")
			fmt.Fprintf(&b, "name = %q\n", name)
			fmt.Fprintf(&b, "maintainer = \"\"\n")
			if err := os.WriteFile(filepath.Join(path, repository.DescriptorFile), []byte(b.String()), 0o644); err != nil {
				return err
			}

			pterm.Success.Println("Created repository " + name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Repository name (defaults to the path relative to the enclosing repository)")

	return cmd
}
