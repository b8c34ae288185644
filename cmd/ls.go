// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func lsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List migrations and repositories",
	}
	cmd.AddCommand(lsUpCmd())
	cmd.AddCommand(lsModifiedCmd())
	cmd.AddCommand(lsAvailableCmd())
	cmd.AddCommand(lsRepositoriesCmd())
	return cmd
}

func lsUpCmd() *cobra.Command {
	var includeDependencies bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "List installed migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, err := OpenRepository()
			if err != nil {
				return err
			}
			t, err := NewTarget(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			installed, err := t.InstalledMigrations(ctx, repo, includeDependencies)
			if err != nil {
				return err
			}
			for _, m := range installed {
				fmt.Println(m.ID())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&includeDependencies, "include-dependencies", "d", false, "Include migrations applied as dependencies")

	return cmd
}

func lsModifiedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modified",
		Short: "List installed migrations whose scripts changed on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, err := OpenRepository()
			if err != nil {
				return err
			}
			t, err := NewTarget(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			modified, err := t.ModifiedMigrations(ctx, repo)
			if err != nil {
				return err
			}
			for _, m := range modified {
				fmt.Println(m.ID())
			}
			return nil
		},
	}
}

func lsAvailableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List every migration of the repository and its applied state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			repo, err := OpenRepository()
			if err != nil {
				return err
			}
			t, err := NewTarget(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			paired, err := t.WithApplications(ctx, repo.AllMigrations())
			if err != nil {
				return err
			}
			for _, p := range paired {
				switch {
				case p.Application == nil:
					fmt.Println(p.Migration.ID())
				case p.Application.IsDependency:
					fmt.Printf("%s (applied as dependency)\n", p.Migration.ID())
				default:
					fmt.Printf("%s (applied)\n", p.Migration.ID())
				}
			}
			return nil
		},
	}
}

func lsRepositoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repositories",
		Short: "List the repository and its sub-repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := OpenRepository()
			if err != nil {
				return err
			}

			fmt.Println(repo.Name)
			names := make([]string, 0, len(repo.Subrepositories))
			for name := range repo.Subrepositories {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}
