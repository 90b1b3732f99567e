package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dopahiyaa/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print leadctl version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "leadctl\n")
			fmt.Fprintf(cmd.OutOrStdout(), " - version: %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), " - git: %s\n", version.GitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), " - built: %s\n", version.BuildDate)
			return nil
		},
	}
}
