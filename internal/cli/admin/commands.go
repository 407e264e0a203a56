package admin

import (
	"github.com/cloo-solutions/policyrag/internal/cli"
	"github.com/spf13/cobra"
)

// CommandsCmd prints the schema of every command under root as JSON.
func CommandsCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Print the command tree as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.WriteSchema(cmd.OutOrStdout(), root)
		},
	}
}
