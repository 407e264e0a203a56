package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/policyrag/internal/cli"
	"github.com/cloo-solutions/policyrag/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "policyrag",
		Short: "policyrag CLI - ask questions about company policies",
		Long: `policyrag CLI talks to a policyrag server to answer policy questions and manage the index.

Environment variables:
  POLICYRAG_API_URL       API base URL (default: http://localhost:8080)
  POLICYRAG_ADMIN_TOKEN   Admin token for document and rule management`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("admin-token", "", "Admin token (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AnnotateEnv(rootCmd, "admin-token", "POLICYRAG_ADMIN_TOKEN")
	cli.AnnotateEnv(rootCmd, "api-url", "POLICYRAG_API_URL")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.CategoriesCmd())
	rootCmd.AddCommand(client.TypesCmd())
	rootCmd.AddCommand(client.StatsCmd())
	rootCmd.AddCommand(client.DocumentCmd())
	rootCmd.AddCommand(client.RulesCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
