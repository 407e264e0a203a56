package admin

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/config"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/spf13/cobra"
)

// RulesCmd inspects override rule sets without starting the server.
func RulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect override rules",
		Long:  "Show the override rules the server starts with, or check a rules file before deploying it",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesCheckCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured override rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			rules, err := loadRules(cfg)
			if err != nil {
				return err
			}
			outputFormat, _ := cmd.Flags().GetString("output")
			return printRules(cmd.OutOrStdout(), rules, outputFormat)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func rulesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a YAML rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := service.LoadOverrideRules(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid rules\n", args[0], rules.Len())
			outputFormat, _ := cmd.Flags().GetString("output")
			return printRules(cmd.OutOrStdout(), rules, outputFormat)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func printRules(w io.Writer, rules *service.OverrideRuleStore, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, rules.Rules())
	}

	for i, r := range rules.Rules() {
		fmt.Fprintf(w, "%d. %s (%s, confidence %.2f)\n", i+1, r.Key, r.Source, r.Confidence)
		fmt.Fprintf(w, "   keywords: %s\n", strings.Join(r.Keywords, ", "))
	}
	return nil
}
