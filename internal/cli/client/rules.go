package client

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// Rule is an override rule as returned by the server.
type Rule struct {
	Key        string   `json:"key"`
	Keywords   []string `json:"keywords"`
	Response   string   `json:"response"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
}

type rulesResponse struct {
	Rules []Rule `json:"rules"`
	Total int    `json:"total"`
}

type ruleResponse struct {
	Rule       Rule `json:"rule"`
	TotalRules int  `json:"total_rules"`
}

// RulesCmd groups the override rule commands. They require the admin token.
func RulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage override rules",
		Long:  "List, add and remove the keyword rules that answer questions without a document search. Requires the admin token.",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesRemoveCmd())

	return cmd
}

func adminClient(cmd *cobra.Command) (*APIClient, error) {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return nil, err
	}
	if !api.HasAdminToken() {
		return nil, fmt.Errorf("%s not set (run 'policyrag auth login' or pass --admin-token)", envAdminToken)
	}
	return api, nil
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List override rules in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := adminClient(cmd)
			if err != nil {
				return err
			}
			return runRulesList(cmd.OutOrStdout(), api, outputJSON)
		},
	}
}

func runRulesList(w io.Writer, api *APIClient, outputJSON bool) error {
	resp, err := api.Get("/rules")
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	var list rulesResponse
	if err := decodeData(resp, &list); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, list)
	}
	for i, r := range list.Rules {
		fmt.Fprintf(w, "%d. %s (%s, confidence %.2f)\n", i+1, r.Key, r.Source, r.Confidence)
		fmt.Fprintf(w, "   keywords: %s\n", strings.Join(r.Keywords, ", "))
	}
	return nil
}

func rulesAddCmd() *cobra.Command {
	var (
		keywords   []string
		response   string
		confidence float64
	)

	cmd := &cobra.Command{
		Use:   "add <key>",
		Short: "Add or replace an override rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := adminClient(cmd)
			if err != nil {
				return err
			}
			rule := Rule{Key: args[0], Keywords: keywords, Response: response, Confidence: confidence}
			return runRulesAdd(cmd.OutOrStdout(), api, rule)
		},
	}

	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "Trigger keyword (repeatable)")
	cmd.Flags().StringVarP(&response, "response", "r", "", "Answer returned when the rule fires")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.9, "Confidence reported with the answer")
	_ = cmd.MarkFlagRequired("keyword")
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func runRulesAdd(w io.Writer, api *APIClient, rule Rule) error {
	resp, err := api.Post("/rules", rule)
	if err != nil {
		return fmt.Errorf("failed to add rule: %w", err)
	}

	var added ruleResponse
	if err := decodeData(resp, &added); err != nil {
		return err
	}
	fmt.Fprintf(w, "Rule %s saved (%d rules active)\n", added.Rule.Key, added.TotalRules)
	return nil
}

func rulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove an override rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := adminClient(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/rules/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to remove rule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %s removed\n", args[0])
			return nil
		},
	}
}
