package client

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ListResponse is the payload of the category and type listings.
type ListResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}

// StatsResponse describes the vector collection.
type StatsResponse struct {
	TotalVectors int    `json:"total_vectors"`
	Collection   string `json:"collection"`
}

// CategoriesCmd lists the categories present in the index.
func CategoriesCmd() *cobra.Command {
	return listCmd("categories", "List indexed categories", "/categories")
}

// TypesCmd lists the document types present in the index.
func TypesCmd() *cobra.Command {
	return listCmd("types", "List indexed document types", "/types")
}

func listCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runList(cmd.OutOrStdout(), api, path, outputJSON)
		},
	}
}

func runList(w io.Writer, api *APIClient, path string, outputJSON bool) error {
	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var list ListResponse
	if err := decodeData(resp, &list); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, list)
	}
	if len(list.Items) == 0 {
		fmt.Fprintln(w, "Nothing indexed yet.")
		return nil
	}
	for _, item := range list.Items {
		fmt.Fprintln(w, item)
	}
	return nil
}

// StatsCmd prints the vector collection statistics.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runStats(cmd.OutOrStdout(), api, outputJSON)
		},
	}
}

func runStats(w io.Writer, api *APIClient, outputJSON bool) error {
	resp, err := api.Get("/stats")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var stats StatsResponse
	if err := decodeData(resp, &stats); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, stats)
	}
	fmt.Fprintf(w, "Collection: %s\n", stats.Collection)
	fmt.Fprintf(w, "Vectors: %d\n", stats.TotalVectors)
	return nil
}
