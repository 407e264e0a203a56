package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchResult represents a search result.
type SearchResult struct {
	ID         string            `json:"id"`
	Document   string            `json:"document"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		category string
		docType  string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search policy documents",
		Long:  "Runs a similarity search over the indexed policy documents, optionally within one category or document type.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			req := SearchRequest{
				Query:    strings.Join(args, " "),
				Category: category,
				Type:     docType,
				Limit:    limit,
			}
			return runSearch(cmd.OutOrStdout(), api, req, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only search this category")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Only search this document type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")

	return cmd
}

func runSearch(w io.Writer, api *APIClient, req SearchRequest, outputJSON bool) error {
	if req.Category != "" && req.Type != "" {
		return fmt.Errorf("--category and --type cannot be combined")
	}

	resp, err := api.Post("/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := decodeData(resp, &searchResp); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, searchResp)
	}

	if len(searchResp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(searchResp.Results))
	for i, result := range searchResp.Results {
		fmt.Fprintf(w, "%d. %s (%.2f)\n", i+1, result.Metadata["filename"], result.Similarity)
		fmt.Fprintf(w, "   Category: %s  Type: %s  Date: %s\n",
			result.Metadata["category"], result.Metadata["document_type"], result.Metadata["date"])
		if preview := previewText(result.Document, 100); preview != "" {
			fmt.Fprintf(w, "   %s\n", preview)
		}
		if i < len(searchResp.Results)-1 {
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}

	return nil
}

// previewText flattens text onto one line and truncates it to max runes.
func previewText(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= max {
		return flat
	}
	return string(runes[:max-3]) + "..."
}
