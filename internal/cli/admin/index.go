package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/config"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/storage"
	"github.com/spf13/cobra"
)

// StatsCmd prints vector collection statistics and the indexed labels.
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			b, err := openMaintenanceBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			outputFormat, _ := cmd.Flags().GetString("output")
			return runStats(ctx, cmd.OutOrStdout(), b.Index, outputFormat)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

type statsOutput struct {
	Collection   string   `json:"collection"`
	TotalVectors int      `json:"total_vectors"`
	Categories   []string `json:"categories"`
	Types        []string `json:"types"`
}

// statsReader is the part of the vector index the stats command reads.
type statsReader interface {
	Stats(ctx context.Context) (domain.IndexStats, error)
	Categories(ctx context.Context) ([]string, error)
	Types(ctx context.Context) ([]string, error)
}

func runStats(ctx context.Context, w io.Writer, index statsReader, outputFormat string) error {
	stats, err := index.Stats(ctx)
	if err != nil {
		return err
	}
	categories, err := index.Categories(ctx)
	if err != nil {
		return err
	}
	types, err := index.Types(ctx)
	if err != nil {
		return err
	}

	out := statsOutput{
		Collection:   stats.Collection,
		TotalVectors: stats.TotalVectors,
		Categories:   categories,
		Types:        types,
	}
	if outputFormat == "json" {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "Collection: %s\n", out.Collection)
	fmt.Fprintf(w, "Vectors:    %d\n", out.TotalVectors)
	fmt.Fprintf(w, "Categories: %s\n", strings.Join(out.Categories, ", "))
	fmt.Fprintf(w, "Types:      %s\n", strings.Join(out.Types, ", "))
	return nil
}

// ClearCmd removes every vector from the collection.
func ClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every vector from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Remove every vector from the index?") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}

			b, err := openMaintenanceBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Index.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Index cleared")
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// DeleteCmd removes the vectors of one document and its organized files.
func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			id := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			b, err := openBackend(ctx, cfg, backendOptions{})
			if err != nil {
				return err
			}
			defer b.Close()

			record, err := b.Index.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := b.Index.Delete(ctx, id); err != nil {
				return err
			}

			if keep, _ := cmd.Flags().GetBool("keep-files"); !keep {
				organizer := newOrganizer(storage.NewFSSink(cfg.OutputPath))
				if err := organizer.Remove(ctx, id, record.Metadata.Category(), record.Metadata.DocumentType()); err != nil {
					log.Printf("failed to remove organized files of %s: %v", id, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Document %s deleted\n", id)
			return nil
		},
	}
	cmd.Flags().Bool("keep-files", false, "Leave the organized files in OUTPUT_PATH")
	return cmd
}

// openMaintenanceBackend opens the index for commands that never embed text.
func openMaintenanceBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openBackend(ctx, cfg, backendOptions{})
}

func confirm(in io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
