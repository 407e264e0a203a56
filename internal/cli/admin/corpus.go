package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cloo-solutions/policyrag/internal/config"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/cloo-solutions/policyrag/internal/storage"
	"github.com/spf13/cobra"
)

// OrganizeCmd normalizes and categorizes the source corpus into the organized layout.
func OrganizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Organize the source corpus",
		Long: `Reads every .txt file in the source directory, cleans it, extracts its metadata and
writes the organized layout (organized/, by_category/, by_type/, metadata/ and
document_index.json) to the output directory.`,
		Args: cobra.NoArgs,
		RunE: runOrganize,
	}

	cmd.Flags().String("source", "", "Source directory (default: POLICYRAG_SOURCE_PATH)")
	cmd.Flags().String("dest", "", "Output directory (default: POLICYRAG_OUTPUT_PATH)")
	cmd.Flags().Bool("index", false, "Index the organized corpus afterwards")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runOrganize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfigWithPaths(cmd)
	if err != nil {
		return err
	}

	sink, err := newCorpusSink(ctx, cfg)
	if err != nil {
		return err
	}

	result, err := newOrganizer(sink).OrganizeDir(ctx, cfg.SourcePath)
	if err != nil {
		return err
	}

	outputFormat, _ := cmd.Flags().GetString("output")
	if err := printBatch(cmd.OutOrStdout(), result, outputFormat); err != nil {
		return err
	}

	if indexAfter, _ := cmd.Flags().GetBool("index"); indexAfter {
		return indexCorpus(ctx, cmd, cfg, false)
	}
	return nil
}

func printBatch(w io.Writer, result *service.BatchResult, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, result)
	}

	idx := result.Index
	fmt.Fprintf(w, "Batch %s: %d organized, %d failed, %d skipped\n",
		idx.BatchID, idx.TotalDocuments, idx.ErrorCount, idx.SkippedCount)
	for _, o := range result.Outcomes {
		if o.Status == domain.FileStatusSuccess {
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n", o.Status, o.Filename, o.Error)
	}
	categories := make([]string, 0, len(idx.CategoryCounts))
	for category := range idx.CategoryCounts {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(w, "  %-28s %d\n", category, idx.CategoryCounts[category])
	}
	return nil
}

// IndexCmd adds the organized corpus to the vector index.
func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the organized corpus",
		Long:  "Adds every organized document under the output directory to the vector index, replacing earlier vectors for the same document.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigWithPaths(cmd)
			if err != nil {
				return err
			}
			return indexCorpus(context.Background(), cmd, cfg, false)
		},
	}
	addIndexFlags(cmd)
	return cmd
}

// RebuildCmd clears the vector index and indexes the organized corpus again.
func RebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Clear and rebuild the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigWithPaths(cmd)
			if err != nil {
				return err
			}
			return indexCorpus(context.Background(), cmd, cfg, true)
		},
	}
	addIndexFlags(cmd)
	return cmd
}

func addIndexFlags(cmd *cobra.Command) {
	cmd.Flags().String("dest", "", "Organized corpus directory (default: POLICYRAG_OUTPUT_PATH)")
	cmd.Flags().Bool("migrate", false, "Apply database migrations first (postgres backend)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func indexCorpus(ctx context.Context, cmd *cobra.Command, cfg *config.Config, rebuild bool) error {
	migrate, _ := cmd.Flags().GetBool("migrate")
	b, err := openBackend(ctx, cfg, backendOptions{
		requireEmbeddings: true,
		migrate:           migrate,
		applicationName:   "policyragd-index",
	})
	if err != nil {
		return err
	}
	defer b.Close()

	ingestSvc := service.NewIngestService(b.Index, newOrganizer(storage.NewFSSink(cfg.OutputPath)))

	var result *service.IndexResult
	if rebuild {
		result, err = ingestSvc.Rebuild(ctx, cfg.OutputPath)
	} else {
		result, err = ingestSvc.IndexOrganized(ctx, cfg.OutputPath)
	}
	if err != nil {
		return err
	}

	outputFormat, _ := cmd.Flags().GetString("output")
	return printIndexResult(cmd.OutOrStdout(), result, outputFormat)
}

func printIndexResult(w io.Writer, result *service.IndexResult, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, result)
	}

	fmt.Fprintf(w, "Indexed %d documents (%d failed, %d skipped)\n", result.Indexed, result.Failed, result.Skipped)
	for _, o := range result.Outcomes {
		if o.Status != domain.FileStatusSuccess {
			fmt.Fprintf(w, "  %s %s: %s\n", o.Status, o.Filename, o.Error)
		}
	}
	return nil
}

// loadConfigWithPaths loads the config and applies the --source and --dest overrides.
func loadConfigWithPaths(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f := cmd.Flags().Lookup("source"); f != nil && f.Value.String() != "" {
		cfg.SourcePath = f.Value.String()
	}
	if f := cmd.Flags().Lookup("dest"); f != nil && f.Value.String() != "" {
		cfg.OutputPath = f.Value.String()
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
