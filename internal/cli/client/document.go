package client

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type uploadRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type uploadResponse struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata"`
}

type documentResponse struct {
	ID       string            `json:"id"`
	ChunkID  string            `json:"chunk_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// DocumentCmd groups the single-document commands.
func DocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "document",
		Aliases: []string{"doc"},
		Short:   "Show, upload or delete indexed documents",
	}

	cmd.AddCommand(documentGetCmd())
	cmd.AddCommand(documentUploadCmd())
	cmd.AddCommand(documentDeleteCmd())

	return cmd
}

func documentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an indexed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runDocumentGet(cmd.OutOrStdout(), api, args[0], outputJSON)
		},
	}
}

func runDocumentGet(w io.Writer, api *APIClient, id string, outputJSON bool) error {
	resp, err := api.Get("/documents/" + url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var doc documentResponse
	if err := decodeData(resp, &doc); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, doc)
	}
	fmt.Fprintf(w, "%s\n", doc.Metadata["filename"])
	fmt.Fprintf(w, "Category: %s  Type: %s  Date: %s\n", doc.Metadata["category"], doc.Metadata["document_type"], doc.Metadata["date"])
	fmt.Fprintf(w, "\n%s\n", doc.Text)
	return nil
}

func documentUploadCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Organize and index a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := adminClient(cmd)
			if err != nil {
				return err
			}
			return runDocumentUpload(cmd.OutOrStdout(), api, args[0], name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Filename to store the document under (default: the file's base name)")

	return cmd
}

func runDocumentUpload(w io.Writer, api *APIClient, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if name == "" {
		name = filepath.Base(path)
	}

	resp, err := api.Post("/documents", uploadRequest{Filename: name, Text: string(data)})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var uploaded uploadResponse
	if err := decodeData(resp, &uploaded); err != nil {
		return err
	}
	fmt.Fprintf(w, "Indexed %s as %s (category %v, type %v)\n",
		name, uploaded.ID, uploaded.Metadata["category"], uploaded.Metadata["document_type"])
	return nil
}

func documentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := adminClient(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/documents/" + url.PathEscape(args[0])); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document %s deleted\n", args[0])
			return nil
		},
	}
}
