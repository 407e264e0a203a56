package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// maxHistoryTurns bounds the conversation sent back with each interactive question.
const maxHistoryTurns = 10

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the chat API request.
type ChatRequest struct {
	Question       string        `json:"question"`
	CategoryFilter string        `json:"category_filter,omitempty"`
	TypeFilter     string        `json:"type_filter,omitempty"`
	History        []ChatMessage `json:"history,omitempty"`
}

// ChatSource is a document cited by an answer.
type ChatSource struct {
	Filename     string  `json:"filename"`
	Similarity   float64 `json:"similarity"`
	Category     string  `json:"category"`
	DocumentType string  `json:"document_type"`
	Date         string  `json:"date"`
}

// ChatOverride names the override rule that answered a question.
type ChatOverride struct {
	Key        string  `json:"key"`
	Keyword    string  `json:"keyword"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// ChatResponse represents the chat API response.
type ChatResponse struct {
	Response      string        `json:"response"`
	Sources       []ChatSource  `json:"sources"`
	Error         *string       `json:"error"`
	DocumentsUsed int           `json:"documents_used"`
	Override      *ChatOverride `json:"override,omitempty"`
}

// ChatCmd creates the chat command.
func ChatCmd() *cobra.Command {
	var (
		category string
		docType  string
	)

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask a question about the policies",
		Long: `Asks a question about the indexed policies and prints the answer with its sources.

Without a question an interactive session starts; type 'exit' or 'quit' to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if category != "" && docType != "" {
				return fmt.Errorf("--category and --type cannot be combined")
			}
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			base := ChatRequest{CategoryFilter: category, TypeFilter: docType}
			if len(args) == 0 {
				return runChatInteractive(cmd.InOrStdin(), cmd.OutOrStdout(), api, base)
			}
			base.Question = strings.Join(args, " ")
			return runChat(cmd.OutOrStdout(), api, base, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only use documents from this category")
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Only use documents of this type")

	return cmd
}

func askQuestion(api *APIClient, req ChatRequest) (*ChatResponse, error) {
	resp, err := api.Post("/chat", req)
	if err != nil {
		return nil, fmt.Errorf("chat failed: %w", err)
	}

	var chatResp ChatResponse
	if err := decodeData(resp, &chatResp); err != nil {
		return nil, err
	}
	return &chatResp, nil
}

func runChat(w io.Writer, api *APIClient, req ChatRequest, outputJSON bool) error {
	chatResp, err := askQuestion(api, req)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(w, chatResp)
	}
	printAnswer(w, chatResp)
	return nil
}

func runChatInteractive(in io.Reader, w io.Writer, api *APIClient, base ChatRequest) error {
	fmt.Fprintln(w, "Ask a question about the policies. Type 'exit' to quit.")

	var history []ChatMessage
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, "\n> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		req := base
		req.Question = question
		req.History = history

		chatResp, err := askQuestion(api, req)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			continue
		}
		printAnswer(w, chatResp)

		history = append(history,
			ChatMessage{Role: "user", Content: question},
			ChatMessage{Role: "assistant", Content: chatResp.Response},
		)
		if len(history) > 2*maxHistoryTurns {
			history = history[len(history)-2*maxHistoryTurns:]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func printAnswer(w io.Writer, resp *ChatResponse) {
	fmt.Fprintln(w, resp.Response)
	if resp.Error != nil {
		fmt.Fprintf(w, "\nError: %s\n", *resp.Error)
	}
	if resp.Override != nil {
		fmt.Fprintf(w, "\n[answered by rule %s on %q]\n", resp.Override.Key, resp.Override.Keyword)
	}
	if len(resp.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, src := range resp.Sources {
		fmt.Fprintf(w, "  - %s (%s, %s, %s) %.2f\n", src.Filename, src.Category, src.DocumentType, src.Date, src.Similarity)
	}
}
