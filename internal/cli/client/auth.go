package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage server credentials",
		Long:  "Store, remove and inspect the server URL and admin token used by policyrag",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var token string
	var apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the server URL and admin token",
		Long:  "Store the server URL and admin token in global config (~/.config/policyrag/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogin(cmd.OutOrStdout(), cmd.InOrStdin(), token, apiURL)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Admin token")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		Long:  "Remove stored credentials from global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthLogout(cmd.OutOrStdout())
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential status",
		Long:  "Display where the admin token comes from and which server is used",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagToken, _ := cmd.Flags().GetString("admin-token")
			flagURL, _ := cmd.Flags().GetString("api-url")
			return runAuthStatus(cmd.OutOrStdout(), flagToken, flagURL, outputJSON)
		},
	}
}

func runAuthLogin(w io.Writer, in io.Reader, token, apiURL string) error {
	if token == "" {
		fmt.Fprint(w, "Enter admin token: ")
		input, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read admin token: %w", err)
		}
		token = strings.TrimSpace(input)
	}

	if token == "" {
		return fmt.Errorf("admin token cannot be empty")
	}
	if _, err := NewAPIClientWithConfig(token, apiURL); err != nil {
		return err
	}

	if err := SaveGlobalConfig(&GlobalConfig{APIURL: apiURL, AdminToken: token}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(w, "Credentials saved")
	return nil
}

func runAuthLogout(w io.Writer) error {
	if err := DeleteGlobalConfig(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}

	fmt.Fprintln(w, "Credentials removed")
	return nil
}

func runAuthStatus(w io.Writer, flagToken, flagURL string, outputJSON bool) error {
	source, token, apiURL := GetCredentialSource(flagToken, flagURL)

	if outputJSON {
		status := map[string]interface{}{
			"admin":  source != SourceNone,
			"source": string(source),
		}
		if source != SourceNone {
			status["admin_token"] = maskToken(token)
			status["api_url"] = apiURL
		}
		return printJSON(w, status)
	}

	if source == SourceNone {
		fmt.Fprintln(w, "No admin token configured")
		fmt.Fprintln(w, "Run 'policyrag auth login' to store one")
		return nil
	}

	fmt.Fprintf(w, "Admin token: %s\n", maskToken(token))
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "API URL: %s\n", apiURL)

	return nil
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
