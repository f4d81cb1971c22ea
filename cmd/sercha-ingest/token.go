package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue API tokens and hash API keys",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed API token",
	Long: `Issue a JWT signed with auth.jwt_secret.

A token with --scope may only read and act on items of that scope. A token
without a scope is unscoped and may also use the admin routes.`,
	Example: `  sercha-ingest token issue --subject ci --scope project-1 --ttl 1h
  sercha-ingest token issue --subject ops --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		scope, _ := cmd.Flags().GetString("scope")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required to issue tokens")
		}

		authService := services.NewAuthService(auth.NewAdapter(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
		token, claims, err := authService.IssueToken(cmd.Context(), subject, scope, ttl)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}

		if jsonOutput {
			output, err := json.MarshalIndent(map[string]any{
				"token":      token,
				"subject":    claims.Subject,
				"scope":      claims.Scope,
				"expires_at": time.Unix(claims.ExpiresAt, 0).UTC().Format(time.RFC3339),
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenHashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash an API key for auth.api_key_hashes",
	Long: `Print the bcrypt hash of an API key. Add the hash to auth.api_key_hashes
(or SERCHA_AUTH_API_KEY_HASHES) and hand the plain key to the client.
The key is read from stdin when no argument is given.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read key: %w", err)
			}
			key = line
		}
		key = strings.TrimSpace(key)

		hash, err := auth.NewAdapter("").HashAPIKey(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().String("subject", "", "Token subject (required)")
	tokenIssueCmd.Flags().String("scope", "", "Item scope the token is limited to; empty for unscoped")
	tokenIssueCmd.Flags().Duration("ttl", 0, "Token lifetime (default: auth.token_ttl)")
	tokenIssueCmd.Flags().BoolP("json", "j", false, "Output token and claims as JSON")
	_ = tokenIssueCmd.MarkFlagRequired("subject")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenHashKeyCmd)
}
