package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
)

const (
	defaultTokenBytes = 32
	minTokenBytes     = authz.RecommendedTokenLen / 2
	maxTokenBytes     = 256
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage caller tokens",
	}

	cmd.AddCommand(newTokenGenerateCmd())

	return cmd
}

func newTokenGenerateCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a new random caller token",
		Long: `Print a new random caller token as hex. Add it to server.api_tokens
(or API_AUTH_TOKENS) and send SIGHUP, or run "sharepoint-gateway reload".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTokenGenerate(cmd.OutOrStdout(), n)
		},
	}

	cmd.Flags().IntVar(&n, "bytes", defaultTokenBytes, "random bytes in the token")

	return cmd
}

func generateToken(n int) (string, error) {
	if n < minTokenBytes || n > maxTokenBytes {
		return "", fmt.Errorf("--bytes must be between %d and %d, got %d", minTokenBytes, maxTokenBytes, n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

func runTokenGenerate(w io.Writer, n int) error {
	tok, err := generateToken(n)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(w, map[string]string{"token": tok, "preview": authz.Preview(tok)})
	}

	fmt.Fprintln(w, tok)

	return nil
}
