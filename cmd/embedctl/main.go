// Package main implements the embedctl CLI for manual operations against an
// embedd server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedd/pkg/client"
)

var (
	// tcpAddr is the binary protocol address used by embed
	tcpAddr string
	// httpURL is the base URL for the REST adapter used by health and info
	httpURL string
	// model optionally overrides the server's default model
	model string
	// timeout bounds each operation
	timeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedctl",
	Short: "CLI for embedd server operations",
	Long: `embedctl is a command-line interface for interacting with an embedd server.
It speaks the binary protocol for embeddings and HTTP for health and metadata.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tcpAddr, "addr", "localhost:8787", "embedd binary protocol address")
	rootCmd.PersistentFlags().StringVar(&httpURL, "server", "http://localhost:8699", "embedd HTTP server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "operation timeout")
	embedCmd.Flags().StringVar(&model, "model", "", "model to embed with (server default when empty)")
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(infoCmd)
}

// embedCmd embeds text from arguments or stdin
var embedCmd = &cobra.Command{
	Use:   "embed [text]",
	Short: "Embed text over the binary protocol",
	Long: `Embed text using an embedd server and print the vector as JSON.

Examples:
  # Embed a string
  embedctl embed "the quick brown fox"

  # Embed from stdin
  cat document.txt | embedctl embed -

  # Use a specific model
  embedctl embed --model BAAI/bge-base-en-v1.5 "hello"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmbed,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check embedd server health",
	RunE:  runHealth,
}

// infoCmd prints server metadata
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show embedd server metadata",
	RunE:  runInfo,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	c, err := client.Dial(ctx, tcpAddr, client.Options{DialTimeout: timeout})
	if err != nil {
		return err
	}
	defer c.Close()

	vec, err := c.Embed(ctx, client.EmbedRequest{Text: text, Model: model})
	if err != nil {
		return err
	}

	out, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, status, err := httpGet(cmd.Context(), "/health")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	if status != http.StatusOK {
		return fmt.Errorf("server unhealthy (HTTP %d)", status)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	body, status, err := httpGet(cmd.Context(), "/")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status HTTP %d", status)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}

// readInput returns the embed text from the argument, or stdin when the
// argument is absent or "-".
func readInput(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func httpGet(ctx context.Context, path string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(httpURL, "/")+path, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
