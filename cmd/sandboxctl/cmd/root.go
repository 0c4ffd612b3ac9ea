// Package cmd implements sandboxctl, grounded on the teacher's
// cmd/cli/cmd root command shape (persistent --url/--api-key flags
// sourced from env vars, checkAPIKey guard) but rescoped to the
// Lifecycle Service's own operations.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "sandboxctl manages sandboxes against a sandboxcored instance",
	Long: `sandboxctl is a command-line client for sandboxcored, the Project
Sandbox Lifecycle Core. It drives get-or-create, terminate, health
checks, and admin sweeps over sandboxcored's HTTP API.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("SANDBOXCORE_API_URL", "http://localhost:8080"), "sandboxcored API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SANDBOXCORE_API_KEY"), "sandboxcored API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func checkAPIKey() error {
	if apiKey == "" {
		return fmt.Errorf("API key is required. Set SANDBOXCORE_API_KEY environment variable or use --api-key flag")
	}
	return nil
}
