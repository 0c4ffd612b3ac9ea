package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memstack/sandboxcore/cmd/sandboxctl/client"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <project-id> <tool>",
	Short: "Execute a tool in a project's sandbox",
	Long: `Execute an MCP tool against a running sandbox and print the result.
Example: sandboxctl exec proj-123 run_shell --args '{"cmd":"ls -la"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		projectID, tool := args[0], args[1]

		argsJSON, _ := cmd.Flags().GetString("args")
		timeoutSeconds, _ := cmd.Flags().GetInt("timeout")

		var toolArgs map[string]any
		if argsJSON != "" {
			if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
				return fmt.Errorf("invalid --args JSON: %w", err)
			}
		}

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds+30)*time.Second)
		defer cancel()

		result, err := c.ExecuteTool(ctx, projectID, tool, toolArgs, timeoutSeconds)
		if err != nil {
			return fmt.Errorf("failed to execute tool: %w", err)
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().String("args", "", "Tool arguments as a JSON object")
	execCmd.Flags().Int("timeout", 30, "Tool execution timeout in seconds")
}
