package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/memstack/sandboxcore/cmd/sandboxctl/client"
	"github.com/spf13/cobra"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sb"},
	Short:   "Manage sandboxes",
	Long:    `Create, inspect, sync, and terminate project sandboxes.`,
}

var createCmd = &cobra.Command{
	Use:   "create <project-id> <tenant-id>",
	Short: "Get or create a sandbox for a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		projectID, tenantID := args[0], args[1]
		profile, _ := cmd.Flags().GetString("profile")

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		info, err := c.GetOrCreate(ctx, projectID, client.GetOrCreateRequest{
			TenantID: tenantID,
			Profile:  profile,
		})
		if err != nil {
			return fmt.Errorf("failed to get or create sandbox: %w", err)
		}
		printInfo(info)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <project-id>",
	Short: "Sync and print a project's sandbox status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		projectID := args[0]

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		info, err := c.SyncStatus(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to sync sandbox status: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(info, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		printInfo(info)
		return nil
	},
}

var terminateCmd = &cobra.Command{
	Use:     "terminate <project-id>",
	Aliases: []string{"rm", "delete"},
	Short:   "Terminate a project's sandbox",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		projectID := args[0]
		purge, _ := cmd.Flags().GetBool("purge")

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.Terminate(ctx, projectID, purge); err != nil {
			return fmt.Errorf("failed to terminate sandbox: %w", err)
		}
		fmt.Printf("✓ Sandbox for project %s terminated\n", projectID)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <project-id>",
	Short: "Run a health check against a project's sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		projectID := args[0]

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		healthy, err := c.HealthCheck(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to run health check: %w", err)
		}
		if healthy {
			fmt.Println("healthy")
			return nil
		}
		fmt.Println("unhealthy")
		return fmt.Errorf("sandbox for project %s is unhealthy", projectID)
	},
}

var listCmd = &cobra.Command{
	Use:     "list <tenant-id>",
	Aliases: []string{"ls"},
	Short:   "List a tenant's sandboxes",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		tenantID := args[0]
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		infos, err := c.ListByTenant(ctx, tenantID, status, limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list sandboxes: %w", err)
		}
		if len(infos) == 0 {
			fmt.Println("No sandboxes found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SANDBOX ID\tPROJECT\tSTATUS\tHEALTHY\tCREATED")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				info.SandboxID, info.ProjectID, info.Status, info.IsHealthy, info.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

func printInfo(info *client.Info) {
	fmt.Printf("Sandbox: %s\n", info.SandboxID)
	fmt.Printf("  Project: %s\n", info.ProjectID)
	fmt.Printf("  Tenant: %s\n", info.TenantID)
	fmt.Printf("  Status: %s\n", info.Status)
	fmt.Printf("  Healthy: %t\n", info.IsHealthy)
	if info.MCPPort != nil {
		fmt.Printf("  MCP Port: %d\n", *info.MCPPort)
	}
	if info.DesktopPort != nil {
		fmt.Printf("  Desktop Port: %d\n", *info.DesktopPort)
	}
	if info.TerminalPort != nil {
		fmt.Printf("  Terminal Port: %d\n", *info.TerminalPort)
	}
	for name, url := range info.EndpointURLs {
		fmt.Printf("  Endpoint %s: %s\n", name, url)
	}
}

func init() {
	rootCmd.AddCommand(sandboxCmd)

	sandboxCmd.AddCommand(createCmd)
	sandboxCmd.AddCommand(syncCmd)
	sandboxCmd.AddCommand(terminateCmd)
	sandboxCmd.AddCommand(healthCmd)
	sandboxCmd.AddCommand(listCmd)

	createCmd.Flags().String("profile", "standard", "Resource profile (lite, standard, full)")

	syncCmd.Flags().Bool("json", false, "Output as JSON")

	terminateCmd.Flags().Bool("purge", false, "Purge the association record along with the container")

	listCmd.Flags().String("status", "", "Filter by association status")
	listCmd.Flags().Int("limit", 50, "Maximum number of results")
	listCmd.Flags().Int("offset", 0, "Result offset")
}
