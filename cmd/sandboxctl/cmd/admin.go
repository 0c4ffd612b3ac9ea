package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/memstack/sandboxcore/cmd/sandboxctl/client"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative maintenance operations",
}

var cleanupStaleCmd = &cobra.Command{
	Use:   "cleanup-stale",
	Short: "Terminate sandboxes idle past a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}
		maxIdleSeconds, _ := cmd.Flags().GetInt("max-idle-seconds")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		ids, err := c.CleanupStale(ctx, maxIdleSeconds, dryRun)
		if err != nil {
			return fmt.Errorf("failed to clean up stale sandboxes: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No stale sandboxes found")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var orphanSweepCmd = &cobra.Command{
	Use:   "orphan-sweep",
	Short: "Sweep the container runtime for orphaned containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.New(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		stats, err := c.OrphanSweep(ctx)
		if err != nil {
			return fmt.Errorf("failed to sweep orphans: %w", err)
		}
		fmt.Printf("scanned=%d removed_orphans=%d removed_stale=%d removed_untracked=%d errors=%d\n",
			stats.Scanned, stats.RemovedOrphans, stats.RemovedStale, stats.RemovedUntracked, len(stats.Errors))
		for _, e := range stats.Errors {
			fmt.Println("  error:", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(cleanupStaleCmd)
	adminCmd.AddCommand(orphanSweepCmd)

	cleanupStaleCmd.Flags().Int("max-idle-seconds", 3600, "Idle threshold in seconds")
	cleanupStaleCmd.Flags().Bool("dry-run", false, "Report stale sandboxes without terminating them")
}
