package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	storageCmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect local storage usage and run cleanup",
	}

	storageCmd.AddCommand(newStorageUsageCommand(ctx))
	storageCmd.AddCommand(newStorageBreakdownCommand(ctx))
	storageCmd.AddCommand(newStorageCleanupCommand(ctx))

	return storageCmd
}

func newStorageUsageCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show disk totals and library directory sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StorageStats()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Stats)
				}
				stats := resp.Stats
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Disk:       %s free of %s\n",
					formatUBytes(stats.FreeBytes), formatUBytes(stats.TotalBytes))
				fmt.Fprintf(stdout, "Episodes:   %s\n", formatBytes(stats.EpisodesBytes))
				fmt.Fprintf(stdout, "Converted:  %s\n", formatBytes(stats.ConvertedBytes))
				fmt.Fprintf(stdout, "Database:   %s\n", formatBytes(stats.DatabaseBytes))
				fmt.Fprintf(stdout, "Library:    %s\n", formatBytes(stats.LibraryBytes()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit storage stats as JSON")
	return cmd
}

func newStorageBreakdownCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Show per-podcast storage usage, largest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StorageBreakdown()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Podcasts)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Podcasts) == 0 {
					fmt.Fprintln(stdout, "No local episode files")
					return nil
				}
				rows := make([][]string, 0, len(resp.Podcasts))
				for _, usage := range resp.Podcasts {
					rows = append(rows, []string{
						fmt.Sprintf("%d", usage.PodcastID),
						truncate(usage.Title, 40),
						formatBytes(usage.Bytes),
						fmt.Sprintf("%d", usage.EpisodeCount),
						fmt.Sprintf("%d", usage.SyncedCount),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Size", "Episodes", "Synced"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit usage as JSON")
	return cmd
}

func newStorageCleanupCommand(ctx *commandContext) *cobra.Command {
	var pass string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a storage cleanup pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cleanup(pass)
				if err != nil {
					return err
				}
				result := resp.Result
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d episodes and %d files, freed %s\n",
					result.EpisodesRemoved, result.FilesRemoved, formatBytes(result.BytesFreed))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pass, "pass", "all", "Cleanup pass: failed, orphans, age, cap, or all")
	return cmd
}
