package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize episodes to the connected watch",
	}

	syncCmd.AddCommand(newSyncNowCommand(ctx))
	syncCmd.AddCommand(newSyncHistoryCommand(ctx))

	return syncCmd
}

func newSyncNowCommand(ctx *commandContext) *cobra.Command {
	var podcastID int64
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Run a device sync immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				var filter *int64
				if cmd.Flags().Changed("podcast") {
					filter = &podcastID
				}
				resp, err := client.SyncStart(filter)
				if err != nil {
					return err
				}
				run := resp.Run
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Sync %s: %d added, %d removed, %d skipped, %s copied\n",
					run.Outcome, run.EpisodesAdded, run.EpisodesRemoved, run.EpisodesSkipped,
					formatBytes(run.BytesCopied))
				if run.ErrorMessage != "" {
					fmt.Fprintf(stdout, "Error: %s\n", run.ErrorMessage)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&podcastID, "podcast", 0, "Limit the sync to one podcast")
	return cmd
}

func newSyncHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncHistory(limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Runs)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Runs) == 0 {
					fmt.Fprintln(stdout, "No sync runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Runs))
				for _, run := range resp.Runs {
					scope := "all"
					if run.PodcastID != nil {
						scope = fmt.Sprintf("%d", *run.PodcastID)
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", run.ID),
						run.StartedAt,
						run.Type,
						scope,
						fmt.Sprintf("%d", run.EpisodesAdded),
						fmt.Sprintf("%d", run.EpisodesRemoved),
						formatBytes(run.BytesCopied),
						run.Outcome,
					})
				}
				table := renderTable(
					[]string{"ID", "Started", "Type", "Podcast", "Added", "Removed", "Copied", "Outcome"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit sync runs as JSON")
	return cmd
}
