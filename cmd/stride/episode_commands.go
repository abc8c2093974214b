package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Inspect and manage episodes",
	}

	episodesCmd.AddCommand(newEpisodesListCommand(ctx))
	episodesCmd.AddCommand(newEpisodesShowCommand(ctx))
	episodesCmd.AddCommand(newEpisodesDownloadCommand(ctx))
	episodesCmd.AddCommand(newEpisodesCancelCommand(ctx))
	episodesCmd.AddCommand(newEpisodesRemoveCommand(ctx))
	episodesCmd.AddCommand(newEpisodesConvertCommand(ctx))

	return episodesCmd
}

func newEpisodesListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list <podcast-id>",
		Short: "List a podcast's episodes, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "podcast")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EpisodeList(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Episodes)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Episodes) == 0 {
					fmt.Fprintln(stdout, "No episodes")
					return nil
				}
				rows := make([][]string, 0, len(resp.Episodes))
				for _, episode := range resp.Episodes {
					rows = append(rows, []string{
						fmt.Sprintf("%d", episode.ID),
						truncate(episode.Title, 44),
						orDash(episode.PubDate),
						episode.Status,
						yesNo(episode.SyncedToDevice),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Published", "Status", "On Device"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit episodes as JSON")
	return cmd
}

func newEpisodesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Show one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EpisodeGet(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Episode)
				}
				episode := resp.Episode
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Title:      %s\n", episode.Title)
				fmt.Fprintf(stdout, "Published:  %s\n", orDash(episode.PubDate))
				fmt.Fprintf(stdout, "Duration:   %s\n", formatDuration(episode.DurationSeconds))
				fmt.Fprintf(stdout, "Size:       %s\n", formatBytes(episode.FileSize))
				fmt.Fprintf(stdout, "Status:     %s\n", episode.Status)
				if episode.Status == "downloading" {
					fmt.Fprintf(stdout, "Progress:   %.0f%%\n", episode.DownloadProgress*100)
				}
				fmt.Fprintf(stdout, "On device:  %s\n", yesNo(episode.SyncedToDevice))
				if episode.LocalPath != "" {
					fmt.Fprintf(stdout, "Local file: %s\n", episode.LocalPath)
				}
				if episode.ConvertedPath != "" {
					fmt.Fprintf(stdout, "Converted:  %s\n", episode.ConvertedPath)
				}
				if episode.ErrorMessage != "" {
					fmt.Fprintf(stdout, "Error:      %s\n", episode.ErrorMessage)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the episode as JSON")
	return cmd
}

func newEpisodesDownloadCommand(ctx *commandContext) *cobra.Command {
	var newForPodcast int64
	cmd := &cobra.Command{
		Use:   "download [episode-id]",
		Short: "Queue an episode download, or all new episodes with --new",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if cmd.Flags().Changed("new") {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.DownloadNew(newForPodcast)
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "Queued %d episodes\n", resp.Queued)
					return nil
				})
			}
			if len(args) != 1 {
				return fmt.Errorf("episode id is required (or use --new <podcast-id>)")
			}
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.EpisodeDownload(id); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Queued episode %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&newForPodcast, "new", 0, "Queue the newest undownloaded episodes of a podcast")
	return cmd
}

func newEpisodesCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <episode-id>",
		Short: "Cancel an in-flight download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.EpisodeCancel(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled episode %d\n", id)
				return nil
			})
		},
	}
}

func newEpisodesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <episode-id>",
		Short: "Delete an episode and its local files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.EpisodeRemove(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed episode %d\n", id)
				return nil
			})
		},
	}
}

func newEpisodesConvertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <episode-id>",
		Short: "Re-run audio conversion for a downloaded episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "episode")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.EpisodeConvert(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Converted episode %d\n", id)
				return nil
			})
		},
	}
}
