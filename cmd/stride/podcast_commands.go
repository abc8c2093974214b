package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newPodcastCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAddCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newRemoveCommand(ctx),
		newRefreshCommand(ctx),
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var episodeLimit int
	var noAutoDownload bool
	cmd := &cobra.Command{
		Use:   "add <rss-url>",
		Short: "Subscribe to a podcast feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				req := ipc.PodcastAddRequest{
					RSSURL:       args[0],
					EpisodeLimit: episodeLimit,
				}
				if noAutoDownload {
					auto := false
					req.AutoDownload = &auto
				}
				resp, err := client.PodcastAdd(req)
				if err != nil {
					return err
				}
				podcast := resp.Podcast
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %q (id %d, keeping %d episodes)\n",
					podcast.Title, podcast.ID, podcast.EpisodeLimit)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&episodeLimit, "limit", 0, "Episodes to keep on the device (0 uses the configured default)")
	cmd.Flags().BoolVar(&noAutoDownload, "no-auto-download", false, "Do not download new episodes automatically")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List podcast subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PodcastList()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Podcasts)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Podcasts) == 0 {
					fmt.Fprintln(stdout, "No subscriptions. Add one with `stride add <rss-url>`.")
					return nil
				}
				rows := make([][]string, 0, len(resp.Podcasts))
				for _, podcast := range resp.Podcasts {
					rows = append(rows, []string{
						fmt.Sprintf("%d", podcast.ID),
						truncate(podcast.Title, 40),
						fmt.Sprintf("%d", podcast.EpisodeLimit),
						yesNo(podcast.AutoDownload),
						orDash(podcast.LastChecked),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Limit", "Auto", "Last Checked"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit subscriptions as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var limit int
	var autoDownload string
	cmd := &cobra.Command{
		Use:   "show <podcast-id>",
		Short: "Show one subscription, optionally updating its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "podcast")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if cmd.Flags().Changed("limit") || cmd.Flags().Changed("auto-download") {
					req := ipc.PodcastUpdateRequest{ID: id}
					if cmd.Flags().Changed("limit") {
						req.EpisodeLimit = &limit
					}
					if cmd.Flags().Changed("auto-download") {
						auto, parseErr := parseBoolFlag(autoDownload)
						if parseErr != nil {
							return parseErr
						}
						req.AutoDownload = &auto
					}
					if _, err := client.PodcastUpdate(req); err != nil {
						return err
					}
				}

				resp, err := client.PodcastGet(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Podcast)
				}
				podcast := resp.Podcast
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Title:         %s\n", podcast.Title)
				fmt.Fprintf(stdout, "Feed:          %s\n", podcast.RSSURL)
				fmt.Fprintf(stdout, "Episode limit: %d\n", podcast.EpisodeLimit)
				fmt.Fprintf(stdout, "Auto download: %s\n", yesNo(podcast.AutoDownload))
				fmt.Fprintf(stdout, "Last checked:  %s\n", orDash(podcast.LastChecked))
				fmt.Fprintf(stdout, "Subscribed:    %s\n", orDash(podcast.CreatedAt))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the subscription as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Set the episode limit")
	cmd.Flags().StringVar(&autoDownload, "auto-download", "", "Set auto download (true/false)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <podcast-id>",
		Short: "Unsubscribe and delete local episode files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "podcast")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.PodcastRemove(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed podcast %d\n", id)
				return nil
			})
		},
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [podcast-id]",
		Short: "Refetch feeds and discover new episodes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				parsed, err := parseID(args[0], "podcast")
				if err != nil {
					return err
				}
				id = parsed
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Refresh(id)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				total := 0
				for _, result := range resp.Results {
					total += result.NewEpisodes
				}
				fmt.Fprintf(stdout, "Refreshed %d feeds, %d new episodes\n", len(resp.Results), total)
				return nil
			})
		},
	}
	return cmd
}

func parseBoolFlag(value string) (bool, error) {
	switch value {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q (use true or false)", value)
	}
}
