package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage runtime setting overrides",
	}

	settingsCmd.AddCommand(newSettingsListCommand(ctx))
	settingsCmd.AddCommand(newSettingsSetCommand(ctx))
	settingsCmd.AddCommand(newSettingsResetCommand(ctx))

	return settingsCmd
}

func newSettingsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show persisted overrides and adjustable keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SettingsGet()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Settings) == 0 {
					fmt.Fprintln(stdout, "No overrides set")
				} else {
					keys := make([]string, 0, len(resp.Settings))
					for key := range resp.Settings {
						keys = append(keys, key)
					}
					sort.Strings(keys)
					rows := make([][]string, 0, len(keys))
					for _, key := range keys {
						rows = append(rows, []string{key, resp.Settings[key]})
					}
					table := renderTable([]string{"Key", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
					fmt.Fprintln(stdout, table)
				}
				fmt.Fprintf(stdout, "Adjustable keys: %s\n", strings.Join(resp.Keys, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit settings as JSON")
	return cmd
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key=value> [key=value...]",
		Short: "Validate and persist setting overrides",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := make(map[string]string, len(args))
			for _, arg := range args {
				key, value, found := strings.Cut(arg, "=")
				key = strings.TrimSpace(key)
				if !found || key == "" {
					return fmt.Errorf("invalid setting %q (expected key=value)", arg)
				}
				updates[key] = strings.TrimSpace(value)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SettingsUpdate(updates); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %d settings\n", len(updates))
				return nil
			})
		},
	}
}

func newSettingsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop every setting override",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SettingsReset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Settings reset to configuration defaults")
				return nil
			})
		},
	}
}
