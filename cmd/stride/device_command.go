package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/ipc"
)

func newDeviceCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Show watch detection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DeviceStatus()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Info)
				}
				info := resp.Info
				stdout := cmd.OutOrStdout()
				if !info.Mounted {
					fmt.Fprintln(stdout, "No watch detected. Connect it over USB and check the mount.")
					return nil
				}
				fmt.Fprintf(stdout, "Mount point:  %s\n", info.MountPoint)
				fmt.Fprintf(stdout, "Music folder: %s\n", info.MusicFolder)
				fmt.Fprintf(stdout, "Writable:     %s\n", yesNo(info.Writable))
				if info.TotalBytes > 0 {
					fmt.Fprintf(stdout, "Capacity:     %s (%s free)\n",
						formatUBytes(info.TotalBytes), formatUBytes(info.FreeBytes))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit device info as JSON")
	return cmd
}
