package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stride/internal/daemonctl"
	"stride/internal/deps"
	"stride/internal/ipc"
)

func daemonStatusSnapshot(cmd *cobra.Command, ctx *commandContext) (*ipc.StatusResponse, error) {
	return daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, library, and device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonStatusSnapshot(cmd, ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, statusResp)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if statusResp.Running {
				fmt.Fprintln(stdout, renderStatusLine("Stride", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Stride", statusWarn, "Not running (run `stride daemon start`)", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, statusResp.DatabasePath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, statusResp.SocketPath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(deps.Check(cfg), colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Device", colorize) {
				fmt.Fprintln(stdout, line)
			}
			device := statusResp.Device
			if device.Mounted {
				detail := device.MountPoint
				if device.FreeBytes > 0 {
					detail = fmt.Sprintf("%s (%s free)", device.MountPoint, formatUBytes(device.FreeBytes))
				}
				fmt.Fprintln(stdout, renderStatusLine("Watch", statusOK, detail, colorize))
			} else if statusResp.Running {
				fmt.Fprintln(stdout, renderStatusLine("Watch", statusInfo, "Not connected", colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Watch", statusInfo, "Unknown (daemon not running)", colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Library", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := [][]string{
				{"Podcasts", fmt.Sprintf("%d", statusResp.Podcasts)},
				{"Episodes", fmt.Sprintf("%d", statusResp.Episodes)},
				{"Pending", fmt.Sprintf("%d", statusResp.Pending)},
				{"Downloading", fmt.Sprintf("%d", statusResp.Downloading)},
				{"Downloaded", fmt.Sprintf("%d", statusResp.Downloaded)},
				{"Failed", fmt.Sprintf("%d", statusResp.Failed)},
				{"Synced", fmt.Sprintf("%d", statusResp.Synced)},
			}
			fmt.Fprintln(stdout, renderTable([]string{"Category", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit status as JSON")
	return cmd
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}
