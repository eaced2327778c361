// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/control"
)

// ctlConfig holds flags shared by the ctl subcommands.
type ctlConfig struct {
	instance    string
	jsonOutput  bool
	reason      string
	saveTimeout time.Duration
}

// NewCtlCmd creates the ctl subcommand.
func NewCtlCmd() *cobra.Command {
	cfg := &ctlConfig{}

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running gatekeeper over its control socket",
	}
	cmd.PersistentFlags().StringVar(&cfg.instance, "instance", defaultInstance, "instance name")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show health, lockdown state and player counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCtlStatus(cmd, cfg)
		},
	}
	status.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	shutdown := &cobra.Command{
		Use:   "shutdown",
		Short: "Engage lockdown, save every player and stop the process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCtlShutdown(cmd, cfg)
		},
	}
	shutdown.Flags().StringVar(&cfg.reason, "reason", "", "disconnect reason shown to players")

	save := &cobra.Command{
		Use:   "saveplayers",
		Short: "Save every active player without disconnecting anyone",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCtlSavePlayers(cmd, cfg)
		},
	}
	save.Flags().DurationVar(&cfg.saveTimeout, "timeout", time.Minute, "how long to wait for the save")

	cmd.AddCommand(status, shutdown, save)
	return cmd
}

func ctlClient(instance string, timeout time.Duration) (*control.Client, error) {
	path, err := control.SocketPath(instance)
	if err != nil {
		return nil, err
	}
	return control.NewClient(path, timeout), nil
}

func runCtlStatus(cmd *cobra.Command, cfg *ctlConfig) error {
	client, err := ctlClient(cfg.instance, control.DefaultClientTimeout)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)

	health, err := client.Health(ctx)
	if err != nil {
		return oops.With("instance", cfg.instance).Wrap(err)
	}
	status, err := client.Status(ctx)
	if err != nil {
		return oops.With("instance", cfg.instance).Wrap(err)
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(health, status))
	return nil
}

func runCtlShutdown(cmd *cobra.Command, cfg *ctlConfig) error {
	client, err := ctlClient(cfg.instance, control.DefaultClientTimeout)
	if err != nil {
		return err
	}
	resp, err := client.Shutdown(contextOf(cmd), cfg.reason)
	if err != nil {
		return oops.With("instance", cfg.instance).Wrap(err)
	}
	cmd.Println(resp.Message)
	return nil
}

func runCtlSavePlayers(cmd *cobra.Command, cfg *ctlConfig) error {
	client, err := ctlClient(cfg.instance, 0)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(contextOf(cmd), cfg.saveTimeout)
	defer cancel()

	summary, err := client.SavePlayers(ctx)
	if err != nil {
		return oops.With("instance", cfg.instance).Wrap(err)
	}
	cmd.Printf("Saved %d players (%d failed)\n", summary.Saved, summary.Failed)
	if summary.Failed > 0 {
		return oops.Code("SAVE_INCOMPLETE").Errorf("%d players could not be saved", summary.Failed)
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(health control.HealthResponse, status control.StatusResponse) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	lockdown := "open"
	if status.Lockdown {
		lockdown = "locked"
		if status.LockdownReason != "" {
			lockdown += " (" + status.LockdownReason + ")"
		}
	}

	_, _ = fmt.Fprintln(w, "INSTANCE\tHEALTH\tPID\tUPTIME\tADMISSION\tCONNECTING\tACTIVE")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%d\t%d\n",
		status.Instance, health.Status, status.PID, formatUptime(status.UptimeSeconds),
		lockdown, status.Connecting, status.Active)

	_ = w.Flush()
	return buf.String()
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
