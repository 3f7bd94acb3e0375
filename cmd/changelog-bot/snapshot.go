package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"command-changelog/config"
	"command-changelog/model"
	"command-changelog/nightbot"
)

func snapshotCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current command list",
		Long: `Resolve the channel and print its current Nightbot commands.
Nothing is announced or recorded.

Examples:
  changelog-bot snapshot
  changelog-bot snapshot --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			client := nightbot.NewClient(cfg.Nightbot.BaseURL, cfg.Nightbot.Timeout)
			snap, err := fetchSnapshot(cmd.Context(), client, cfg.Twitch.Channel)
			if err != nil {
				return err
			}

			if asJSON {
				return writeSnapshotJSON(cmd.OutOrStdout(), snap)
			}
			return writeSnapshotTable(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print commands as JSON")

	return cmd
}

type commandSource interface {
	ResolveChannel(ctx context.Context, twitchName string) (string, error)
	FetchCommands(ctx context.Context, channelID string) (model.Snapshot, error)
}

func fetchSnapshot(ctx context.Context, src commandSource, channel string) (model.Snapshot, error) {
	channelID, err := src.ResolveChannel(ctx, channel)
	if err != nil {
		return model.Snapshot{}, err
	}
	return src.FetchCommands(ctx, channelID)
}

func writeSnapshotJSON(w io.Writer, snap model.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Commands())
}

func writeSnapshotTable(w io.Writer, snap model.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUSER LEVEL\tCOOLDOWN\tALIAS\tUPDATED")
	for _, c := range snap.Commands() {
		alias := c.Alias
		if alias == "" {
			alias = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%ds\t%s\t%s\n", c.Name, c.UserLevel, c.CoolDown, alias, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
