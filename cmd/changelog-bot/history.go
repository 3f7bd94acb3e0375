package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"command-changelog/config"
	"command-changelog/model"
	"command-changelog/storage"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recently detected command changes",
		Long: `Print the change history recorded in Postgres, newest first.

Examples:
  changelog-bot history
  changelog-bot history --limit 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if !cfg.Postgres.Enabled() {
				return errors.New("change history requires POSTGRES_HOST")
			}

			ctx := cmd.Context()
			pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
			if err != nil {
				return fmt.Errorf("pgxpool.New: %w", err)
			}
			defer pool.Close()

			return printHistory(ctx, cmd.OutOrStdout(), storage.NewHistory(pool, cfg.Twitch.Channel, cfg.Batch.FlushTimeout), limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of changes to print")

	return cmd
}

type historySource interface {
	Recent(ctx context.Context, limit int) ([]model.ChangeRecord, error)
}

func printHistory(ctx context.Context, w io.Writer, src historySource, limit int) error {
	records, err := src.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DETECTED\tKIND\tCOMMAND\tEDITOR\tANNOUNCED")
	for _, rec := range records {
		editor := rec.Editor
		if editor == "" {
			editor = "Dashboard"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", rec.DetectedAt.Format("2006-01-02 15:04:05"), rec.Kind, rec.Command, editor, rec.Announced)
	}
	return tw.Flush()
}
