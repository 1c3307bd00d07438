package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/blossom-os/softwarehub/internal/progress"
)

func newPopulateCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Fill the local cache from the remote API and exit",
		Long: `Fill the local cache from the remote API in the foreground.

Without --clear only apps changed upstream are refetched. Progress is logged
and, when SOFTWAREHUB_REDIS_ADDR is set, published for running servers.

Examples:
  softwarehub populate           # Refresh recently updated apps
  softwarehub populate --clear   # Drop the cache and fetch everything`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPopulate(cmd.Context(), clear)
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "clear every cache table before fetching")

	return cmd
}

func runPopulate(ctx context.Context, clear bool) error {
	client := newRemoteClient(cfg)

	emitter := logProgress(logger)
	publisher := connectRedis(cfg, logger)
	if publisher != nil {
		defer publisher.Close()
		emitter = progress.Multi(emitter, publisher)
	}

	_, populator, closeDB, err := openPopulator(ctx, cfg, client, emitter, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer closeDB()

	start := time.Now()
	if err := populator.Run(ctx, clear); err != nil {
		return fmt.Errorf("failed to populate cache: %w", err)
	}

	logger.Info("cache populated", "clear", clear, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// logProgress writes each progress event to logger
func logProgress(logger *slog.Logger) progress.Emitter {
	return progress.EmitterFunc(func(ev progress.Event) {
		attrs := []any{"stage", ev.Stage, "progress", ev.Progress, "total", ev.Total}
		if ev.CategoryID != "" {
			attrs = append(attrs, "category", ev.CategoryID)
		}
		if ev.AppCount != nil {
			attrs = append(attrs, "app_count", *ev.AppCount)
		}
		if ev.Details != "" {
			attrs = append(attrs, "details", ev.Details)
		}
		logger.Info(ev.Message, attrs...)
	})
}
