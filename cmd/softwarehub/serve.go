package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blossom-os/softwarehub/internal/api"
	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/catalog"
	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/system"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	logger.Info("starting software hub")
	logger.Info("loaded configuration",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"remote_url", cfg.RemoteURL,
		"remote_only", cfg.RemoteOnly,
		"dedup_delay", cfg.DedupDelay,
	)

	client := newRemoteClient(cfg)
	hub := progress.NewHub()

	publisher := connectRedis(cfg, logger)
	if publisher != nil {
		defer publisher.Close()
	}

	var emitter progress.Emitter = hub
	if publisher != nil {
		emitter = progress.Multi(hub, publisher)
	}

	// A nil channel sends every catalog operation to the remote API
	var channel cache.Channel
	if !cfg.RemoteOnly {
		service, closeCache, err := openCacheService(ctx, cfg, client, emitter, logger)
		if err != nil {
			logger.Warn("local cache unavailable, serving from remote API", "error", err)
		} else {
			defer closeCache()
			channel = service
		}
	}

	// Without a local populator, follow populations run by other processes
	if channel == nil && publisher != nil {
		go publisher.Forward(ctx, hub)
	}

	c := catalog.New(channel, client, logger, catalog.Options{
		DedupDelay: cfg.DedupDelay,
		Emitter:    emitter,
	})
	logger.Info("catalog ready", "privileged", c.Privileged())

	monitor := system.NewMonitor(cfg.DataDir)
	monitor.Start(ctx)

	server := api.NewServer(c, hub, monitor, api.ServerConfig{Port: cfg.Port}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
