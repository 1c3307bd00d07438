package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blossom-os/softwarehub/internal/cache"
	"github.com/blossom-os/softwarehub/internal/config"
	"github.com/blossom-os/softwarehub/internal/db"
	"github.com/blossom-os/softwarehub/internal/progress"
	"github.com/blossom-os/softwarehub/internal/remote"
)

func main() {
	Execute()
}

// newLogger builds the process logger at the configured level
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger
}

func newRemoteClient(cfg *config.Config) *remote.Client {
	return remote.NewClient(cfg.RemoteURL, &http.Client{Timeout: 30 * time.Second})
}

// connectRedis returns nil when no address is configured or the server is
// unreachable; progress then stays in-process
func connectRedis(cfg *config.Config, logger *slog.Logger) *progress.RedisPublisher {
	if cfg.RedisAddr == "" {
		return nil
	}
	publisher, err := progress.NewRedisPublisher(cfg.RedisAddr, logger)
	if err != nil {
		logger.Warn("progress events stay in-process", "redis_addr", cfg.RedisAddr, "error", err)
		return nil
	}
	logger.Info("publishing progress events to Redis", "redis_addr", cfg.RedisAddr, "channel", progress.Channel)
	return publisher
}

// openCacheService connects to the cache database and builds the privileged
// channel around it
func openCacheService(ctx context.Context, cfg *config.Config, client *remote.Client, emitter progress.Emitter, logger *slog.Logger) (*cache.Service, func(), error) {
	store, populator, closeDB, err := openPopulator(ctx, cfg, client, emitter, logger)
	if err != nil {
		return nil, nil, err
	}
	service := cache.NewService(store, populator, cache.NewFlatpakChecker())
	// A background population must stop writing before the database closes
	return service, func() {
		service.Close()
		closeDB()
	}, nil
}

// openPopulator opens the database, loads the category seed list and wires a
// populator writing to the store
func openPopulator(ctx context.Context, cfg *config.Config, client *remote.Client, emitter progress.Emitter, logger *slog.Logger) (*cache.Store, *cache.Populator, func(), error) {
	categories, err := cache.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, nil, nil, err
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("cache database initialized", "categories", len(categories))

	store := cache.NewStore(database)
	populator := cache.NewPopulator(store, client, categories, emitter, logger)
	return store, populator, func() { database.Close() }, nil
}
