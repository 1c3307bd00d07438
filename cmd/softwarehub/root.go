package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blossom-os/softwarehub/internal/config"
)

var (
	// Shared state injected into commands
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd runs the server when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "softwarehub",
	Short: "Software catalog service with a local cache",
	Long: `softwarehub serves the software catalog over HTTP.

Apps, categories, collections and search come from the local cache when the
cache database is reachable, and from the public catalog API otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// Execute loads configuration and runs the selected command
func Execute() {
	cfg = config.Load()
	logger = newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		logger.Error("command failed", "command", commandName(os.Args), "error", err)
		os.Exit(1)
	}
}

func commandName(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	return "serve"
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newPopulateCmd())
}
