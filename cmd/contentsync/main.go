package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheide/contentsync/internal/backup"
	"github.com/sheide/contentsync/internal/config"
	"github.com/sheide/contentsync/internal/sync"
	"github.com/sheide/contentsync/internal/watch"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
	direction string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "contentsync",
	Short: "Synchronize markdown items between an authoring tree and a publishing tree",
	Long: `contentsync keeps a date-partitioned authoring tree and a flat publishing
tree in step. It detects creates, updates, and deletes on both sides, resolves
conflicts deterministically, and applies every run as an atomic batch with
backups and rollback.

It can run as a oneshot sync or as a long-running watcher that re-syncs on
filesystem changes.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time sync between the two trees",
	Long: `Sync scans both trees, classifies every item as create, update, or delete,
resolves conflicts, and applies the resulting operations as backed-up atomic
batches. Referenced media files ride along into the target assets directory.`,
	RunE: runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch both trees and sync continuously",
	Long: `Watch performs an initial sync and then observes both trees for filesystem
changes, debouncing event bursts into sync runs until interrupted.`,
	RunE: runWatch,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove backup batches beyond the retention count",
	RunE:  runPrune,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("contentsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/contentsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().StringVar(&direction, "direction", "", "restrict sync direction (source-to-target, target-to-source)")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := resolveDirection(cfg)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(cfg, nil, nil, logger, dryRun || cfg.Sync.DryRun)

	result, err := engine.Run(ctx, dir)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("sync finished with %d item errors", len(result.Errors))
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine := sync.NewEngine(cfg, nil, nil, logger, false)
	return watch.New(cfg, engine, logger).Start(ctx)
}

func runPrune(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := backup.NewStore(cfg.BackupDir(), logger, cfg.Target.Root, cfg.Source.Root)
	removed, err := store.Prune(cfg.Backup.RetentionCount)
	if err != nil {
		return fmt.Errorf("failed to prune backups: %w", err)
	}

	logger.Info("backups pruned", "removed", removed, "retained", cfg.Backup.RetentionCount)
	return nil
}

// resolveDirection applies the --direction flag over the configured default.
func resolveDirection(cfg *config.Config) (config.Direction, error) {
	if direction == "" {
		return cfg.Sync.Direction, nil
	}
	d := config.Direction(direction)
	switch d {
	case config.DirectionBoth, config.DirectionSourceToTarget, config.DirectionTargetToSource:
		return d, nil
	}
	return "", fmt.Errorf("invalid direction %q", direction)
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/contentsync/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source_root", cfg.Source.Root,
		"target_root", cfg.Target.Root,
		"direction", string(cfg.Sync.Direction))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
