// Package commands implements the indexer CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"guild-ranker/internal/app"
	"guild-ranker/internal/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Guild ranking indexer",
	Long: `Indexer crawls the community board and profile pages, stores guild
members and builds rankings.

Examples:
  # Apply schema migrations
  indexer migrate

  # Index the three newest list pages
  indexer poll --pages 3 --fallback-pages 1

  # Scan 500 profile ids from 120000
  indexer scan --start 120000 --count 500

  # Build a live snapshot and print it
  indexer snapshot --top 20 --debug

  # Daily refresh of stored members
  indexer refresh`,
	SilenceUsage: true,
}

var logLevel string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// withContainer runs fn with a wired container and a context cancelled on
// SIGINT or SIGTERM.
func withContainer(opts app.ContainerOptions, fn func(ctx context.Context, c *app.Container) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c, err := app.NewContainer(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			c.Log.WithError(cerr).Warn("[CLI] cleanup failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
