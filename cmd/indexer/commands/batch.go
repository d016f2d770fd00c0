package commands

import (
	"context"
	"time"

	"guild-ranker/internal/app"
	"guild-ranker/internal/usecase"

	"github.com/spf13/cobra"
)

var batchOpts = app.ContainerOptions{Render: true}

var pollFlags struct {
	pages, fallbackPages, startPage int
	guild                           string
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Index authors from the newest list pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(batchOpts, func(ctx context.Context, c *app.Container) error {
			out, err := c.PipelineUC.Poll(ctx, usecase.PollInput{
				Pages:         pollFlags.pages,
				FallbackPages: pollFlags.fallbackPages,
				StartPage:     pollFlags.startPage,
				Guild:         pollFlags.guild,
			})
			if perr := printJSON(out); perr != nil {
				return perr
			}
			return err
		})
	},
}

var scanFlags struct {
	start, count int
	guild        string
	debug        bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a range of numeric profile ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(batchOpts, func(ctx context.Context, c *app.Container) error {
			out, err := c.PipelineUC.Scan(ctx, usecase.ScanInput{
				StartID: scanFlags.start,
				Count:   scanFlags.count,
				Guild:   scanFlags.guild,
				Debug:   scanFlags.debug,
			})
			if perr := printJSON(out); perr != nil {
				return perr
			}
			return err
		})
	},
}

var snapshotFlags struct {
	guild         string
	top, pages    int
	fallbackPages int
	budget        time.Duration
	debug         bool
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build a live guild ranking from the newest posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(batchOpts, func(ctx context.Context, c *app.Container) error {
			out, err := c.PipelineUC.Snapshot(ctx, usecase.RankingQuery{
				Guild:         snapshotFlags.guild,
				Top:           snapshotFlags.top,
				Pages:         snapshotFlags.pages,
				Debug:         snapshotFlags.debug,
				Budget:        snapshotFlags.budget,
				FallbackPages: snapshotFlags.fallbackPages,
			})
			if err != nil {
				return err
			}
			return printJSON(out)
		})
	},
}

var refreshGuild string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh stored members and recompute daily combat power deltas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(batchOpts, func(ctx context.Context, c *app.Container) error {
			out, err := c.PipelineUC.Refresh(ctx, refreshGuild)
			if perr := printJSON(out); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	pf := pollCmd.Flags()
	pf.IntVar(&pollFlags.pages, "pages", 1, "number of list pages to crawl")
	pf.IntVar(&pollFlags.fallbackPages, "fallback-pages", 1, "leading pages allowed to use the render fallback")
	pf.IntVar(&pollFlags.startPage, "start-page", 1, "first list page")
	pf.StringVar(&pollFlags.guild, "guild", "", "guild filter (default GUILD_FILTER)")

	sf := scanCmd.Flags()
	sf.IntVar(&scanFlags.start, "start", 1, "first profile id")
	sf.IntVar(&scanFlags.count, "count", 100, "number of consecutive ids")
	sf.StringVar(&scanFlags.guild, "guild", "", "guild filter (default GUILD_FILTER)")
	sf.BoolVar(&scanFlags.debug, "debug", false, "print per-id diagnostics")

	nf := snapshotCmd.Flags()
	nf.StringVar(&snapshotFlags.guild, "guild", "", "guild filter (default GUILD_FILTER)")
	nf.IntVar(&snapshotFlags.top, "top", 0, "members to return (default SNAPSHOT_TOP)")
	nf.IntVar(&snapshotFlags.pages, "pages", 0, "list pages to sample (default SNAPSHOT_PAGES)")
	nf.IntVar(&snapshotFlags.fallbackPages, "fallback-pages", -1, "leading pages allowed to render (default SNAPSHOT_FALLBACK_PAGES)")
	nf.DurationVar(&snapshotFlags.budget, "budget", 0, "wall-clock budget (default SNAPSHOT_BUDGET)")
	nf.BoolVar(&snapshotFlags.debug, "debug", false, "include crawl diagnostics and skip the cache")

	refreshCmd.Flags().StringVar(&refreshGuild, "guild", "", "guild filter (default GUILD_FILTER)")

	rootCmd.AddCommand(pollCmd, scanCmd, snapshotCmd, refreshCmd)
}
