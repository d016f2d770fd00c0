package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"guild-ranker/internal/config"
	"guild-ranker/internal/database"
	"guild-ranker/internal/database/migration"
	dbpostgres "guild-ranker/internal/database/postgres"
	"guild-ranker/internal/indexer"
	"guild-ranker/internal/infrastructure/cache"
	"guild-ranker/internal/logger"
	"guild-ranker/internal/pkg/jwt"
	"guild-ranker/internal/ranking"
	"guild-ranker/internal/repository"
	"guild-ranker/internal/scraper"
	"guild-ranker/internal/usecase"
	"guild-ranker/internal/ws"

	"github.com/sirupsen/logrus"
)

// ContainerOptions toggles the parts only some entry points need.
type ContainerOptions struct {
	// Hub starts a websocket hub and routes pipeline events to it.
	Hub bool
	// Render starts the headless browser when the config enables it.
	Render bool
}

// Container owns every long-lived resource of the process.
type Container struct {
	Config config.Config
	Log    *logrus.Logger
	DB     database.DB
	Cache  cache.JSONCache
	Render *scraper.RenderEngine
	Hub    *ws.Hub
	JWT    *jwt.HMACService

	Lists    *scraper.ListCrawler
	Posts    *scraper.PostScraper
	Profiles *scraper.ProfileScraper

	Authors *repository.PostgresAuthorRepository
	Ledger  *repository.PostgresLedgerRepository
	Runs    *repository.PostgresScrapeRunRepository
	Stats   *repository.PostgresStatsRepository
	Status  *repository.PostgresPipelineStatusRepository

	Indexer   *indexer.Indexer
	Scanner   *indexer.ProfileScanner
	Refresher *indexer.MemberRefresher
	Builder   *ranking.Builder
	Reader    *ranking.Reader

	RankingUC        *usecase.Ranking
	PipelineUC       *usecase.Pipeline
	PipelineStatusUC *usecase.PipelineStatus

	logCloser io.Closer
	redis     *cache.Redis
}

func NewContainer(cfg config.Config, opts ContainerOptions) (*Container, error) {
	log, closer, err := logger.Setup(logger.Options{Name: cfg.App.AppName, Dir: cfg.Log.Dir, Level: cfg.Log.Level})
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	c := &Container{Config: cfg, Log: log, logCloser: closer}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = db

	c.redis = cache.NewRedis(cfg.Redis, log)
	if c.redis.Available() {
		c.Cache = c.redis
	} else {
		c.Cache = cache.NewMemory(cfg.Snapshot.CacheTTL)
	}

	c.Render = scraper.NewRenderEngine(scraper.RenderOptions{
		Enabled:     cfg.Render.Enabled && opts.Render,
		ExecPath:    cfg.Render.ExecPath,
		NavTimeout:  cfg.Render.NavTimeout,
		WaitTimeout: cfg.Render.WaitTimeout,
		Settle:      cfg.Render.Settle,
		Logger:      log,
	})
	if cfg.Render.Enabled && opts.Render {
		if err := c.Render.Start(context.Background()); err != nil {
			log.WithError(err).Warn("[Render] engine not started, static fetch only")
		}
	}

	if opts.Hub {
		c.Hub = ws.NewHub(log)
		go c.Hub.Run()
	}
	c.JWT = jwt.NewHMACService(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)

	c.wire()
	return c, nil
}

func (c *Container) wire() {
	cfg, log := c.Config, c.Log

	fetcher := scraper.NewFetcher(scraper.FetcherOptions{
		BaseURL:      cfg.Site.BaseURL,
		Timeout:      cfg.Site.Timeout,
		RetryTimeout: cfg.Site.RetryTimeout,
		Logger:       log,
	})
	c.Lists = scraper.NewListCrawler(scraper.ListCrawlerOptions{
		BaseURL:  cfg.Site.BaseURL,
		Timeout:  cfg.Site.Timeout,
		Renderer: c.Render,
		Logger:   log,
	})
	c.Posts = scraper.NewPostScraper(cfg.Site.BaseURL, fetcher, c.Render, log)
	c.Profiles = scraper.NewProfileScraper(cfg.Site.BaseURL, fetcher, c.Render, log)

	c.Authors = repository.NewPostgresAuthorRepository(c.DB)
	c.Ledger = repository.NewPostgresLedgerRepository(c.DB)
	c.Runs = repository.NewPostgresScrapeRunRepository(c.DB)
	c.Stats = repository.NewPostgresStatsRepository(c.DB)
	c.Status = repository.NewPostgresPipelineStatusRepository(c.DB)

	c.Indexer = indexer.New(c.Lists, c.Posts, c.Authors, c.Ledger, indexer.Options{
		GuildFilter: cfg.Indexer.GuildFilter,
		PostRecheck: cfg.Indexer.PostRecheck,
		ItemDelay:   cfg.Indexer.ItemDelay,
		Cache:       c.Cache,
		Logger:      log,
	})
	c.Scanner = indexer.NewProfileScanner(c.Profiles, c.Authors, c.Ledger, indexer.ScannerOptions{
		GuildFilter:    cfg.Indexer.GuildFilter,
		ProfileRecheck: cfg.Indexer.ProfileRecheck,
		ItemDelay:      cfg.Indexer.ItemDelay,
		Cache:          c.Cache,
		Logger:         log,
	})
	c.Refresher = indexer.NewMemberRefresher(c.Profiles, c.Authors, c.Stats, indexer.RefresherOptions{
		GuildFilter:  cfg.Indexer.GuildFilter,
		RefreshDelay: cfg.Indexer.RefreshDelay,
		Cache:        c.Cache,
		Logger:       log,
	})

	sourceURL := c.Lists.Site().ListURL(1)
	c.Builder = ranking.NewBuilder(c.Lists, c.Posts, ranking.BuilderOptions{
		Defaults: ranking.SnapshotOptions{
			Guild:         cfg.Indexer.GuildFilter,
			Pages:         cfg.Snapshot.Pages,
			Top:           cfg.Snapshot.Top,
			Budget:        cfg.Snapshot.Budget,
			FallbackPages: cfg.Snapshot.FallbackPages,
		},
		Concurrency: cfg.Snapshot.Concurrency,
		CacheTTL:    cfg.Snapshot.CacheTTL,
		SourceURL:   sourceURL,
		Cache:       c.Cache,
		Logger:      log,
	})
	c.Reader = ranking.NewReader(c.Authors, sourceURL)

	c.RankingUC = usecase.NewRankingUsecase(c.Reader, c.Builder, c.Indexer, usecase.RankingDefaults{
		Guild: cfg.Indexer.GuildFilter,
		Top:   cfg.Snapshot.Top,
		Pages: cfg.Snapshot.Pages,
	}, log)

	deps := usecase.PipelineDeps{
		Indexer:   c.Indexer,
		Scanner:   c.Scanner,
		Refresher: c.Refresher,
		Builder:   c.Builder,
		Runs:      c.Runs,
	}
	if c.Hub != nil {
		deps.Notifier = c.Hub
	}
	c.PipelineUC = usecase.NewPipelineUsecase(deps, cfg.Indexer.GuildFilter, log)

	c.PipelineStatusUC = usecase.NewPipelineStatusUsecase(usecase.PipelineStatusDeps{
		Runs:    c.Status,
		Authors: c.Authors,
		Ledger:  c.Ledger,
		DB:      c.DB,
		Cache:   c.Cache,
	}, log)
}

// Migrate applies the embedded schema migrations.
func (c *Container) Migrate(ctx context.Context) error {
	r := migration.Runner{Logger: c.Log}
	return r.Run(ctx, c.DB.SQLDB())
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Hub != nil {
		c.Hub.Stop()
	}
	if c.Render != nil {
		errs = append(errs, c.Render.Stop())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.logCloser != nil {
		errs = append(errs, c.logCloser.Close())
	}
	return errors.Join(errs...)
}
