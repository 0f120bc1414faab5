// Package common builds the shared dependencies the subcommands wire
// together: configuration, logger, database, and the run pipeline.
package common

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/towncrier/internal/analyzer"
	"github.com/jonesrussell/towncrier/internal/board"
	"github.com/jonesrussell/towncrier/internal/config"
	"github.com/jonesrussell/towncrier/internal/database"
	"github.com/jonesrussell/towncrier/internal/dedup"
	"github.com/jonesrussell/towncrier/internal/fetcher"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/pipeline"
	"github.com/jonesrussell/towncrier/internal/scraper"
)

// Deps are the long-lived dependencies shared by the subcommands.
type Deps struct {
	Cfg         *config.Config
	Log         logger.Interface
	DB          *sqlx.DB
	Scrapes     *database.ScrapeRepository
	Submissions *database.SubmissionRepository
}

// Build loads configuration and opens the logger and database.
func Build(cfgPath string, debug bool) (*Deps, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       level,
		Encoding:    cfg.Logging.Encoding,
		Development: debug,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Deps{
		Cfg:         cfg,
		Log:         log,
		DB:          db,
		Scrapes:     database.NewScrapeRepository(db, log, cfg.News.SkipRecentlyScraped),
		Submissions: database.NewSubmissionRepository(db, log, cfg.Database.Path),
	}, nil
}

// Close releases the database and flushes the logger.
func (d *Deps) Close() {
	if err := d.DB.Close(); err != nil {
		d.Log.Error("closing database", "error", err.Error())
	}
	_ = d.Log.Sync()
}

// NewPipeline assembles the full run pipeline from configuration.
func (d *Deps) NewPipeline() *pipeline.Pipeline {
	cfg := d.Cfg

	fetch := fetcher.New(fetcher.Config{
		UserAgent:   cfg.News.UserAgent,
		Timeout:     time.Duration(cfg.News.FetchTimeoutSeconds) * time.Second,
		Concurrency: cfg.News.FetchConcurrency,
		SeedRetries: 2,
	}, d.Log)

	scrape := scraper.New(fetch, d.Scrapes, d.Log, scraper.Config{
		Sites:      cfg.News.Sites,
		CacheHours: cfg.News.ScrapingCacheHours,
	})

	analyze := analyzer.NewWithAPIKey(cfg.LLM.APIKey, d.Log, analyzer.Config{
		Town:         cfg.News.Town,
		MaxArticles:  cfg.News.MaxArticles,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Timeout:      time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		SystemPrompt: cfg.LLM.SystemPrompt,
	})

	client := board.NewClient(board.Config{
		BaseURL:   cfg.Board.BaseURL,
		Community: cfg.Board.Community,
		UserAgent: cfg.Board.UserAgent,
		APIToken:  cfg.Board.APIToken,
		PostDelay: time.Duration(cfg.Board.PostDelaySeconds) * time.Second,
		Timeout:   30 * time.Second,
	}, d.Log)

	prober := dedup.NewProber(client, d.Log, cfg.Board.MaxSearchResults)
	checker := dedup.NewChecker(d.Submissions, prober, d.Log, cfg.Board.CheckForDuplicates)

	return pipeline.New(
		scrape,
		analyze,
		checker,
		client,
		d.Scrapes,
		d.Submissions,
		d.Log,
		pipeline.Config{
			MaxArticles:             cfg.News.MaxArticles,
			ScrapeRetentionDays:     cfg.News.ScrapeRetentionDays,
			SubmissionRetentionDays: cfg.Board.SubmissionRetentionDays,
		},
	)
}
