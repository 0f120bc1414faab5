// Package config provides configuration management for the application.
// Values are loaded from a TOML file via viper, with credentials coming
// from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Environment variable names for credentials. These are never read from
// the config file.
const (
	EnvBoardAPIToken   = "BOARD_API_TOKEN"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// Config represents the application configuration.
type Config struct {
	News     NewsConfig     `mapstructure:"news"`
	Board    BoardConfig    `mapstructure:"board"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NewsConfig configures scraping and analysis of the news sites.
type NewsConfig struct {
	// Town is the locality the bot reports on.
	Town string `mapstructure:"town"`
	// Sites are the seed index pages scraped for article links. Seed
	// pages are never subject to the scrape-recency cache.
	Sites []string `mapstructure:"sites"`
	// MaxArticles caps how many stories one run will post.
	MaxArticles int `mapstructure:"max_articles"`
	// SkipRecentlyScraped gates the scrape-history recency check.
	SkipRecentlyScraped bool `mapstructure:"skip_recently_scraped"`
	// ScrapingCacheHours is the recency window for skipping re-fetches.
	ScrapingCacheHours int `mapstructure:"scraping_cache_hours"`
	// ScrapeRetentionDays bounds how long scrape history is kept.
	ScrapeRetentionDays int `mapstructure:"scrape_retention_days"`
	// FetchTimeoutSeconds is the per-page fetch timeout.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	// FetchConcurrency bounds simultaneous in-flight page fetches.
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
	// UserAgent identifies the scraper to the news sites.
	UserAgent string `mapstructure:"user_agent"`
}

// BoardConfig configures the discussion-board client and dedup checking.
type BoardConfig struct {
	// BaseURL is the board's API root.
	BaseURL string `mapstructure:"base_url"`
	// Community is the board community posts are submitted to.
	Community string `mapstructure:"community"`
	// UserAgent identifies the bot to the board API.
	UserAgent string `mapstructure:"user_agent"`
	// CheckForDuplicates gates the whole duplicate-checking engine.
	CheckForDuplicates bool `mapstructure:"check_for_duplicates"`
	// MaxSearchResults bounds each remote duplicate-probe query.
	MaxSearchResults int `mapstructure:"max_search_results"`
	// PostDelaySeconds is the pause between consecutive submissions.
	PostDelaySeconds int `mapstructure:"post_delay_seconds"`
	// SubmissionRetentionDays bounds how long submission history is kept.
	SubmissionRetentionDays int `mapstructure:"submission_retention_days"`
	// APIToken is read from BOARD_API_TOKEN, never from the file.
	APIToken string `mapstructure:"-"`
}

// LLMConfig configures the language-model analyzer.
type LLMConfig struct {
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// SystemPrompt overrides the built-in analysis prompt when set.
	SystemPrompt string `mapstructure:"system_prompt"`
	// APIKey is read from ANTHROPIC_API_KEY, never from the file.
	APIKey string `mapstructure:"-"`
}

// DatabaseConfig configures the SQLite history store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// Defaults mirrored into viper before the file is read.
const (
	defaultTown                = "Hudson, Ohio"
	defaultMaxArticles         = 5
	defaultScrapingCacheHours  = 24
	defaultScrapeRetention     = 7
	defaultSubmissionRetention = 30
	defaultFetchTimeoutSecs    = 60
	defaultFetchConcurrency    = 2
	defaultMaxSearchResults    = 100
	defaultPostDelaySecs       = 60
	defaultLLMModel            = "claude-sonnet-4-20250514"
	defaultLLMMaxTokens        = 4096
	defaultLLMTimeoutSecs      = 300
	defaultDatabasePath        = "data/towncrier.db"
	defaultUserAgent           = "towncrier/1.0"
)

// Load reads the configuration from path (or the default search path when
// path is empty), applies defaults and environment credentials, and
// returns the typed configuration.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; defaults carry the run.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Board.APIToken = os.Getenv(EnvBoardAPIToken)
	cfg.LLM.APIKey = os.Getenv(EnvAnthropicAPIKey)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("news.town", defaultTown)
	v.SetDefault("news.max_articles", defaultMaxArticles)
	v.SetDefault("news.skip_recently_scraped", true)
	v.SetDefault("news.scraping_cache_hours", defaultScrapingCacheHours)
	v.SetDefault("news.scrape_retention_days", defaultScrapeRetention)
	v.SetDefault("news.fetch_timeout_seconds", defaultFetchTimeoutSecs)
	v.SetDefault("news.fetch_concurrency", defaultFetchConcurrency)
	v.SetDefault("news.user_agent", defaultUserAgent)

	v.SetDefault("board.community", "news")
	v.SetDefault("board.user_agent", defaultUserAgent)
	v.SetDefault("board.check_for_duplicates", true)
	v.SetDefault("board.max_search_results", defaultMaxSearchResults)
	v.SetDefault("board.post_delay_seconds", defaultPostDelaySecs)
	v.SetDefault("board.submission_retention_days", defaultSubmissionRetention)

	v.SetDefault("llm.model", defaultLLMModel)
	v.SetDefault("llm.max_tokens", defaultLLMMaxTokens)
	v.SetDefault("llm.timeout_seconds", defaultLLMTimeoutSecs)

	v.SetDefault("database.path", defaultDatabasePath)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
}

// Validate checks the configuration and reports every problem found, not
// just the first. Dry runs relax the board credential requirements since
// nothing will be posted.
func (c *Config) Validate(dryRun bool) error {
	var problems []string

	if len(c.News.Sites) == 0 {
		problems = append(problems, "news.sites must list at least one seed page")
	}
	if c.News.MaxArticles <= 0 {
		problems = append(problems, "news.max_articles must be greater than 0")
	}
	if c.News.ScrapingCacheHours < 0 {
		problems = append(problems, "news.scraping_cache_hours must not be negative")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path must be set")
	}

	if !dryRun {
		if c.Board.BaseURL == "" {
			problems = append(problems, "board.base_url must be set")
		}
		if c.Board.APIToken == "" {
			problems = append(problems, EnvBoardAPIToken+" environment variable is required")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
