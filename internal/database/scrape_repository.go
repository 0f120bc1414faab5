package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/normalize"
)

// ScrapeRecord is one row of scrape history: the latest fetch attempt for
// a canonical URL, successful or not.
type ScrapeRecord struct {
	ID            int64          `db:"id"`
	URL           string         `db:"url"`
	URLHash       string         `db:"url_hash"`
	NormalizedURL string         `db:"normalized_url"`
	Headline      sql.NullString `db:"headline"`
	ContentHash   sql.NullString `db:"content_hash"`
	ScrapedAt     int64          `db:"scraped_at"`
	ScrapeSuccess bool           `db:"scrape_success"`
}

// ScrapedAtTime returns the scrape timestamp as a time.Time.
func (r ScrapeRecord) ScrapedAtTime() time.Time {
	return time.Unix(r.ScrapedAt, 0)
}

// RecordScrapeParams carries the outcome of one fetch attempt.
type RecordScrapeParams struct {
	URL      string
	Headline string
	Content  string
	Success  bool
}

// ScrapeRepository persists fetch outcomes and answers recency queries.
// It owns the scraped_articles table exclusively.
type ScrapeRepository struct {
	db      *sqlx.DB
	log     logger.Interface
	enabled bool
	now     func() time.Time
}

// NewScrapeRepository creates a new scrape history repository. enabled
// gates the recency check: when false, WasRecentlyScraped always misses
// regardless of history.
func NewScrapeRepository(db *sqlx.DB, log logger.Interface, enabled bool) *ScrapeRepository {
	return &ScrapeRepository{
		db:      db,
		log:     log.WithComponent("scrape_history"),
		enabled: enabled,
		now:     time.Now,
	}
}

// WasRecentlyScraped reports whether the URL's canonical form was fetched
// within the last windowHours. A store error is a cache miss, never a
// failure: skipping a fetch wrongly would lose an article, re-fetching
// wrongly only costs bandwidth.
func (r *ScrapeRepository) WasRecentlyScraped(ctx context.Context, rawURL string, windowHours int) bool {
	if !r.enabled {
		return false
	}

	urlHash := normalize.Fingerprint(normalize.URL(rawURL))
	cutoff := r.now().Add(-time.Duration(windowHours) * time.Hour).Unix()

	var scrapedAt int64
	err := r.db.GetContext(ctx, &scrapedAt,
		`SELECT scraped_at FROM scraped_articles WHERE url_hash = ? AND scraped_at > ?`,
		urlHash, cutoff,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.log.Warn("recency lookup failed, treating as miss", "url", rawURL, "error", err)
		}
		return false
	}

	r.log.Debug("url recently scraped, skipping",
		"url", rawURL, "scraped_at", time.Unix(scrapedAt, 0))
	return true
}

// RecordScrape upserts the fetch outcome for a URL, keyed by the hash of
// its canonical form. The latest attempt wins. Write failures propagate:
// silently losing history risks duplicate work and duplicate posts.
func (r *ScrapeRepository) RecordScrape(ctx context.Context, params RecordScrapeParams) error {
	normalized := normalize.URL(params.URL)
	urlHash := normalize.Fingerprint(normalized)

	var headline sql.NullString
	if params.Headline != "" {
		headline = sql.NullString{String: params.Headline, Valid: true}
	}

	var contentHash sql.NullString
	if params.Content != "" {
		contentHash = sql.NullString{String: normalize.ContentFingerprint(params.Content), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scraped_articles
			(url, url_hash, normalized_url, headline, content_hash, scraped_at, scrape_success)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
			url = excluded.url,
			normalized_url = excluded.normalized_url,
			headline = excluded.headline,
			content_hash = excluded.content_hash,
			scraped_at = excluded.scraped_at,
			scrape_success = excluded.scrape_success`,
		params.URL, urlHash, normalized, headline, contentHash, r.now().Unix(), params.Success,
	)
	if err != nil {
		return fmt.Errorf("record scrape for %q: %w", params.URL, err)
	}

	r.log.Debug("recorded scrape", "url", params.URL, "success", params.Success)
	return nil
}

// GetByURL returns the stored record for a URL's canonical form, or nil
// when none exists.
func (r *ScrapeRepository) GetByURL(ctx context.Context, rawURL string) (*ScrapeRecord, error) {
	urlHash := normalize.Fingerprint(normalize.URL(rawURL))

	var record ScrapeRecord
	err := r.db.GetContext(ctx, &record,
		`SELECT * FROM scraped_articles WHERE url_hash = ?`, urlHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scrape record for %q: %w", rawURL, err)
	}
	return &record, nil
}

// PurgeOlderThan deletes scrape records older than the given number of
// days and returns how many were removed. The single DELETE statement is
// safe to run concurrently with reads and writes.
func (r *ScrapeRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -days).Unix()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scraped_articles WHERE scraped_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge scrape history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge scrape history rows affected: %w", err)
	}

	if deleted > 0 {
		r.log.Info("purged old scrape records", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}
