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

// Submission record sources. "local" rows come from this process's own
// successful posts; "remote" rows were discovered on the board during a
// duplicate probe and cached so future lookups short-circuit locally.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// SubmissionRecord is one row of submission history. The table is
// append-only: repeated attempts produce repeated rows.
type SubmissionRecord struct {
	ID            int64          `db:"id"`
	URL           string         `db:"url"`
	URLHash       string         `db:"url_hash"`
	NormalizedURL string         `db:"normalized_url"`
	Title         string         `db:"title"`
	TitleHash     string         `db:"title_hash"`
	SubmissionID  sql.NullString `db:"submission_id"`
	SubmittedAt   int64          `db:"submitted_at"`
	Source        string         `db:"source"`
}

// SubmittedAtTime returns the submission timestamp as a time.Time.
func (r SubmissionRecord) SubmittedAtTime() time.Time {
	return time.Unix(r.SubmittedAt, 0)
}

// Statistics summarizes the submission history for operator visibility.
type Statistics struct {
	TotalRecords  int64
	BySource      map[string]int64
	RecordsInWeek int64
	StoreLocation string
}

// SubmissionRepository is the durable record of what has been posted or
// found already posted. It owns the submitted_urls table exclusively.
type SubmissionRepository struct {
	db   *sqlx.DB
	log  logger.Interface
	path string
	now  func() time.Time
}

// NewSubmissionRepository creates a new submission history repository.
// path is reported in Statistics, nothing more.
func NewSubmissionRepository(db *sqlx.DB, log logger.Interface, path string) *SubmissionRepository {
	return &SubmissionRepository{
		db:   db,
		log:  log.WithComponent("submission_history"),
		path: path,
		now:  time.Now,
	}
}

// LookupByURL returns the earliest record matching the URL's canonical
// form, or nil when none exists. Read errors degrade to a miss; the
// remote probe still stands between a lost row and a duplicate post.
func (r *SubmissionRepository) LookupByURL(ctx context.Context, rawURL string) *SubmissionRecord {
	urlHash := normalize.Fingerprint(normalize.URL(rawURL))
	return r.lookup(ctx, `SELECT * FROM submitted_urls WHERE url_hash = ? ORDER BY id LIMIT 1`, urlHash)
}

// LookupByTitle returns the earliest record matching the title's
// canonical form, or nil when none exists.
func (r *SubmissionRepository) LookupByTitle(ctx context.Context, title string) *SubmissionRecord {
	titleHash := normalize.Fingerprint(normalize.Title(title))
	return r.lookup(ctx, `SELECT * FROM submitted_urls WHERE title_hash = ? ORDER BY id LIMIT 1`, titleHash)
}

func (r *SubmissionRepository) lookup(ctx context.Context, query, hash string) *SubmissionRecord {
	var record SubmissionRecord
	err := r.db.GetContext(ctx, &record, query, hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			r.log.Warn("submission lookup failed, treating as miss", "error", err)
		}
		return nil
	}
	return &record
}

// RecordParams identifies the item being recorded.
type RecordParams struct {
	URL   string
	Title string
	// SubmissionID is the board's post identifier, when known.
	SubmissionID string
	// Source is SourceLocal or SourceRemote.
	Source string
}

// Record appends a submission row. It never overwrites: the history of
// attempts is the audit trail. Write failures propagate, since a lost
// row here is a future duplicate post.
func (r *SubmissionRepository) Record(ctx context.Context, params RecordParams) error {
	normalizedURL := normalize.URL(params.URL)
	normalizedTitle := normalize.Title(params.Title)

	var submissionID sql.NullString
	if params.SubmissionID != "" {
		submissionID = sql.NullString{String: params.SubmissionID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO submitted_urls
			(url, url_hash, normalized_url, title, title_hash, submission_id, submitted_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		params.URL,
		normalize.Fingerprint(normalizedURL),
		normalizedURL,
		params.Title,
		normalize.Fingerprint(normalizedTitle),
		submissionID,
		r.now().Unix(),
		params.Source,
	)
	if err != nil {
		return fmt.Errorf("record submission for %q: %w", params.URL, err)
	}

	r.log.Debug("recorded submission",
		"title", params.Title, "source", params.Source, "submission_id", params.SubmissionID)
	return nil
}

// PurgeOlderThan deletes submission records older than the given number
// of days and returns how many were removed.
func (r *SubmissionRepository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -days).Unix()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM submitted_urls WHERE submitted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge submission history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge submission history rows affected: %w", err)
	}

	if deleted > 0 {
		r.log.Info("purged old submission records", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}

// Stats returns aggregate counts over the submission history.
func (r *SubmissionRepository) Stats(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		BySource:      make(map[string]int64),
		StoreLocation: r.path,
	}

	if err := r.db.GetContext(ctx, &stats.TotalRecords,
		`SELECT COUNT(*) FROM submitted_urls`); err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM submitted_urls GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("count submissions by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}

	weekAgo := r.now().AddDate(0, 0, -7).Unix()
	if err := r.db.GetContext(ctx, &stats.RecordsInWeek,
		`SELECT COUNT(*) FROM submitted_urls WHERE submitted_at > ?`, weekAgo); err != nil {
		return nil, fmt.Errorf("count recent submissions: %w", err)
	}

	return stats, nil
}
