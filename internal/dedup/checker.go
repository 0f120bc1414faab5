package dedup

import (
	"context"
	"fmt"

	"github.com/jonesrussell/towncrier/internal/database"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
)

// SubmissionStore is the slice of the submission history the checker
// uses. Lookups are fail-open (nil on miss or store error); Record
// surfaces write failures.
type SubmissionStore interface {
	LookupByURL(ctx context.Context, url string) *database.SubmissionRecord
	LookupByTitle(ctx context.Context, title string) *database.SubmissionRecord
	Record(ctx context.Context, params database.RecordParams) error
}

// RemoteProber asks the board whether a near-identical post exists.
type RemoteProber interface {
	Probe(ctx context.Context, article domain.Article) (string, error)
}

// Checker is the single duplicate-verdict entry point the pipeline
// calls per candidate. Local lookups run first because they are indexed
// and free; the network-bound probe is the last resort, and its hits
// are written back so the next run short-circuits locally.
type Checker struct {
	store   SubmissionStore
	prober  RemoteProber
	log     logger.Interface
	enabled bool
}

func NewChecker(store SubmissionStore, prober RemoteProber, log logger.Interface, enabled bool) *Checker {
	return &Checker{
		store:   store,
		prober:  prober,
		log:     log.WithComponent("dedup"),
		enabled: enabled,
	}
}

// IsDuplicate reports whether the article was already posted, with a
// diagnostic reason naming the matching record or board post. A probe
// search failure is returned as an error: that one candidate is not
// posted, and the caller moves on to the rest of the batch.
func (c *Checker) IsDuplicate(ctx context.Context, article domain.Article) (bool, string, error) {
	if !c.enabled {
		return false, "", nil
	}

	if record := c.store.LookupByURL(ctx, article.Link); record != nil {
		return true, storeReason("URL already submitted", record), nil
	}

	if record := c.store.LookupByTitle(ctx, article.Headline); record != nil {
		return true, storeReason("similar title already submitted", record), nil
	}

	reason, err := c.prober.Probe(ctx, article)
	if err != nil {
		return false, "", fmt.Errorf("remote probe: %w", err)
	}
	if reason == "" {
		return false, "", nil
	}

	// Cache the remote hit locally so future runs skip the probe. The
	// verdict stands even if the write fails; the only cost is probing
	// again next run.
	writeErr := c.store.Record(ctx, database.RecordParams{
		URL:    article.Link,
		Title:  article.Headline,
		Source: database.SourceRemote,
	})
	if writeErr != nil {
		c.log.Warn("caching remote duplicate failed",
			"url", article.Link,
			"error", writeErr.Error(),
		)
	}

	return true, reason, nil
}

// RecordAcceptedSubmission stores a successful post in local history.
// Called only after a real, non-dry-run submission.
func (c *Checker) RecordAcceptedSubmission(ctx context.Context, article domain.Article, submissionID string) error {
	return c.store.Record(ctx, database.RecordParams{
		URL:          article.Link,
		Title:        article.Headline,
		SubmissionID: submissionID,
		Source:       database.SourceLocal,
	})
}

func storeReason(prefix string, record *database.SubmissionRecord) string {
	id := record.SubmissionID.String
	if id == "" {
		id = "unknown"
	}

	return fmt.Sprintf("%s (ID: %s, Date: %s)",
		prefix, id, record.SubmittedAtTime().Format("2006-01-02"))
}
