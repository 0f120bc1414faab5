// Package pipeline orchestrates one full run: scrape, analyze, filter,
// dedup, post, record, and sweep old history.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/towncrier/internal/analyzer"
	"github.com/jonesrussell/towncrier/internal/board"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
)

// Scraper produces the scraped candidate pages for one run.
type Scraper interface {
	Run(ctx context.Context) ([]domain.ScrapedPage, error)
}

// Analyzer selects qualifying articles from the scraped batch.
type Analyzer interface {
	Analyze(ctx context.Context, pages []domain.ScrapedPage) ([]domain.Article, error)
}

// DuplicateChecker is the per-candidate verdict and recording entry
// point.
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, article domain.Article) (bool, string, error)
	RecordAcceptedSubmission(ctx context.Context, article domain.Article, submissionID string) error
}

// Poster submits the surviving articles to the board.
type Poster interface {
	SubmitAll(ctx context.Context, articles []domain.Article) []board.SubmitResult
}

// RetentionStore purges history rows older than the cutoff.
type RetentionStore interface {
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// Options are per-run settings.
type Options struct {
	DryRun     bool
	OutputPath string
}

// Config holds run-independent pipeline settings.
type Config struct {
	MaxArticles             int
	ScrapeRetentionDays     int
	SubmissionRetentionDays int
}

// Summary reports what one run did.
type Summary struct {
	PagesScraped int
	Analyzed     int
	Candidates   int
	Duplicates   int
	Posted       int
	Failed       int
}

// Pipeline wires the run steps together.
type Pipeline struct {
	scraper     Scraper
	analyzer    Analyzer
	checker     DuplicateChecker
	poster      Poster
	scrapes     RetentionStore
	submissions RetentionStore
	log         logger.Interface
	cfg         Config
}

func New(
	scraper Scraper,
	analyzer Analyzer,
	checker DuplicateChecker,
	poster Poster,
	scrapes RetentionStore,
	submissions RetentionStore,
	log logger.Interface,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		scraper:     scraper,
		analyzer:    analyzer,
		checker:     checker,
		poster:      poster,
		scrapes:     scrapes,
		submissions: submissions,
		log:         log.WithComponent("pipeline"),
		cfg:         cfg,
	}
}

// Run executes the full workflow. Per-candidate problems are logged and
// skipped; Run fails only when a whole stage fails (scrape, analysis,
// or writing the requested output file).
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	summary := &Summary{}

	// Tag every log line from this run with a shared id so interleaved
	// scheduled runs stay distinguishable.
	run := *p
	run.log = p.log.With("run_id", uuid.NewString())
	p = &run

	pages, err := p.scraper.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("scrape: %w", err)
	}
	summary.PagesScraped = len(pages)

	articles, err := p.analyzer.Analyze(ctx, pages)
	if err != nil {
		return summary, fmt.Errorf("analyze: %w", err)
	}
	summary.Analyzed = len(articles)

	if opts.OutputPath != "" {
		if err := analyzer.WriteCollection(opts.OutputPath, articles); err != nil {
			return summary, fmt.Errorf("write output: %w", err)
		}
		p.log.Info("wrote analyzed articles", "path", opts.OutputPath)
	}

	candidates := p.filterCandidates(articles)
	summary.Candidates = len(candidates)

	if len(candidates) == 0 {
		p.log.Info("no candidates to post")
		p.sweep(ctx)
		return summary, nil
	}

	if !opts.DryRun {
		candidates = p.filterDuplicates(ctx, candidates, summary)
	}

	if opts.DryRun {
		for _, article := range candidates {
			p.log.Info("[dry run] would post",
				"headline", board.TruncateTitle(article.Headline),
				"url", article.Link,
			)
		}
		p.sweep(ctx)
		return summary, nil
	}

	if len(candidates) == 0 {
		p.log.Info("all candidates were duplicates, nothing to post")
		p.sweep(ctx)
		return summary, nil
	}

	p.post(ctx, candidates, summary)
	p.sweep(ctx)

	p.log.Info("run complete",
		"posted", summary.Posted,
		"failed", summary.Failed,
		"duplicates", summary.Duplicates,
	)

	return summary, nil
}

// filterCandidates drops invalid articles, stale articles (older than
// yesterday), and anything past the per-run article cap.
func (p *Pipeline) filterCandidates(articles []domain.Article) []domain.Article {
	yesterday := time.Now().AddDate(0, 0, -1)

	var kept []domain.Article

	for _, article := range articles {
		if !article.Valid() {
			p.log.Info("dropping invalid article", "headline", article.Headline, "url", article.Link)
			continue
		}
		if !article.PublishedOnOrAfter(yesterday) {
			p.log.Info("dropping stale article",
				"headline", article.Headline,
				"published", article.PublicationDate.Format("2006-01-02"),
			)
			continue
		}

		kept = append(kept, article)

		if p.cfg.MaxArticles > 0 && len(kept) == p.cfg.MaxArticles {
			break
		}
	}

	return kept
}

func (p *Pipeline) filterDuplicates(ctx context.Context, articles []domain.Article, summary *Summary) []domain.Article {
	var unique []domain.Article

	for _, article := range articles {
		dup, reason, err := p.checker.IsDuplicate(ctx, article)
		if err != nil {
			// A failed check terminates this candidate, not the batch.
			p.log.Error("duplicate check failed, skipping candidate",
				"headline", article.Headline,
				"error", err.Error(),
			)
			summary.Failed++
			continue
		}
		if dup {
			p.log.Info("skipping duplicate", "headline", article.Headline, "reason", reason)
			summary.Duplicates++
			continue
		}

		unique = append(unique, article)
	}

	return unique
}

func (p *Pipeline) post(ctx context.Context, articles []domain.Article, summary *Summary) {
	for _, result := range p.poster.SubmitAll(ctx, articles) {
		if result.Err != nil {
			summary.Failed++
			continue
		}
		summary.Posted++

		recordErr := p.checker.RecordAcceptedSubmission(ctx, result.Article, result.PostID)
		if recordErr != nil {
			p.log.Error("recording accepted submission failed",
				"headline", result.Article.Headline,
				"post_id", result.PostID,
				"error", recordErr.Error(),
			)
		}
	}
}

// sweep purges history past retention. Runs after every batch so
// staleness is bounded by run cadence, not chance.
func (p *Pipeline) sweep(ctx context.Context) {
	if deleted, err := p.scrapes.PurgeOlderThan(ctx, p.cfg.ScrapeRetentionDays); err != nil {
		p.log.Error("scrape history sweep failed", "error", err.Error())
	} else if deleted > 0 {
		p.log.Info("swept scrape history", "deleted", deleted)
	}

	if deleted, err := p.submissions.PurgeOlderThan(ctx, p.cfg.SubmissionRetentionDays); err != nil {
		p.log.Error("submission history sweep failed", "error", err.Error())
	} else if deleted > 0 {
		p.log.Info("swept submission history", "deleted", deleted)
	}
}
