// Package scraper discovers article links on configured seed sites,
// fetches and extracts the articles, and deduplicates the batch before
// handing candidates to analysis.
package scraper

import (
	"context"

	"github.com/jonesrussell/towncrier/internal/database"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/fetcher"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/normalize"
)

// PageFetcher is the fetch layer the scraper drives. Seed pages get the
// retrying path; article pages go through the bounded batch path.
type PageFetcher interface {
	FetchSeed(ctx context.Context, url string) (string, error)
	FetchMany(ctx context.Context, urls []string) []fetcher.Result
}

// ScrapeHistory gates article fetches on recency and records outcomes.
type ScrapeHistory interface {
	WasRecentlyScraped(ctx context.Context, url string, windowHours int) bool
	RecordScrape(ctx context.Context, params database.RecordScrapeParams) error
}

// Config holds scrape-run settings.
type Config struct {
	Sites      []string
	CacheHours int
}

// Scraper runs one discovery + extraction pass over the seed sites.
type Scraper struct {
	fetch   PageFetcher
	history ScrapeHistory
	log     logger.Interface
	cfg     Config
}

func New(fetch PageFetcher, history ScrapeHistory, log logger.Interface, cfg Config) *Scraper {
	return &Scraper{
		fetch:   fetch,
		history: history,
		log:     log.WithComponent("scraper"),
		cfg:     cfg,
	}
}

// Run fetches every seed site, collects unique article links, fetches
// the ones not recently scraped, and returns the extracted pages with
// intra-batch duplicates removed. Per-site and per-page failures are
// logged and skipped; Run only fails on context cancellation.
func (s *Scraper) Run(ctx context.Context) ([]domain.ScrapedPage, error) {
	queue := s.discoverLinks(ctx)
	if len(queue) == 0 {
		s.log.Info("no new article links discovered")
		return nil, ctx.Err()
	}

	s.log.Info("fetching article pages", "count", len(queue))

	results := s.fetch.FetchMany(ctx, queue)

	pages := s.extractBatch(ctx, results)

	s.log.Info("scrape complete",
		"fetched", len(results),
		"accepted", len(pages),
	)

	return pages, ctx.Err()
}

// discoverLinks fetches each seed page and collects article links,
// dropping canonical-URL duplicates across seeds, links back to the
// seeds themselves, and links fetched within the recency window. Seed
// pages bypass the recency window unconditionally: skipping one would
// hide every new article behind it.
func (s *Scraper) discoverLinks(ctx context.Context) []string {
	seeds := make(map[string]struct{}, len(s.cfg.Sites))
	for _, site := range s.cfg.Sites {
		seeds[normalize.URL(site)] = struct{}{}
	}

	seen := make(map[string]struct{})

	var queue []string

	for _, site := range s.cfg.Sites {
		html, err := s.fetch.FetchSeed(ctx, site)
		if err != nil {
			s.log.Error("seed page fetch failed", "url", site, "error", err.Error())
			continue
		}

		links := ExtractArticleLinks(html, site)
		s.log.Info("seed page scanned", "url", site, "links", len(links))

		for _, link := range links {
			canonical := normalize.URL(link)

			if _, isSeed := seeds[canonical]; isSeed {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}
			seen[canonical] = struct{}{}

			if s.history.WasRecentlyScraped(ctx, link, s.cfg.CacheHours) {
				s.log.Debug("skipping recently scraped article", "url", link)
				continue
			}

			queue = append(queue, link)
		}
	}

	return queue
}

// extractBatch turns fetch results into deduplicated pages, recording
// every article fetch outcome in scrape history.
func (s *Scraper) extractBatch(ctx context.Context, results []fetcher.Result) []domain.ScrapedPage {
	batch := newBatchSeen()

	var pages []domain.ScrapedPage

	for _, res := range results {
		if res.Err != nil || res.HTML == "" {
			s.recordOutcome(ctx, database.RecordScrapeParams{URL: res.URL})
			continue
		}

		page := ExtractPage(res.URL, res.HTML)
		if !page.Complete() {
			s.log.Debug("page missing headline or body", "url", res.URL)
			s.recordOutcome(ctx, database.RecordScrapeParams{
				URL:      res.URL,
				Headline: page.Headline,
			})
			continue
		}

		s.recordOutcome(ctx, database.RecordScrapeParams{
			URL:      res.URL,
			Headline: page.Headline,
			Content:  page.Body,
			Success:  true,
		})

		if reason := batch.duplicateOf(page); reason != "" {
			s.log.Debug("dropping intra-batch duplicate",
				"url", res.URL,
				"reason", reason,
			)
			continue
		}
		batch.add(page)

		pages = append(pages, page)
	}

	return pages
}

func (s *Scraper) recordOutcome(ctx context.Context, params database.RecordScrapeParams) {
	if err := s.history.RecordScrape(ctx, params); err != nil {
		s.log.Error("record scrape outcome failed", "url", params.URL, "error", err.Error())
	}
}

// batchSeen tracks canonical titles and content fingerprints across one
// extraction pass. It runs after all concurrent fetches complete, on a
// single goroutine, so it needs no locking.
type batchSeen struct {
	titles   map[string]struct{}
	contents map[string]struct{}
}

func newBatchSeen() *batchSeen {
	return &batchSeen{
		titles:   make(map[string]struct{}),
		contents: make(map[string]struct{}),
	}
}

func (b *batchSeen) duplicateOf(page domain.ScrapedPage) string {
	if _, ok := b.titles[normalize.Title(page.Headline)]; ok {
		return "headline already in batch"
	}
	if _, ok := b.contents[normalize.ContentFingerprint(page.Body)]; ok {
		return "body content already in batch"
	}

	return ""
}

func (b *batchSeen) add(page domain.ScrapedPage) {
	b.titles[normalize.Title(page.Headline)] = struct{}{}
	b.contents[normalize.ContentFingerprint(page.Body)] = struct{}{}
}
