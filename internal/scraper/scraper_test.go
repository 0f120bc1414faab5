package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jonesrussell/towncrier/internal/database"
	"github.com/jonesrussell/towncrier/internal/fetcher"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/normalize"
	"github.com/jonesrussell/towncrier/internal/scraper"
)

type fakeFetch struct {
	seeds     map[string]string
	pages     map[string]string
	manyCalls [][]string
}

func (f *fakeFetch) FetchSeed(_ context.Context, url string) (string, error) {
	html, ok := f.seeds[url]
	if !ok {
		return "", errors.New("seed unreachable")
	}
	return html, nil
}

func (f *fakeFetch) FetchMany(_ context.Context, urls []string) []fetcher.Result {
	f.manyCalls = append(f.manyCalls, urls)

	results := make([]fetcher.Result, len(urls))
	for i, u := range urls {
		if html, ok := f.pages[u]; ok {
			results[i] = fetcher.Result{URL: u, HTML: html}
		} else {
			results[i] = fetcher.Result{URL: u, Err: errors.New("fetch failed")}
		}
	}

	return results
}

type fakeHistory struct {
	recent   map[string]bool
	recorded []database.RecordScrapeParams
}

func (h *fakeHistory) WasRecentlyScraped(_ context.Context, url string, _ int) bool {
	return h.recent[normalize.URL(url)]
}

func (h *fakeHistory) RecordScrape(_ context.Context, params database.RecordScrapeParams) error {
	h.recorded = append(h.recorded, params)
	return nil
}

func seedHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<a href=%q>link</a>`, href)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func articleHTML(title, body string) string {
	return `<html><head><title>` + title + `</title></head><body><article><h1>` +
		title + `</h1><p>` + body + `</p></article></body></html>`
}

func newScraper(fetch *fakeFetch, history *fakeHistory, sites []string) *scraper.Scraper {
	return scraper.New(fetch, history, logger.NewNoop(), scraper.Config{
		Sites:      sites,
		CacheHours: 24,
	})
}

func TestRunDedupesDiscoveredURLs(t *testing.T) {
	// Two seeds linking the same story under URL variants: only one
	// fetch should be queued.
	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://one.example/": seedHTML(
				"https://town.example/news/a",
				"https://town.example/news/a/",
			),
			"https://two.example/": seedHTML(
				"https://town.example/news/a?utm_source=x",
			),
		},
		pages: map[string]string{
			"https://town.example/news/a": articleHTML(
				"Story A",
				strings.Repeat("A long paragraph about the story. ", 20),
			),
		},
	}
	history := &fakeHistory{recent: map[string]bool{}}

	pages, err := newScraper(fetch, history, []string{"https://one.example/", "https://two.example/"}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fetch.manyCalls) != 1 || len(fetch.manyCalls[0]) != 1 {
		t.Fatalf("expected exactly one queued fetch, got %v", fetch.manyCalls)
	}
	if len(pages) != 1 || pages[0].Headline != "Story A" {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestRunDedupesBatchByContent(t *testing.T) {
	// Different headlines, identical body text: second article drops.
	// Headlines live only in <title> so the extracted bodies are equal.
	body := strings.Repeat("Identical wire copy for both outlets. ", 20)
	wireHTML := func(title string) string {
		return `<html><head><title>` + title + `</title></head><body><article><p>` +
			body + `</p></article></body></html>`
	}

	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://one.example/": seedHTML(
				"https://one.example/news/version-one",
				"https://one.example/news/version-two",
			),
		},
		pages: map[string]string{
			"https://one.example/news/version-one": wireHTML("Mayor Announces Plan"),
			"https://one.example/news/version-two": wireHTML("Plan Announced By Mayor's Office"),
		},
	}
	history := &fakeHistory{recent: map[string]bool{}}

	pages, err := newScraper(fetch, history, []string{"https://one.example/"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1: %+v", len(pages), pages)
	}
	if pages[0].Headline != "Mayor Announces Plan" {
		t.Errorf("kept wrong article: %q", pages[0].Headline)
	}
}

func TestRunSkipsRecentlyScrapedArticles(t *testing.T) {
	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://one.example/": seedHTML(
				"https://one.example/news/cached",
				"https://one.example/news/fresh",
			),
		},
		pages: map[string]string{
			"https://one.example/news/fresh": articleHTML(
				"Fresh Story",
				strings.Repeat("New reporting on a fresh story. ", 20),
			),
		},
	}
	history := &fakeHistory{recent: map[string]bool{
		normalize.URL("https://one.example/news/cached"): true,
	}}

	_, err := newScraper(fetch, history, []string{"https://one.example/"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fetch.manyCalls) != 1 {
		t.Fatalf("manyCalls = %v", fetch.manyCalls)
	}
	for _, queued := range fetch.manyCalls[0] {
		if queued == "https://one.example/news/cached" {
			t.Error("recently scraped article was queued")
		}
	}
}

func TestRunRecordsFailedFetches(t *testing.T) {
	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://one.example/": seedHTML("https://one.example/news/broken"),
		},
		pages: map[string]string{},
	}
	history := &fakeHistory{recent: map[string]bool{}}

	pages, err := newScraper(fetch, history, []string{"https://one.example/"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %+v", pages)
	}

	if len(history.recorded) != 1 {
		t.Fatalf("recorded = %+v", history.recorded)
	}
	rec := history.recorded[0]
	if rec.URL != "https://one.example/news/broken" || rec.Success {
		t.Errorf("failed fetch recorded as %+v", rec)
	}
}

func TestRunSkipsSeedLinksToSeeds(t *testing.T) {
	// A seed linking another seed must not queue it as an article.
	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://one.example/news/": seedHTML("https://two.example/news/"),
			"https://two.example/news/": seedHTML(),
		},
		pages: map[string]string{},
	}
	history := &fakeHistory{recent: map[string]bool{}}

	sites := []string{"https://one.example/news/", "https://two.example/news/"}

	_, err := newScraper(fetch, history, sites).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(fetch.manyCalls) != 0 {
		t.Errorf("seed URL was queued as an article: %v", fetch.manyCalls)
	}
}

func TestRunContinuesPastSeedFailure(t *testing.T) {
	fetch := &fakeFetch{
		seeds: map[string]string{
			"https://up.example/": seedHTML("https://up.example/news/works"),
		},
		pages: map[string]string{
			"https://up.example/news/works": articleHTML(
				"Working Story",
				strings.Repeat("Reporting from the working site. ", 20),
			),
		},
	}
	history := &fakeHistory{recent: map[string]bool{}}

	sites := []string{"https://down.example/", "https://up.example/"}

	pages, err := newScraper(fetch, history, sites).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("got %d pages, want 1", len(pages))
	}
}
