package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/towncrier/internal/board"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/pipeline"
)

type fakeScraper struct {
	pages []domain.ScrapedPage
	err   error
}

func (f *fakeScraper) Run(context.Context) ([]domain.ScrapedPage, error) {
	return f.pages, f.err
}

type fakeAnalyzer struct {
	articles []domain.Article
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, []domain.ScrapedPage) ([]domain.Article, error) {
	return f.articles, f.err
}

type fakeChecker struct {
	duplicates map[string]string // link -> reason
	checkErr   map[string]error
	checked    []string
	recorded   map[string]string // link -> post id
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		duplicates: map[string]string{},
		checkErr:   map[string]error{},
		recorded:   map[string]string{},
	}
}

func (f *fakeChecker) IsDuplicate(_ context.Context, article domain.Article) (bool, string, error) {
	f.checked = append(f.checked, article.Link)
	if err := f.checkErr[article.Link]; err != nil {
		return false, "", err
	}
	if reason, ok := f.duplicates[article.Link]; ok {
		return true, reason, nil
	}
	return false, "", nil
}

func (f *fakeChecker) RecordAcceptedSubmission(_ context.Context, article domain.Article, submissionID string) error {
	f.recorded[article.Link] = submissionID
	return nil
}

type fakePoster struct {
	failLinks map[string]bool
	submitted []string
}

func (f *fakePoster) SubmitAll(_ context.Context, articles []domain.Article) []board.SubmitResult {
	results := make([]board.SubmitResult, 0, len(articles))
	for i, article := range articles {
		f.submitted = append(f.submitted, article.Link)
		if f.failLinks[article.Link] {
			results = append(results, board.SubmitResult{Article: article, Err: errors.New("rejected")})
			continue
		}
		results = append(results, board.SubmitResult{Article: article, PostID: "post" + string(rune('0'+i))})
	}
	return results
}

type fakeRetention struct {
	deleted int64
	days    []int
}

func (f *fakeRetention) PurgeOlderThan(_ context.Context, days int) (int64, error) {
	f.days = append(f.days, days)
	return f.deleted, nil
}

func article(link, headline string, age int) domain.Article {
	return domain.Article{
		Headline:        headline,
		Link:            link,
		Summary:         "summary",
		PublicationDate: time.Now().AddDate(0, 0, -age),
	}
}

type fixture struct {
	scraper     *fakeScraper
	analyzer    *fakeAnalyzer
	checker     *fakeChecker
	poster      *fakePoster
	scrapes     *fakeRetention
	submissions *fakeRetention
	pipeline    *pipeline.Pipeline
}

func newFixture(articles []domain.Article) *fixture {
	f := &fixture{
		scraper:     &fakeScraper{pages: []domain.ScrapedPage{{URL: "https://town.example/news/a"}}},
		analyzer:    &fakeAnalyzer{articles: articles},
		checker:     newFakeChecker(),
		poster:      &fakePoster{failLinks: map[string]bool{}},
		scrapes:     &fakeRetention{},
		submissions: &fakeRetention{},
	}
	f.pipeline = pipeline.New(
		f.scraper, f.analyzer, f.checker, f.poster, f.scrapes, f.submissions,
		logger.NewNoop(),
		pipeline.Config{
			MaxArticles:             5,
			ScrapeRetentionDays:     7,
			SubmissionRetentionDays: 30,
		},
	)
	return f
}

func TestRunPostsAndRecords(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/a", "Story A", 0),
		article("https://town.example/news/b", "Story B", 1),
	})

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Posted != 2 || summary.Failed != 0 || summary.Duplicates != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(f.poster.submitted) != 2 {
		t.Errorf("submitted = %v", f.poster.submitted)
	}
	if len(f.checker.recorded) != 2 {
		t.Errorf("recorded = %v", f.checker.recorded)
	}
	// Retention sweep runs with the configured windows.
	if len(f.scrapes.days) != 1 || f.scrapes.days[0] != 7 {
		t.Errorf("scrape sweep days = %v", f.scrapes.days)
	}
	if len(f.submissions.days) != 1 || f.submissions.days[0] != 30 {
		t.Errorf("submission sweep days = %v", f.submissions.days)
	}
}

func TestRunFiltersInvalidAndStale(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/fresh", "Fresh Story", 0),
		article("https://town.example/news/old", "Old Story", 3),
		{Headline: "", Link: "https://town.example/news/nohead", PublicationDate: time.Now()},
		{Headline: "No Link", Link: "", PublicationDate: time.Now()},
	})

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Candidates != 1 {
		t.Errorf("candidates = %d, want 1", summary.Candidates)
	}
	if len(f.poster.submitted) != 1 || f.poster.submitted[0] != "https://town.example/news/fresh" {
		t.Errorf("submitted = %v", f.poster.submitted)
	}
}

func TestRunSkipsDuplicates(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/dup", "Duplicate Story", 0),
		article("https://town.example/news/new", "New Story", 0),
	})
	f.checker.duplicates["https://town.example/news/dup"] = "URL already submitted"

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Duplicates != 1 || summary.Posted != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(f.poster.submitted) != 1 || f.poster.submitted[0] != "https://town.example/news/new" {
		t.Errorf("submitted = %v", f.poster.submitted)
	}
}

func TestRunCheckFailureSkipsCandidateOnly(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/broken", "Broken Check", 0),
		article("https://town.example/news/fine", "Fine Story", 0),
	})
	f.checker.checkErr["https://town.example/news/broken"] = errors.New("search index down")

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("check failure must not fail the run: %v", err)
	}

	if summary.Failed != 1 || summary.Posted != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunDryRunPostsNothing(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/a", "Story A", 0),
	})
	f.checker.duplicates["https://town.example/news/a"] = "would be duplicate"

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Posted != 0 || len(f.poster.submitted) != 0 {
		t.Errorf("dry run posted: %+v %v", summary, f.poster.submitted)
	}
	if len(f.checker.checked) != 0 {
		t.Error("dry run must skip duplicate checking")
	}
	if len(f.checker.recorded) != 0 {
		t.Error("dry run must not record submissions")
	}
	// The sweep still runs on dry runs.
	if len(f.scrapes.days) != 1 {
		t.Errorf("scrape sweep days = %v", f.scrapes.days)
	}
}

func TestRunRecordsOnlySuccessfulPosts(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/good", "Good Story", 0),
		article("https://town.example/news/bad", "Bad Story", 0),
	})
	f.poster.failLinks["https://town.example/news/bad"] = true

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Posted != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if _, ok := f.checker.recorded["https://town.example/news/bad"]; ok {
		t.Error("failed post must not be recorded")
	}
	if _, ok := f.checker.recorded["https://town.example/news/good"]; !ok {
		t.Error("successful post was not recorded")
	}
}

func TestRunWritesOutputFile(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/a", "Story A", 0),
	})

	path := filepath.Join(t.TempDir(), "news.toml")

	_, err := f.pipeline.Run(context.Background(), pipeline.Options{DryRun: true, OutputPath: path})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "Story A") {
		t.Errorf("output missing article: %s", data)
	}
}

func TestRunCapsArticles(t *testing.T) {
	f := newFixture([]domain.Article{
		article("https://town.example/news/1", "One", 0),
		article("https://town.example/news/2", "Two", 0),
		article("https://town.example/news/3", "Three", 0),
	})
	f.pipeline = pipeline.New(
		f.scraper, f.analyzer, f.checker, f.poster, f.scrapes, f.submissions,
		logger.NewNoop(),
		pipeline.Config{MaxArticles: 2, ScrapeRetentionDays: 7, SubmissionRetentionDays: 30},
	)

	summary, err := f.pipeline.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Candidates != 2 || summary.Posted != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunScrapeFailureFailsRun(t *testing.T) {
	f := newFixture(nil)
	f.scraper.err = errors.New("all seeds down")

	if _, err := f.pipeline.Run(context.Background(), pipeline.Options{}); err == nil {
		t.Fatal("scrape failure must fail the run")
	}
}
