package dedup_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/towncrier/internal/database"
	"github.com/jonesrussell/towncrier/internal/dedup"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/normalize"
)

// memoryStore is an in-memory stand-in for the submission repository
// with the same canonical-key lookup behavior.
type memoryStore struct {
	byURL     map[string]*database.SubmissionRecord
	byTitle   map[string]*database.SubmissionRecord
	recordErr error
	recorded  []database.RecordParams
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		byURL:   make(map[string]*database.SubmissionRecord),
		byTitle: make(map[string]*database.SubmissionRecord),
	}
}

func (s *memoryStore) LookupByURL(_ context.Context, url string) *database.SubmissionRecord {
	return s.byURL[normalize.URL(url)]
}

func (s *memoryStore) LookupByTitle(_ context.Context, title string) *database.SubmissionRecord {
	return s.byTitle[normalize.Title(title)]
}

func (s *memoryStore) Record(_ context.Context, params database.RecordParams) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, params)

	record := &database.SubmissionRecord{
		URL:          params.URL,
		Title:        params.Title,
		SubmissionID: sql.NullString{String: params.SubmissionID, Valid: params.SubmissionID != ""},
		SubmittedAt:  time.Now().Unix(),
		Source:       params.Source,
	}
	s.byURL[normalize.URL(params.URL)] = record
	s.byTitle[normalize.Title(params.Title)] = record

	return nil
}

type fakeProber struct {
	reason string
	err    error
	calls  int
}

func (p *fakeProber) Probe(context.Context, domain.Article) (string, error) {
	p.calls++
	return p.reason, p.err
}

func stored(t *testing.T, store *memoryStore, url, title, submissionID string) {
	t.Helper()
	if err := store.Record(context.Background(), database.RecordParams{
		URL: url, Title: title, SubmissionID: submissionID, Source: database.SourceLocal,
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func TestIsDuplicateByURL(t *testing.T) {
	store := newMemoryStore()
	stored(t, store, "https://town.example/news/a", "Original Title", "sub42")
	prober := &fakeProber{}

	checker := dedup.NewChecker(store, prober, logger.NewNoop(), true)

	dup, reason, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "A Completely Rewritten Title",
		Link:     "https://www.town.example/news/a/",
	})
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Fatal("same canonical URL must be a duplicate")
	}
	if !strings.Contains(reason, "sub42") {
		t.Errorf("reason = %q, want stored submission id", reason)
	}
	if prober.calls != 0 {
		t.Error("prober must not run when local lookup hits")
	}
}

func TestIsDuplicateBySimilarTitle(t *testing.T) {
	store := newMemoryStore()
	stored(t, store, "https://town.example/news/a", "Breaking: Major News Story", "sub7")

	checker := dedup.NewChecker(store, &fakeProber{}, logger.NewNoop(), true)

	dup, reason, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "major news story",
		Link:     "https://elsewhere.example/item/9",
	})
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Fatal("canonically equal titles must be a duplicate")
	}
	if !strings.Contains(reason, "title") {
		t.Errorf("reason = %q, want title-based reason", reason)
	}
}

func TestIsDuplicateNonDuplicate(t *testing.T) {
	store := newMemoryStore()
	stored(t, store, "https://town.example/news/a", "Breaking: Major News Story", "sub7")

	checker := dedup.NewChecker(store, &fakeProber{}, logger.NewNoop(), true)

	dup, reason, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "Completely Different News",
		Link:     "https://town.example/news/b",
	})
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup || reason != "" {
		t.Errorf("got (%v, %q), want (false, \"\")", dup, reason)
	}
}

func TestIsDuplicateDisabled(t *testing.T) {
	store := newMemoryStore()
	stored(t, store, "https://town.example/news/a", "Stored Title", "sub1")
	prober := &fakeProber{reason: "would match"}

	checker := dedup.NewChecker(store, prober, logger.NewNoop(), false)

	dup, _, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "Stored Title",
		Link:     "https://town.example/news/a",
	})
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("disabled checker must never flag duplicates")
	}
	if prober.calls != 0 {
		t.Error("disabled checker must not probe")
	}
}

func TestRemoteHitIsCachedLocally(t *testing.T) {
	store := newMemoryStore()
	prober := &fakeProber{reason: "similar URL found: https://town.example/news/a (post p1)"}

	checker := dedup.NewChecker(store, prober, logger.NewNoop(), true)

	article := domain.Article{
		Headline: "Fresh Story Headline",
		Link:     "https://town.example/news/a",
	}
	ctx := context.Background()

	dup, _, err := checker.IsDuplicate(ctx, article)
	if err != nil || !dup {
		t.Fatalf("first check: dup=%v err=%v", dup, err)
	}
	if prober.calls != 1 {
		t.Fatalf("prober calls = %d, want 1", prober.calls)
	}
	if len(store.recorded) != 1 || store.recorded[0].Source != database.SourceRemote {
		t.Fatalf("remote hit not cached: %+v", store.recorded)
	}

	// Second check short-circuits on the local store.
	dup, _, err = checker.IsDuplicate(ctx, article)
	if err != nil || !dup {
		t.Fatalf("second check: dup=%v err=%v", dup, err)
	}
	if prober.calls != 1 {
		t.Errorf("prober ran again (%d calls) despite cached remote hit", prober.calls)
	}
}

func TestProbeFailurePropagates(t *testing.T) {
	store := newMemoryStore()
	prober := &fakeProber{err: errors.New("search index down")}

	checker := dedup.NewChecker(store, prober, logger.NewNoop(), true)

	_, _, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "Some Headline",
		Link:     "https://town.example/news/x",
	})
	if err == nil {
		t.Fatal("probe failure must propagate")
	}
}

func TestRemoteCacheWriteFailureKeepsVerdict(t *testing.T) {
	store := newMemoryStore()
	store.recordErr = errors.New("disk full")
	prober := &fakeProber{reason: "similar URL found (post p1)"}

	checker := dedup.NewChecker(store, prober, logger.NewNoop(), true)

	dup, reason, err := checker.IsDuplicate(context.Background(), domain.Article{
		Headline: "Some Headline",
		Link:     "https://town.example/news/x",
	})
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup || reason == "" {
		t.Error("verdict must stand when write-back fails")
	}
}

func TestRecordAcceptedSubmission(t *testing.T) {
	store := newMemoryStore()
	checker := dedup.NewChecker(store, &fakeProber{}, logger.NewNoop(), true)

	err := checker.RecordAcceptedSubmission(context.Background(), domain.Article{
		Headline: "Posted Story",
		Link:     "https://town.example/news/posted",
	}, "post99")
	if err != nil {
		t.Fatalf("RecordAcceptedSubmission: %v", err)
	}

	if len(store.recorded) != 1 {
		t.Fatalf("recorded = %+v", store.recorded)
	}
	rec := store.recorded[0]
	if rec.Source != database.SourceLocal || rec.SubmissionID != "post99" {
		t.Errorf("recorded = %+v", rec)
	}

	store.recordErr = errors.New("locked")
	if err := checker.RecordAcceptedSubmission(context.Background(), domain.Article{
		Headline: "Another", Link: "https://town.example/news/y",
	}, "post100"); err == nil {
		t.Error("write failure must propagate")
	}
}
