// Package dedup decides whether a candidate article has already been
// posted, consulting local submission history first and the board's own
// search index as a last resort.
package dedup

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jonesrussell/towncrier/internal/board"
	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
	"github.com/jonesrussell/towncrier/internal/normalize"
)

// headlineQueryRunes is how much of the headline goes into the
// title-based search query.
const headlineQueryRunes = 50

// Searcher is the slice of the board API the prober needs.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]board.Post, error)
	Duplicates(ctx context.Context, postID string) ([]board.Post, error)
}

// Prober asks the board's search index whether a near-identical post
// already exists. It catches duplicates the local store never saw, such
// as posts made by someone else.
type Prober struct {
	search     Searcher
	log        logger.Interface
	maxResults int
}

func NewProber(search Searcher, log logger.Interface, maxResults int) *Prober {
	return &Prober{
		search:     search,
		log:        log.WithComponent("prober"),
		maxResults: maxResults,
	}
}

// Probe returns a reason string identifying the matching board post, or
// "" when no query finds a match.
//
// A search failure propagates: treating it as "no duplicate" would risk
// posting a visible duplicate. A failure walking one post's duplicates
// listing is logged and skipped, since the direct URL and title
// comparisons for that post already ran.
func (p *Prober) Probe(ctx context.Context, article domain.Article) (string, error) {
	for _, query := range p.queries(article) {
		posts, err := p.search.Search(ctx, query, p.maxResults)
		if err != nil {
			return "", fmt.Errorf("board search: %w", err)
		}

		for _, post := range posts {
			if reason := p.matchPost(ctx, article, post); reason != "" {
				return reason, nil
			}
		}
	}

	return "", nil
}

func (p *Prober) queries(article domain.Article) []string {
	var queries []string

	if parsed, err := url.Parse(article.Link); err == nil && parsed.Host != "" {
		queries = append(queries, "site:"+parsed.Host)
	}

	headline := []rune(article.Headline)
	if len(headline) > headlineQueryRunes {
		headline = headline[:headlineQueryRunes]
	}
	if len(headline) > 0 {
		queries = append(queries, string(headline))
	}

	return queries
}

func (p *Prober) matchPost(ctx context.Context, article domain.Article, post board.Post) string {
	if normalize.URL(article.Link) == normalize.URL(post.URL) {
		return fmt.Sprintf("similar URL found: %s (post %s)", post.URL, post.ID)
	}

	if normalize.TitlesSimilar(article.Headline, post.Title) {
		return fmt.Sprintf("similar title found: %q (post %s)", post.Title, post.ID)
	}

	duplicates, err := p.search.Duplicates(ctx, post.ID)
	if err != nil {
		p.log.Debug("duplicates listing failed, skipping",
			"post_id", post.ID,
			"error", err.Error(),
		)
		return ""
	}

	for _, dup := range duplicates {
		if normalize.URL(article.Link) == normalize.URL(dup.URL) {
			return fmt.Sprintf("duplicate URL found via board: %s (post %s)", dup.URL, dup.ID)
		}
	}

	return ""
}
