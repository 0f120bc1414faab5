// Package board is the HTTP client for the discussion board: searching
// existing posts, walking known duplicates, and submitting links.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
)

// maxTitleRunes is the board's post title limit. Longer headlines are
// truncated with an ellipsis.
const maxTitleRunes = 300

// defaultRequestsPerSecond caps outbound board API calls. The board
// enforces its own anti-spam limits; staying well under them is on us.
const defaultRequestsPerSecond = 1

const maxErrorBodyBytes = 2048

// Post is one existing board post as returned by search and the
// duplicates listing.
type Post struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Config holds board API settings. APIToken comes from the environment.
type Config struct {
	BaseURL   string
	Community string
	UserAgent string
	APIToken  string
	PostDelay time.Duration
	Timeout   time.Duration

	// RequestsPerSecond overrides the default API rate limit.
	RequestsPerSecond float64
}

// Client talks to the board API. All calls share one rate limiter so
// search, duplicates walks, and submissions never burst together.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     logger.Interface
	cfg     Config
}

func NewClient(cfg Config, log logger.Interface) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.WithComponent("board"),
		cfg:     cfg,
	}
}

// Search returns up to limit posts matching the query, newest first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Post, error) {
	endpoint := fmt.Sprintf("%s/api/communities/%s/search", c.cfg.BaseURL, c.cfg.Community)

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "new")

	var payload struct {
		Posts []Post `json:"posts"`
	}
	if err := c.getJSON(ctx, endpoint+"?"+params.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	c.log.Debug("board search", "query", query, "results", len(payload.Posts))

	return payload.Posts, nil
}

// Duplicates returns the posts the board itself knows to be duplicates
// of the given post.
func (c *Client) Duplicates(ctx context.Context, postID string) ([]Post, error) {
	endpoint := fmt.Sprintf("%s/api/posts/%s/duplicates", c.cfg.BaseURL, url.PathEscape(postID))

	var payload struct {
		Posts []Post `json:"posts"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("duplicates of %s: %w", postID, err)
	}

	return payload.Posts, nil
}

// Submit posts one article link and returns the new post's ID.
func (c *Client) Submit(ctx context.Context, article domain.Article) (string, error) {
	endpoint := fmt.Sprintf("%s/api/communities/%s/posts", c.cfg.BaseURL, c.cfg.Community)

	body, err := json.Marshal(map[string]string{
		"title": TruncateTitle(article.Headline),
		"url":   article.Link,
		"flair": article.Flair,
	})
	if err != nil {
		return "", fmt.Errorf("encode post: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &payload); err != nil {
		return "", fmt.Errorf("submit %q: %w", article.Headline, err)
	}

	c.log.Info("posted article", "post_id", payload.ID, "url", article.Link)

	return payload.ID, nil
}

// SubmitResult is the outcome of posting one article in a batch.
type SubmitResult struct {
	Article domain.Article
	PostID  string
	Err     error
}

// SubmitAll posts articles one at a time, waiting the configured delay
// between posts. One failed submission is recorded in its result and
// does not stop the rest of the batch.
func (c *Client) SubmitAll(ctx context.Context, articles []domain.Article) []SubmitResult {
	results := make([]SubmitResult, 0, len(articles))

	for i, article := range articles {
		if i > 0 {
			c.log.Info("waiting before next submission", "delay", c.cfg.PostDelay.String())

			select {
			case <-ctx.Done():
				results = append(results, SubmitResult{Article: article, Err: ctx.Err()})
				continue
			case <-time.After(c.cfg.PostDelay):
			}
		}

		postID, err := c.Submit(ctx, article)
		if err != nil {
			c.log.Error("submission failed", "headline", article.Headline, "error", err.Error())
		}

		results = append(results, SubmitResult{Article: article, PostID: postID, Err: err})
	}

	return results
}

// TruncateTitle enforces the board's title length limit, ending
// truncated titles with an ellipsis.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}

	return string(runes[:maxTitleRunes-1]) + "…"
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("board api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("board api status %d: %s", resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
