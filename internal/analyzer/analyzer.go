// Package analyzer sends scraped pages to a language model and parses
// the TOML-formatted selection of town-relevant stories it returns.
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/towncrier/internal/domain"
	"github.com/jonesrussell/towncrier/internal/logger"
)

// Completer abstracts the model API so tests can substitute a canned
// response.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds analyzer settings. APIKey comes from the environment.
type Config struct {
	Town         string
	MaxArticles  int
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	SystemPrompt string
}

// Analyzer selects town-relevant articles from a scraped batch.
type Analyzer struct {
	completer Completer
	log       logger.Interface
	cfg       Config
}

func New(completer Completer, log logger.Interface, cfg Config) *Analyzer {
	return &Analyzer{
		completer: completer,
		log:       log.WithComponent("analyzer"),
		cfg:       cfg,
	}
}

// NewWithAPIKey builds an Analyzer backed by the Anthropic Messages API.
func NewWithAPIKey(apiKey string, log logger.Interface, cfg Config) *Analyzer {
	return New(&anthropicCompleter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, log, cfg)
}

// Analyze asks the model which of the scraped pages qualify and parses
// its `[[news]]` TOML answer into articles. An empty batch short-circuits
// to no articles without calling the model.
func (a *Analyzer) Analyze(ctx context.Context, pages []domain.ScrapedPage) ([]domain.Article, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	a.log.Info("analyzing scraped batch", "pages", len(pages), "model", a.cfg.Model)

	response, err := a.completer.Complete(ctx, a.systemPrompt(), a.buildPrompt(pages))
	if err != nil {
		return nil, fmt.Errorf("model completion: %w", err)
	}

	articles, err := ParseResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	a.log.Info("analysis complete", "selected", len(articles))

	return articles, nil
}

func (a *Analyzer) systemPrompt() string {
	if a.cfg.SystemPrompt != "" {
		return a.cfg.SystemPrompt
	}

	return defaultSystemPrompt(a.cfg.Town)
}

func (a *Analyzer) buildPrompt(pages []domain.ScrapedPage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Today is %s. Below are %d scraped articles. Select up to %d that qualify.\n",
		time.Now().Format("2006-01-02"), len(pages), a.cfg.MaxArticles)

	for i, page := range pages {
		fmt.Fprintf(&b, "\n--- Article %d ---\n", i+1)
		fmt.Fprintf(&b, "URL: %s\n", page.URL)
		fmt.Fprintf(&b, "Headline: %s\n", page.Headline)
		if page.Date != "" {
			fmt.Fprintf(&b, "Date: %s\n", page.Date)
		}
		fmt.Fprintf(&b, "Content: %s\n", page.Body)
	}

	return b.String()
}

func defaultSystemPrompt(town string) string {
	return fmt.Sprintf(`You are an article analysis bot focused on %[1]s.
Your job is to analyze provided articles and determine if each article is directly about %[1]s (city, government, schools, roads, events, businesses, public safety, infrastructure). Exclude articles not explicitly related to %[1]s.

Requirements
- Scope: only include articles clearly and primarily about %[1]s.
- Time window: only consider articles published in the last 24 hours; verify dates from the provided content.
- Extraction:
  - headline: the on-page headline with site-name suffixes removed.
  - summary: 2-3 sentences covering the main facts. No opinions or boilerplate.
  - publication_date: normalized to YYYY-MM-DD.
  - link: the canonical, final URL of the article.
- Output: produce only valid TOML in this exact format for each story:
    [[news]]
    headline = "story headline"
    summary = "brief summary"
    publication_date = "2025-08-12"
    link = "https://source.com/article"
  If NO qualifying articles are found, output exactly:
    [[news]]
- De-duplicate syndicated or reposted content by selecting the authoritative source.`, town)
}

// anthropicCompleter is the production Completer.
type anthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func (c *anthropicCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return b.String(), nil
}
