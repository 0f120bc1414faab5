package analyzer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jonesrussell/towncrier/internal/domain"
)

// ErrNoTOMLContent means the model response carried no `[[news]]` block.
var ErrNoTOMLContent = errors.New("no [[news]] TOML content in response")

var fencedTOMLPattern = regexp.MustCompile("(?s)```(?:toml)?\\s*(\\[\\[news\\]\\].*?)```")

// dateOnlyLayout is the publication date format the model is asked for.
const dateOnlyLayout = "2006-01-02"

// newsItem is the wire shape of one [[news]] entry. Dates arrive as
// plain strings, not TOML datetimes.
type newsItem struct {
	Headline        string `toml:"headline"`
	Summary         string `toml:"summary"`
	PublicationDate string `toml:"publication_date"`
	Link            string `toml:"link"`
	Flair           string `toml:"flair,omitempty"`
}

type newsDocument struct {
	News []newsItem `toml:"news"`
}

// ExtractTOML pulls the `[[news]]` TOML out of a model response,
// preferring a fenced code block, falling back to everything from the
// first `[[news]]` onward. Returns "" when the response has none.
func ExtractTOML(response string) string {
	if !strings.Contains(response, "[[news]]") {
		return ""
	}

	if match := fencedTOMLPattern.FindStringSubmatch(response); match != nil {
		return strings.TrimSpace(match[1])
	}

	return strings.TrimSpace(response[strings.Index(response, "[[news]]"):])
}

// ParseResponse extracts and parses the model's TOML answer. A lone
// empty `[[news]]` entry is the model's "nothing qualified" signal and
// yields an empty list.
func ParseResponse(response string) ([]domain.Article, error) {
	content := ExtractTOML(response)
	if content == "" {
		return nil, ErrNoTOMLContent
	}

	var doc newsDocument
	if err := toml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal news TOML: %w", err)
	}

	articles := make([]domain.Article, 0, len(doc.News))

	for _, item := range doc.News {
		if item.Headline == "" && item.Link == "" {
			continue
		}

		date, err := time.Parse(dateOnlyLayout, item.PublicationDate)
		if err != nil {
			// An unparseable date falls back to today rather than
			// discarding the story.
			date = time.Now()
		}

		articles = append(articles, domain.Article{
			Headline:        item.Headline,
			Summary:         item.Summary,
			PublicationDate: date,
			Link:            item.Link,
			Flair:           item.Flair,
		})
	}

	return articles, nil
}

// WriteCollection writes articles as a `[[news]]` TOML file, creating
// parent directories as needed.
func WriteCollection(path string, articles []domain.Article) error {
	doc := newsDocument{News: make([]newsItem, 0, len(articles))}

	for _, article := range articles {
		doc.News = append(doc.News, newsItem{
			Headline:        article.Headline,
			Summary:         article.Summary,
			PublicationDate: article.PublicationDate.Format(dateOnlyLayout),
			Link:            article.Link,
			Flair:           article.Flair,
		})
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal news TOML: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
