package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/jonesrussell/towncrier/internal/domain"
)

const (
	contentMaxRunes = 2000
	summaryMaxRunes = 300
)

// articlePathPatterns match URL paths that look like individual stories.
var articlePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/\d{4}/\d{2}/\d{2}/`),
	regexp.MustCompile(`/article/`),
	regexp.MustCompile(`/local-news/`),
	regexp.MustCompile(`/news/`),
	regexp.MustCompile(`/story/`),
	regexp.MustCompile(`/posts/\d+`),
}

// excludedPathFragments mark listing, category, and anchor links that
// match an article pattern but are not stories themselves.
var excludedPathFragments = []string{
	"/news/national/",
	"/category/",
	"/tag/",
	"#",
}

var excludedPagePattern = regexp.MustCompile(`/page/\d+`)

// ExtractArticleLinks pulls story links out of a seed page. Relative
// hrefs are resolved against the seed URL. Returned links are unique
// and keep first-seen document order.
func ExtractArticleLinks(html, seedURL string) []string {
	if html == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	base, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})

	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")

		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		resolved, resolveErr := base.Parse(href)
		if resolveErr != nil {
			return
		}

		absolute := resolved.String()
		if !looksLikeArticle(absolute) {
			return
		}

		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}
		links = append(links, absolute)
	})

	return links
}

func looksLikeArticle(absolute string) bool {
	lower := strings.ToLower(absolute)

	matched := false
	for _, pattern := range articlePathPatterns {
		if pattern.MatchString(lower) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, fragment := range excludedPathFragments {
		if strings.Contains(lower, fragment) {
			return false
		}
	}

	return !excludedPagePattern.MatchString(lower)
}

// headlineSelectors are tried in order; the first non-empty wins.
var headlineSelectors = []string{
	"h1.article-title",
	"h1.headline",
	"h1[itemprop='headline']",
	"h1",
	"h2.article-title",
	"title",
}

// ExtractPage turns fetched article HTML into a ScrapedPage. Body and
// summary come from readability extraction; headline and date fall back
// to common news-site markup when readability comes up short.
func ExtractPage(pageURL, html string) domain.ScrapedPage {
	page := domain.ScrapedPage{URL: pageURL}
	if html == "" {
		return page
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return page
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil {
		page.Headline = strings.TrimSpace(article.Title)
		page.Body = truncateRunes(collapseWhitespace(article.TextContent), contentMaxRunes)
		page.Summary = truncateRunes(strings.TrimSpace(article.Excerpt), summaryMaxRunes)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page
	}

	if page.Headline == "" {
		page.Headline = extractHeadline(doc)
	}
	if page.Body == "" {
		page.Body = extractBody(doc)
	}
	if page.Summary == "" && page.Body != "" {
		page.Summary = truncateRunes(page.Body, summaryMaxRunes)
	}
	page.Date = extractDate(doc)

	return page
}

// bodySelectors locate article body containers on pages readability
// cannot score, tried in order.
var bodySelectors = []string{
	"article",
	"div.article-content",
	"div.story-content",
	"div.entry-content",
	"main",
	"div[itemprop='articleBody']",
}

// maxBodyParagraphs bounds how much of a fallback-extracted body we keep.
const maxBodyParagraphs = 10

func extractBody(doc *goquery.Document) string {
	for _, selector := range bodySelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}

		var paragraphs []string

		container.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if text := strings.TrimSpace(sel.Text()); text != "" {
				paragraphs = append(paragraphs, text)
			}
			return len(paragraphs) < maxBodyParagraphs
		})

		if len(paragraphs) > 0 {
			return truncateRunes(strings.Join(paragraphs, " "), contentMaxRunes)
		}
	}

	return ""
}

func extractHeadline(doc *goquery.Document) string {
	for _, selector := range headlineSelectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	return ""
}

// textDatePatterns find a publication date in free text when the page
// carries no structured date markup.
var textDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\w*\s+\d{1,2},?\s+\d{4}`),
}

func extractDate(doc *goquery.Document) string {
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if day := isoDay(dt); day != "" {
			return day
		}
	}

	for _, selector := range []string{
		"meta[property='article:published_time']",
		"meta[name='publish_date']",
	} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if day := isoDay(content); day != "" {
				return day
			}
		}
	}

	for _, selector := range []string{"span.date", "div.published-date"} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}

	text := doc.Text()
	for _, pattern := range textDatePatterns {
		if match := pattern.FindString(text); match != "" {
			return match
		}
	}

	return ""
}

// isoDay reduces an RFC 3339-ish timestamp to its date portion.
func isoDay(value string) string {
	value = strings.TrimSpace(strings.Replace(value, "Z", "+00:00", 1))

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}

	return ""
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}
