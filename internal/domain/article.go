// Package domain defines the core data types shared across the application.
package domain

import "time"

// Article is one candidate news story moving through the pipeline. The
// shape is fixed: optional data is an empty field, never a missing key.
type Article struct {
	// Headline is the story headline as published.
	Headline string `toml:"headline"`
	// Summary is a short factual summary produced by the analyzer.
	Summary string `toml:"summary"`
	// PublicationDate is the story's publication date (date precision).
	PublicationDate time.Time `toml:"publication_date"`
	// Link is the canonical article URL as published.
	Link string `toml:"link"`
	// Content is extracted body text; empty until extraction runs, and
	// not carried past the analysis stage.
	Content string `toml:"-"`
	// Flair is an optional board category label.
	Flair string `toml:"flair,omitempty"`
}

// Valid reports whether the article carries the fields required for
// dedup checking and posting.
func (a Article) Valid() bool {
	return a.Headline != "" && a.Link != ""
}

// PublishedOnOrAfter reports whether the article's publication date falls
// on or after the given day.
func (a Article) PublishedOnOrAfter(day time.Time) bool {
	y, m, d := day.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return !a.PublicationDate.Before(cutoff)
}

// ScrapedPage is the raw outcome of fetching and extracting one article
// URL during a scrape run.
type ScrapedPage struct {
	URL      string
	Headline string
	Body     string
	Summary  string
	Date     string
}

// Complete reports whether extraction produced enough data for the page
// to become an analysis candidate.
func (p ScrapedPage) Complete() bool {
	return p.Headline != "" && p.Body != ""
}
