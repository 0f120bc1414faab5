// Package normalize provides canonical forms for URLs and headlines,
// plus content fingerprinting. These canonical forms are the lookup keys
// for every duplicate-detection path in the application, so all of them
// are deterministic, pure, and idempotent under re-application.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// ContentPrefixLength is the number of leading characters of extracted
// body text that participate in the content fingerprint.
const ContentPrefixLength = 500

// trackingPrefixes match query parameter keys added by analytics tooling.
var trackingPrefixes = []string{"utm_", "fbclid", "gclid"}

// trackingSubstrings match whole key=value tokens carrying referral noise.
var trackingSubstrings = []string{"ref=", "source="}

// titlePrefixes are wire-service lead-ins stripped from headlines.
var titlePrefixes = []string{"breaking:", "update:", "news:", "report:"}

// titleSuffixes are outlet taglines stripped from headlines.
var titleSuffixes = []string{
	"- cnn",
	"| reuters",
	"| ap news",
	"- bbc",
	"- updated",
	"- update",
	"(updated)",
	"(update)",
}

// URL returns the canonical form of a raw URL: scheme and host lowered,
// leading "www." removed, trailing slash stripped, fragment dropped, and
// tracking query parameters removed while every other parameter keeps its
// original relative order. Malformed input is normalized best-effort with
// plain string manipulation; URL never fails.
func URL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return fallbackURL(raw)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	if parsed.Scheme != "" {
		b.WriteString(strings.ToLower(parsed.Scheme))
		b.WriteString("://")
	}
	b.WriteString(host)
	b.WriteString(path)

	if query := filterQuery(parsed.RawQuery); query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}

	return b.String()
}

// fallbackURL normalizes input that net/url could not parse or that has
// no recognizable host. A cache miss on an odd URL is harmless; raising
// an error here would not be.
func fallbackURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	if i := strings.Index(s, "#"); i != -1 {
		s = s[:i]
	}

	var query string
	if i := strings.Index(s, "?"); i != -1 {
		s, query = s[:i], s[i+1:]
	}

	s = strings.TrimSuffix(s, "/")

	if filtered := filterQuery(query); filtered != "" {
		return s + "?" + filtered
	}
	return s
}

// filterQuery drops tracking parameters from a raw query string while
// preserving the relative order of the remaining key=value tokens.
// url.Values is deliberately avoided: it re-sorts parameters, which would
// break canonicalization idempotence for multi-parameter URLs.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, token := range strings.Split(rawQuery, "&") {
		if token == "" || isTrackingParam(strings.ToLower(token)) {
			continue
		}
		kept = append(kept, token)
	}

	return strings.Join(kept, "&")
}

func isTrackingParam(token string) bool {
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	for _, substr := range trackingSubstrings {
		if strings.Contains(token, substr) {
			return true
		}
	}
	return false
}

// Title returns the canonical form of a headline: internal whitespace
// collapsed, lower-cased, and one matching wire-service prefix plus one
// matching outlet suffix stripped.
func Title(raw string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(raw), " "))

	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(normalized[len(prefix):])
			break
		}
	}

	for _, suffix := range titleSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			normalized = strings.TrimSpace(normalized[:len(normalized)-len(suffix)])
			break
		}
	}

	return normalized
}

// Fingerprint returns the hex-encoded SHA-256 digest of the UTF-8 text.
// Hash collisions are treated as certain duplicates; in this domain a
// false positive costs one skipped article, a false negative costs a
// visible duplicate post.
func Fingerprint(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ContentFingerprint fingerprints the first ContentPrefixLength characters
// of extracted body text, lower-cased and trimmed. Near-duplicate article
// bodies (syndicated copies with differing tails) collide on purpose.
func ContentFingerprint(content string) string {
	runes := []rune(content)
	if len(runes) > ContentPrefixLength {
		runes = runes[:ContentPrefixLength]
	}
	return Fingerprint(strings.TrimSpace(strings.ToLower(string(runes))))
}

// minSimilarTitleLength is the canonical-title length below which the
// substring rule is too noisy to apply.
const minSimilarTitleLength = 20

// similarLengthRatio is the minimum shorter/longer length ratio for the
// substring rule.
const similarLengthRatio = 0.8

// TitlesSimilar reports whether two headlines describe the same story:
// their canonical forms are equal, or both exceed minSimilarTitleLength
// characters, the shorter is a substring of the longer, and the length
// ratio exceeds similarLengthRatio. The substring rule catches truncated
// and lightly elaborated variants of the same wire story.
func TitlesSimilar(a, b string) bool {
	normA := Title(a)
	normB := Title(b)

	if normA == normB {
		return true
	}

	if len(normA) <= minSimilarTitleLength || len(normB) <= minSimilarTitleLength {
		return false
	}

	shorter, longer := normA, normB
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	return strings.Contains(longer, shorter) &&
		float64(len(shorter))/float64(len(longer)) > similarLengthRatio
}
