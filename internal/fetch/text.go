package fetch

import (
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const (
	excerptLength  = 150
	fallbackLength = 100
	untitled       = "New post"
)

var strict = bluemonday.StrictPolicy()

// cleanText strips markup, decodes entities and collapses whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func excerpt(s string) string {
	return truncate(cleanText(s), excerptLength)
}

// itemTitle returns title, or the start of the body when the item has no
// usable title, or a placeholder.
func itemTitle(title, body string) string {
	title = cleanText(title)
	if title != "" && title != "Untitled" {
		return title
	}
	if b := truncate(cleanText(body), fallbackLength); b != "" {
		return b
	}
	return untitled
}

var pubDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// parsePubDate falls back to now for missing or unparseable dates.
func parsePubDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return now
}

// faviconFor builds a favicon service URL for the host of rawURL.
func faviconFor(service, rawURL string) string {
	if service == "" || rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	q := url.Values{}
	q.Set("domain", u.Hostname())
	q.Set("sz", "64")
	return service + "?" + q.Encode()
}

// lastSegment returns the final path segment of a URL-ish source, ignoring
// any query string.
func lastSegment(source string) string {
	path, _, _ := strings.Cut(source, "?")
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return source
	}
	return parts[len(parts)-1]
}
