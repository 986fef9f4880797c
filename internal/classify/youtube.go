package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var errNoChannelID = errors.New("channel id not found")

var (
	channelIDPattern = regexp.MustCompile(`^UC[A-Za-z0-9_-]{10,}$`)
	// fallbacks for pages where the id only appears in inline script data
	channelIDScripts = []*regexp.Regexp{
		regexp.MustCompile(`"channelId":"(UC[^"]+)"`),
		regexp.MustCompile(`"browseId":"(UC[^"]+)"`),
		regexp.MustCompile(`channel/(UC[A-Za-z0-9_-]+)`),
	}
)

// youTubeChannelID resolves an @handle to its UC… channel id by reading the
// channel page.
func (c *Classifier) youTubeChannelID(ctx context.Context, handle string) (string, error) {
	page := strings.TrimRight(c.endpoints.YouTube, "/") + "/@" + url.PathEscape(handle)
	body, err := c.client.Get(ctx, page, "text/html")
	if err != nil {
		return "", err
	}
	if id := channelIDFromPage(body); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("@%s: %w", handle, errNoChannelID)
}

func channelIDFromPage(body []byte) string {
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if id, ok := doc.Find(`meta[itemprop="channelId"], meta[itemprop="identifier"]`).First().Attr("content"); ok && channelIDPattern.MatchString(id) {
			return id
		}
		for _, sel := range []string{`link[rel="canonical"]`, `meta[property="og:url"]`} {
			s := doc.Find(sel).First()
			ref, ok := s.Attr("href")
			if !ok {
				ref, ok = s.Attr("content")
			}
			if !ok {
				continue
			}
			if _, rest, found := strings.Cut(ref, "/channel/"); found {
				id, _, _ := strings.Cut(rest, "/")
				if channelIDPattern.MatchString(id) {
					return id
				}
			}
		}
	}

	for _, p := range channelIDScripts {
		if m := p.FindSubmatch(body); m != nil {
			return string(m[1])
		}
	}
	return ""
}
