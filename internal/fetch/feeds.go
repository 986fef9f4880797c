package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/tracker"
)

// proxyResponse is the feed-to-JSON service payload.
type proxyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Feed    struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"feed"`
	Items []struct {
		Title       string `json:"title"`
		PubDate     string `json:"pubDate"`
		Link        string `json:"link"`
		Description string `json:"description"`
		Content     string `json:"content"`
	} `json:"items"`
}

func (f *Fetchers) fetchProxyFeed(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var data proxyResponse
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &data); err != nil {
		return nil, err
	}
	if data.Status != "ok" {
		if data.Message != "" {
			return nil, fmt.Errorf("feed proxy: %s", data.Message)
		}
		return nil, fmt.Errorf("feed proxy status %q", data.Status)
	}
	if len(data.Items) == 0 {
		return nil, ErrNoItems
	}

	item := data.Items[0]
	body := item.Description
	if body == "" {
		body = item.Content
	}

	title := data.Feed.Title
	if title == "" {
		title = "RSS Feed"
	}

	return &Result{
		FeedTitle:  title,
		FaviconURL: f.favicon(t.Source),
		Content: tracker.FeedContent{
			DisplayedContent: itemTitle(item.Title, body),
			FetchedContent:   excerpt(body),
			PubDate:          parsePubDate(item.PubDate, f.now()),
			Link:             item.Link,
		},
	}, nil
}

func (f *Fetchers) fetchDirectFeed(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	return f.directFeed(ctx, t.APIEndpoint)
}

// directFeed fetches and parses an RSS or Atom document itself.
func (f *Fetchers) directFeed(ctx context.Context, feedURL string) (*Result, error) {
	body, err := f.client.Get(ctx, feedURL, "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, ErrNoItems
	}

	item := feed.Items[0]
	content := item.Content
	if content == "" {
		content = item.Description
	}

	link := item.Link
	if link == "" {
		link = feedURL
	}

	pub := f.now()
	switch {
	case item.PublishedParsed != nil:
		pub = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		pub = item.UpdatedParsed.UTC()
	}

	title := strings.TrimSpace(feed.Title)
	if title == "" {
		title = "Feed"
	}

	return &Result{
		FeedTitle:  title,
		FaviconURL: f.favicon(feedURL),
		Content: tracker.FeedContent{
			DisplayedContent: itemTitle(item.Title, content),
			FetchedContent:   excerpt(content),
			PubDate:          pub,
			Link:             link,
		},
	}, nil
}

// fetchTwitter walks the mirror list and returns the first feed that loads.
func (f *Fetchers) fetchTwitter(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	user := twitterUser(t.Source)
	if user == "" {
		return nil, fmt.Errorf("no username in %q", t.Source)
	}

	urls := make([]string, 0, len(f.mirrors))
	for _, m := range f.mirrors {
		urls = append(urls, strings.TrimRight(m, "/")+"/"+user+"/rss")
	}
	if len(urls) == 0 {
		urls = append(urls, t.APIEndpoint)
	}

	lastErr := fmt.Errorf("failed to fetch @%s feed", user)
	for _, u := range urls {
		res, err := f.directFeed(ctx, u)
		if err == nil {
			res.FeedTitle = "X/Twitter: @" + user
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		debuglog.Warnf("twitter mirror %s failed: %v", u, err)
		lastErr = err
	}
	return nil, lastErr
}

func twitterUser(source string) string {
	return strings.TrimPrefix(lastSegment(source), "@")
}
