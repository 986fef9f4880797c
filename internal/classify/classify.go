// Package classify turns a raw user string into a tracker type and the
// upstream endpoints to poll.
package classify

import (
	"context"
	"net/url"
	"strings"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/tracker"
	"github.com/pders01/ntrack/internal/validation"
)

// Result is the outcome of classification. Only Type, Source, APIEndpoint
// and RedirectURL are persisted on a tracker; the rest is for callers.
type Result struct {
	Type        tracker.Type `json:"type"`
	Source      string       `json:"source"`
	APIEndpoint string       `json:"apiEndpoint"`
	RedirectURL string       `json:"redirectUrl"`

	URL      string `json:"url,omitempty"`
	Location string `json:"location,omitempty"`
	CoinID   string `json:"coinId,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Detector string `json:"detector"`
}

// NeedsConfiguration reports whether the tracker needs titleKey and feedKey
// before it can be fetched.
func (r *Result) NeedsConfiguration() bool {
	return r.Type == tracker.TypeJSON
}

// Target is the input handed to each detector.
type Target struct {
	// Input is the trimmed user string
	Input string
	// URL is the normalized URL, nil when Input is not URL-like
	URL *url.URL
	// Host is the lower cased host without a leading "www."
	Host string
}

// Segments returns the non-empty path segments of the target URL.
func (t *Target) Segments() []string {
	if t.URL == nil {
		return nil
	}
	return strings.FieldsFunc(t.URL.Path, func(r rune) bool { return r == '/' })
}

// Clean returns the URL without query, fragment and trailing slash.
func (t *Target) Clean() string {
	if t.URL == nil {
		return ""
	}
	u := *t.URL
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

// HostIs reports whether the target host is domain or a subdomain of it.
func (t *Target) HostIs(domain string) bool {
	return t.Host == domain || strings.HasSuffix(t.Host, "."+domain)
}

func newTarget(input string) *Target {
	t := &Target{Input: input}
	if u, ok := validation.NormalizeURL(input); ok {
		t.URL = u
		t.Host = strings.TrimPrefix(u.Hostname(), "www.")
	}
	return t
}

// Classifier resolves user input through an ordered detector registry.
// Classification never fails: anything unrecognized becomes an RSS feed.
type Classifier struct {
	registry  *Registry
	client    *fetch.Client
	endpoints config.EndpointConfig
	mirrors   []string
}

// New returns a classifier with the built-in detectors registered.
func New(client *fetch.Client, cfg config.FetchConfig) *Classifier {
	c := &Classifier{
		registry:  NewRegistry(),
		client:    client,
		endpoints: cfg.Endpoints,
		mirrors:   cfg.TwitterMirrors,
	}
	c.registerBuiltins()
	return c
}

// Registry exposes the detector registry so callers can plug in more.
func (c *Classifier) Registry() *Registry {
	return c.registry
}

func (c *Classifier) Classify(ctx context.Context, raw string) *Result {
	input := strings.TrimSpace(raw)
	target := newTarget(input)

	res, name := c.registry.Detect(ctx, target)
	if res == nil {
		res, name = c.defaultRSS(target), "rss"
	}

	res.Source = input
	res.Detector = name
	if res.URL == "" && target.URL != nil {
		res.URL = target.URL.String()
	}
	debuglog.Debugf("classified %q as %s via %s", input, res.Type, name)
	return res
}

func (c *Classifier) defaultRSS(t *Target) *Result {
	feedURL := "https://" + t.Input
	if t.URL != nil {
		feedURL = t.URL.String()
	}
	return &Result{
		Type:        tracker.TypeRSS,
		APIEndpoint: c.proxy(feedURL),
		RedirectURL: feedURL,
	}
}

// proxy wraps a feed URL in the feed-to-JSON service.
func (c *Classifier) proxy(feedURL string) string {
	return c.endpoints.FeedProxy + "?rss_url=" + url.QueryEscape(feedURL)
}
