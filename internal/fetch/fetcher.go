// Package fetch retrieves the latest item of a tracker's upstream source and
// normalizes it into a tracker.FeedContent.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/tracker"
)

var ErrNoItems = errors.New("no items in feed")

type Result struct {
	FeedTitle  string
	FaviconURL string
	TypeLabel  string
	Content    tracker.FeedContent
}

type Fetcher interface {
	Fetch(ctx context.Context, t *tracker.Tracker) (*Result, error)
}

type FetcherFunc func(ctx context.Context, t *tracker.Tracker) (*Result, error)

func (f FetcherFunc) Fetch(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	return f(ctx, t)
}

// Registry dispatches by tracker type.
type Registry struct {
	fetchers map[tracker.Type]Fetcher
}

// NewRegistry fails unless every known tracker type has a fetcher.
func NewRegistry(fetchers map[tracker.Type]Fetcher) (*Registry, error) {
	var missing []string
	for _, typ := range tracker.AllTypes() {
		if fetchers[typ] == nil {
			missing = append(missing, string(typ))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("no fetcher for types: %s", strings.Join(missing, ", "))
	}

	own := make(map[tracker.Type]Fetcher, len(fetchers))
	for k, v := range fetchers {
		own[k] = v
	}
	return &Registry{fetchers: own}, nil
}

func (r *Registry) Fetch(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	f, ok := r.fetchers[t.Type]
	if !ok {
		return nil, fmt.Errorf("unknown tracker type %q", t.Type)
	}
	res, err := f.Fetch(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Type, err)
	}
	if res.TypeLabel == "" {
		res.TypeLabel = t.Type.Label()
	}
	return res, nil
}

// Fetchers holds the built-in per-type fetchers and the settings they share.
type Fetchers struct {
	client    *Client
	endpoints config.EndpointConfig
	mirrors   []string
	units     string
	now       func() time.Time
}

func NewFetchers(client *Client, cfg config.FetchConfig) *Fetchers {
	units := cfg.WeatherUnits
	if units == "" {
		units = "F"
	}
	return &Fetchers{
		client:    client,
		endpoints: cfg.Endpoints,
		mirrors:   cfg.TwitterMirrors,
		units:     units,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for snapshot pubDates.
func (f *Fetchers) SetClock(now func() time.Time) {
	f.now = now
}

// Map returns the fetcher for every tracker type.
func (f *Fetchers) Map() map[tracker.Type]Fetcher {
	proxy := FetcherFunc(f.fetchProxyFeed)
	return map[tracker.Type]Fetcher{
		tracker.TypeRSS:               proxy,
		tracker.TypeMedium:            proxy,
		tracker.TypeDevTo:             proxy,
		tracker.TypeSubstack:          proxy,
		tracker.TypeMastodon:          proxy,
		tracker.TypeYouTube:           proxy,
		tracker.TypeJSON:              FetcherFunc(f.fetchJSON),
		tracker.TypeGitHubCommits:     FetcherFunc(f.fetchGitHubCommits),
		tracker.TypeGitHubReleases:    FetcherFunc(f.fetchGitHubReleases),
		tracker.TypeGitHubIssues:      FetcherFunc(f.fetchGitHubIssues),
		tracker.TypeGitHubDiscussions: FetcherFunc(f.fetchDirectFeed),
		tracker.TypeTwitch:            FetcherFunc(f.fetchTwitch),
		tracker.TypeCrypto:            FetcherFunc(f.fetchCrypto),
		tracker.TypeWeather:           FetcherFunc(f.fetchWeather),
		tracker.TypeStock:             FetcherFunc(f.fetchStock),
		tracker.TypeTwitter:           FetcherFunc(f.fetchTwitter),
	}
}

// NewDefaultRegistry wires the built-in fetchers.
func NewDefaultRegistry(client *Client, cfg config.FetchConfig) (*Registry, *Fetchers, error) {
	f := NewFetchers(client, cfg)
	r, err := NewRegistry(f.Map())
	if err != nil {
		return nil, nil, err
	}
	return r, f, nil
}

func (f *Fetchers) favicon(rawURL string) string {
	return faviconFor(f.endpoints.Favicon, rawURL)
}
