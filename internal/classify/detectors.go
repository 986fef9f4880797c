package classify

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/tracker"
)

const (
	PriorityCrypto   = 100
	PriorityWeather  = 90
	PriorityStock    = 80
	PriorityJSON     = 70
	PriorityTwitch   = 60
	PriorityMedium   = 59
	PriorityDevTo    = 58
	PrioritySubstack = 57
	PriorityTwitter  = 56
	PriorityMastodon = 55
	PriorityYouTube  = 54
	PriorityGitHub   = 53
	PriorityReddit   = 52
)

const defaultTwitterRSS = "https://xcancel.com"

// coins maps tickers and names to CoinGecko ids.
var coins = map[string]string{
	"bitcoin": "bitcoin", "btc": "bitcoin",
	"ethereum": "ethereum", "eth": "ethereum",
	"cardano": "cardano", "ada": "cardano",
	"ripple": "ripple", "xrp": "ripple",
	"dogecoin": "dogecoin", "doge": "dogecoin",
	"solana": "solana", "sol": "solana",
	"polkadot": "polkadot", "dot": "polkadot",
	"litecoin": "litecoin", "ltc": "litecoin",
}

var (
	weatherPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^weather\s+(?:in|for)\s+(.+)$`),
		regexp.MustCompile(`(?i)^(.+)\s+weather$`),
		regexp.MustCompile(`(?i)^weather\s+(.+)$`),
	}
	tickerPattern  = regexp.MustCompile(`^[A-Za-z]{1,5}$`)
	twitterProfile = regexp.MustCompile(`^/([A-Za-z0-9_]+)/?$`)
)

// reserved X/Twitter paths that look like handles.
var reservedHandles = map[string]bool{
	"home":          true,
	"explore":       true,
	"notifications": true,
	"messages":      true,
	"search":        true,
	"settings":      true,
	"i":             true,
}

func (c *Classifier) registerBuiltins() {
	for _, d := range []Detector{
		NewDetector("crypto", PriorityCrypto, c.detectCrypto),
		NewDetector("weather", PriorityWeather, c.detectWeather),
		NewDetector("stock", PriorityStock, c.detectStock),
		NewDetector("json", PriorityJSON, c.detectJSON),
		NewDetector("twitch", PriorityTwitch, c.detectTwitch),
		NewDetector("medium", PriorityMedium, c.detectMedium),
		NewDetector("devto", PriorityDevTo, c.detectDevTo),
		NewDetector("substack", PrioritySubstack, c.detectSubstack),
		NewDetector("twitter", PriorityTwitter, c.detectTwitter),
		NewDetector("mastodon", PriorityMastodon, c.detectMastodon),
		NewDetector("youtube", PriorityYouTube, c.detectYouTube),
		NewDetector("github", PriorityGitHub, c.detectGitHub),
		NewDetector("reddit", PriorityReddit, c.detectReddit),
	} {
		c.registry.Register(d)
	}
}

func (c *Classifier) detectCrypto(_ context.Context, t *Target) (*Result, bool) {
	id, ok := coins[strings.ToLower(t.Input)]
	if !ok {
		return nil, false
	}
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	return &Result{
		Type:        tracker.TypeCrypto,
		APIEndpoint: c.endpoints.CoinGecko + "/simple/price?" + q.Encode(),
		RedirectURL: c.endpoints.CoinPage + "/" + id,
		CoinID:      id,
	}, true
}

func (c *Classifier) detectWeather(_ context.Context, t *Target) (*Result, bool) {
	for _, p := range weatherPatterns {
		m := p.FindStringSubmatch(t.Input)
		if m == nil {
			continue
		}
		loc := strings.TrimSpace(m[1])
		if loc == "" {
			continue
		}
		page := c.endpoints.Weather + "/" + url.PathEscape(loc)
		return &Result{
			Type:        tracker.TypeWeather,
			APIEndpoint: page + "?format=j1",
			RedirectURL: page,
			Location:    loc,
		}, true
	}
	return nil, false
}

func (c *Classifier) detectStock(_ context.Context, t *Target) (*Result, bool) {
	if !tickerPattern.MatchString(t.Input) {
		return nil, false
	}
	symbol := strings.ToUpper(t.Input)
	return &Result{
		Type:        tracker.TypeStock,
		APIEndpoint: c.endpoints.Stocks + "/" + symbol,
		RedirectURL: c.endpoints.StockPage + "/" + symbol,
		Symbol:      symbol,
	}, true
}

// detectJSON matches a .json path, then asks the server. A failed probe
// means "not JSON".
func (c *Classifier) detectJSON(ctx context.Context, t *Target) (*Result, bool) {
	if t.URL == nil {
		return nil, false
	}
	raw := t.URL.String()
	res := &Result{Type: tracker.TypeJSON, APIEndpoint: raw, RedirectURL: raw}

	if strings.HasSuffix(strings.ToLower(t.URL.Path), ".json") {
		return res, true
	}
	ct, err := c.client.ContentType(ctx, raw)
	if err != nil {
		debuglog.Debugf("content type probe for %s failed: %v", raw, err)
		return nil, false
	}
	if strings.Contains(ct, "json") {
		return res, true
	}
	return nil, false
}

func (c *Classifier) detectTwitch(_ context.Context, t *Target) (*Result, bool) {
	segs := t.Segments()
	if !t.HostIs("twitch.tv") || len(segs) == 0 {
		return nil, false
	}
	user := segs[0]
	return &Result{
		Type:        tracker.TypeTwitch,
		APIEndpoint: strings.TrimRight(c.endpoints.Twitch, "/") + "/" + user,
		RedirectURL: "https://twitch.tv/" + user,
	}, true
}

func (c *Classifier) detectMedium(_ context.Context, t *Target) (*Result, bool) {
	if !t.HostIs("medium.com") || !strings.Contains(t.URL.Path, "/@") {
		return nil, false
	}
	return &Result{
		Type:        tracker.TypeMedium,
		APIEndpoint: c.proxy("https://medium.com/feed" + t.URL.Path),
		RedirectURL: t.URL.String(),
	}, true
}

func (c *Classifier) detectDevTo(_ context.Context, t *Target) (*Result, bool) {
	segs := t.Segments()
	if !t.HostIs("dev.to") || len(segs) == 0 {
		return nil, false
	}
	return &Result{
		Type:        tracker.TypeDevTo,
		APIEndpoint: c.proxy("https://dev.to/feed/" + segs[0]),
		RedirectURL: t.URL.String(),
	}, true
}

func (c *Classifier) detectSubstack(_ context.Context, t *Target) (*Result, bool) {
	if !t.HostIs("substack.com") {
		return nil, false
	}
	base := t.Clean()
	return &Result{
		Type:        tracker.TypeSubstack,
		APIEndpoint: c.proxy(base + "/feed"),
		RedirectURL: base,
	}, true
}

func (c *Classifier) detectTwitter(_ context.Context, t *Target) (*Result, bool) {
	if t.URL == nil || !(t.HostIs("x.com") || t.HostIs("twitter.com")) {
		return nil, false
	}
	m := twitterProfile.FindStringSubmatch(t.URL.Path)
	if m == nil || reservedHandles[strings.ToLower(m[1])] {
		return nil, false
	}
	user := m[1]

	mirror := defaultTwitterRSS
	if len(c.mirrors) > 0 {
		mirror = strings.TrimRight(c.mirrors[0], "/")
	}
	return &Result{
		Type:        tracker.TypeTwitter,
		APIEndpoint: mirror + "/" + user + "/rss",
		RedirectURL: "https://x.com/" + user,
	}, true
}

// detectMastodon is a heuristic: any host mentioning mastodon with a /@user
// path. Instances on other domains are handled as plain RSS.
func (c *Classifier) detectMastodon(_ context.Context, t *Target) (*Result, bool) {
	if t.URL == nil || !strings.Contains(t.Host, "mastodon") || !strings.Contains(t.URL.Path, "/@") {
		return nil, false
	}
	clean := t.Clean()
	return &Result{
		Type:        tracker.TypeMastodon,
		APIEndpoint: c.proxy(clean + ".rss"),
		RedirectURL: clean,
	}, true
}

func (c *Classifier) detectYouTube(ctx context.Context, t *Target) (*Result, bool) {
	if !t.HostIs("youtube.com") {
		return nil, false
	}

	var channelID string
	path := t.URL.Path
	switch {
	case strings.Contains(path, "/@"):
		_, rest, _ := strings.Cut(path, "/@")
		handle, _, _ := strings.Cut(rest, "/")
		if handle == "" {
			return nil, false
		}
		id, err := c.youTubeChannelID(ctx, handle)
		if err != nil {
			debuglog.Warnf("youtube handle @%s: %v", handle, err)
			return nil, false
		}
		channelID = id
	case strings.Contains(path, "/channel/"):
		_, rest, _ := strings.Cut(path, "/channel/")
		channelID, _, _ = strings.Cut(rest, "/")
	}
	if channelID == "" {
		return nil, false
	}

	base := strings.TrimRight(c.endpoints.YouTube, "/")
	return &Result{
		Type:        tracker.TypeYouTube,
		APIEndpoint: c.proxy(base + "/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)),
		RedirectURL: base + "/channel/" + channelID,
	}, true
}

func (c *Classifier) detectGitHub(_ context.Context, t *Target) (*Result, bool) {
	segs := t.Segments()
	if !t.HostIs("github.com") || len(segs) < 2 {
		return nil, false
	}
	owner, repo := segs[0], segs[1]
	api := strings.TrimRight(c.endpoints.GitHubAPI, "/") + "/repos/" + owner + "/" + repo
	base := strings.TrimRight(c.endpoints.GitHub, "/") + "/" + owner + "/" + repo

	section := ""
	if len(segs) > 2 {
		section = segs[2]
	}
	switch section {
	case "releases":
		return &Result{Type: tracker.TypeGitHubReleases, APIEndpoint: api + "/releases", RedirectURL: base + "/releases"}, true
	case "issues":
		return &Result{
			Type:        tracker.TypeGitHubIssues,
			APIEndpoint: api + "/issues?state=open&sort=created&direction=desc",
			RedirectURL: base + "/issues",
		}, true
	case "discussions":
		return &Result{Type: tracker.TypeGitHubDiscussions, APIEndpoint: base + "/discussions.atom", RedirectURL: base + "/discussions"}, true
	}
	return &Result{Type: tracker.TypeGitHubCommits, APIEndpoint: api + "/commits", RedirectURL: base}, true
}

// detectReddit points at the listing's own RSS rendition.
func (c *Classifier) detectReddit(_ context.Context, t *Target) (*Result, bool) {
	if !t.HostIs("reddit.com") {
		return nil, false
	}
	page := t.Clean()
	feed := strings.TrimSuffix(page, ".json")
	if !strings.HasSuffix(feed, ".rss") {
		feed = strings.TrimRight(feed, "/") + "/.rss"
	}
	return &Result{
		Type:        tracker.TypeRSS,
		APIEndpoint: c.proxy(feed),
		RedirectURL: page,
	}, true
}
