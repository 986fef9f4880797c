package tracker

import (
	"time"
)

// FreshWindow is how long after new content a tracker is highlighted.
const FreshWindow = time.Hour

// Config carries type specific settings. Only json trackers use it.
type Config struct {
	TitleKey string `json:"titleKey,omitempty"`
	FeedKey  string `json:"feedKey,omitempty"`
}

// FeedContent is the normalized latest item of any source.
type FeedContent struct {
	DisplayedContent string    `json:"displayedContent"`
	FetchedContent   string    `json:"fetchedContent"`
	PubDate          time.Time `json:"pubDate"`
	Link             string    `json:"link,omitempty"`
}

type Tracker struct {
	ID                string        `json:"id"`
	Type              Type          `json:"type"`
	Source            string        `json:"source"`
	APIEndpoint       string        `json:"apiEndpoint"`
	Title             string        `json:"title"`
	FaviconURL        string        `json:"faviconUrl,omitempty"`
	RedirectURL       string        `json:"redirectUrl,omitempty"`
	Config            Config        `json:"config"`
	FeedContent       *FeedContent  `json:"feedContent,omitempty"`
	LastChecked       time.Time     `json:"lastChecked"`
	LastUpdate        *time.Time    `json:"lastUpdate"`
	UpdateInterval    time.Duration `json:"updateInterval"`
	DailyRequestLimit int           `json:"dailyRequestLimit"`
	RequestCount      int           `json:"requestCount"`
	RequestResetTime  time.Time     `json:"requestResetTime"`
	RateLimitedUntil  *time.Time    `json:"rateLimitedUntil"`
	LastError         string        `json:"lastError,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// Defaults fills quota fields that are absent from older snapshots.
type Defaults struct {
	UpdateInterval    time.Duration
	DailyRequestLimit int
	QuotaWindow       time.Duration
}

// Backfill applies d to zero valued fields. It reports whether anything changed.
func (t *Tracker) Backfill(d Defaults, now time.Time) bool {
	changed := false
	if t.UpdateInterval <= 0 {
		t.UpdateInterval = d.UpdateInterval
		changed = true
	}
	if t.DailyRequestLimit <= 0 {
		t.DailyRequestLimit = d.DailyRequestLimit
		changed = true
	}
	if t.RequestCount < 0 {
		t.RequestCount = 0
		changed = true
	}
	if t.RequestResetTime.IsZero() {
		t.RequestResetTime = now.Add(d.QuotaWindow)
		changed = true
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
		changed = true
	}
	return changed
}

// Clone returns a deep copy.
func (t *Tracker) Clone() *Tracker {
	if t == nil {
		return nil
	}
	c := *t
	if t.FeedContent != nil {
		fc := *t.FeedContent
		c.FeedContent = &fc
	}
	if t.LastUpdate != nil {
		lu := *t.LastUpdate
		c.LastUpdate = &lu
	}
	if t.RateLimitedUntil != nil {
		rl := *t.RateLimitedUntil
		c.RateLimitedUntil = &rl
	}
	return &c
}

// Link is where opening the tracker should lead: the latest item if it has
// one, otherwise the source page.
func (t *Tracker) Link() string {
	if t.FeedContent != nil && t.FeedContent.Link != "" {
		return t.FeedContent.Link
	}
	return t.RedirectURL
}

// IsFresh reports whether new content arrived within FreshWindow of now.
func (t *Tracker) IsFresh(now time.Time) bool {
	return t.LastUpdate != nil && now.Sub(*t.LastUpdate) < FreshWindow
}

// CoolingDown reports whether a rate limit cooldown is active at now.
func (t *Tracker) CoolingDown(now time.Time) bool {
	return t.RateLimitedUntil != nil && now.Before(*t.RateLimitedUntil)
}

// Due reports whether the update interval has elapsed since the last check,
// allowing tolerance for timer jitter.
func (t *Tracker) Due(now time.Time, tolerance time.Duration) bool {
	if t.LastChecked.IsZero() {
		return true
	}
	return now.Sub(t.LastChecked) >= t.UpdateInterval-tolerance
}

// DisplayTitle falls back to the source when no title is set.
func (t *Tracker) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Source
}
