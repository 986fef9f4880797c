// Package engine owns the tracker lifecycle: adding, editing and deleting
// trackers, and refreshing their content within the daily request budget.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/ntrack/internal/classify"
	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/notify"
	"github.com/pders01/ntrack/internal/quota"
	"github.com/pders01/ntrack/internal/search"
	"github.com/pders01/ntrack/internal/tracker"
	"github.com/pders01/ntrack/internal/validation"
)

// DefaultTitle names a tracker when neither the user nor the feed does.
const DefaultTitle = "New Tracker"

var (
	ErrInvalidSource      = errors.New("invalid source")
	ErrNeedsConfiguration = errors.New("json trackers need a title key and a feed key")
	ErrInvalidInterval    = errors.New("invalid update interval")
	ErrInvalidLimit       = errors.New("daily limit must be at least 1")
	ErrInitialFetch       = errors.New("initial fetch failed")
)

type Fetcher interface {
	Fetch(ctx context.Context, t *tracker.Tracker) (*fetch.Result, error)
}

type KeyDescriber interface {
	DescribeJSON(ctx context.Context, url string) ([]fetch.KeyInfo, error)
}

type Classifier interface {
	Classify(ctx context.Context, raw string) *classify.Result
}

// Deps are the collaborators of a Manager. Notifier and Search may be nil.
type Deps struct {
	Store      *tracker.Store
	Fetcher    Fetcher
	Keys       KeyDescriber
	Classifier Classifier
	Notifier   notify.Notifier
	Search     search.Searcher
}

type Manager struct {
	store      *tracker.Store
	fetcher    Fetcher
	keys       KeyDescriber
	classifier Classifier
	notifier   notify.Notifier
	searcher   search.Searcher

	gate           *quota.Gate
	urlValidator   *validation.SourceURLValidator
	limits         config.TrackerConfig
	pace           time.Duration
	badgeSnapshots bool

	// mu serializes add, edit, delete and single tracker refreshes
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewManager(cfg *config.Config, deps Deps) *Manager {
	m := &Manager{
		store:          deps.Store,
		fetcher:        deps.Fetcher,
		keys:           deps.Keys,
		classifier:     deps.Classifier,
		notifier:       deps.Notifier,
		searcher:       deps.Search,
		gate:           quota.NewGate(cfg.Tracker.QuotaWindow, cfg.Scheduler.DueTolerance),
		limits:         cfg.Tracker,
		pace:           cfg.Scheduler.PaceDelay,
		badgeSnapshots: cfg.Engine.BadgeSnapshots,
		now:            time.Now,
		newID:          func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	m.SetPermissiveValidation(cfg.Engine.PermissiveURLs)
	if m.notifier == nil {
		m.notifier = notify.Log{}
	}
	return m
}

// SetPermissiveValidation allows loopback and private hosts as sources.
func (m *Manager) SetPermissiveValidation(permissive bool) {
	if permissive {
		m.urlValidator = validation.NewPermissiveSourceURLValidator()
	} else {
		m.urlValidator = validation.NewSourceURLValidator()
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

type AddRequest struct {
	Source         string
	Title          string
	TitleKey       string
	FeedKey        string
	UpdateInterval time.Duration
	DailyLimit     int
}

// EditRequest changes only the fields that are set.
type EditRequest struct {
	Source         *string
	Title          *string
	TitleKey       *string
	FeedKey        *string
	UpdateInterval *time.Duration
	DailyLimit     *int
}

// AddTracker classifies req.Source, fetches it once and stores the new
// tracker. The initial fetch counts against the tracker's daily limit.
func (m *Manager) AddTracker(ctx context.Context, req AddRequest) (*tracker.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store.Full() {
		m.notify(ctx, notify.Event{
			Kind:    notify.KindCapReached,
			Source:  "Tracker Limit Reached",
			Message: fmt.Sprintf("Only %d trackers allowed.", m.limits.MaxTrackers),
		})
		return nil, fmt.Errorf("%w: only %d trackers allowed", tracker.ErrLimitReached, m.limits.MaxTrackers)
	}

	interval, err := m.checkInterval(req.UpdateInterval)
	if err != nil {
		return nil, err
	}
	limit, err := checkLimit(req.DailyLimit, m.limits.DefaultDailyLimit)
	if err != nil {
		return nil, err
	}

	res, err := m.resolve(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	now := m.now()
	t := &tracker.Tracker{
		ID:                m.newID(),
		Type:              res.Type,
		Source:            res.Source,
		APIEndpoint:       res.APIEndpoint,
		RedirectURL:       res.RedirectURL,
		UpdateInterval:    interval,
		DailyRequestLimit: limit,
		RequestResetTime:  now.Add(m.gate.Window),
		CreatedAt:         now,
	}
	if res.NeedsConfiguration() {
		t.Config = tracker.Config{
			TitleKey: strings.TrimSpace(req.TitleKey),
			FeedKey:  strings.TrimSpace(req.FeedKey),
		}
		if t.Config.TitleKey == "" || t.Config.FeedKey == "" {
			return nil, ErrNeedsConfiguration
		}
	}

	fr, err := m.fetcher.Fetch(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialFetch, err)
	}

	t.RequestCount = 1
	t.LastChecked = m.now()
	t.FaviconURL = fr.FaviconURL
	t.Title = pickTitle(req.Title, fr.FeedTitle)
	m.applyResult(t, fr)

	if err := m.store.Add(ctx, t); err != nil {
		return nil, err
	}
	debuglog.Infof("added %s tracker %s (%s)", t.Type, t.ID, t.Source)

	m.indexed(t)
	m.notify(ctx, notify.Event{
		Kind:      notify.KindAdded,
		TrackerID: t.ID,
		Source:    "Tracker Added",
		Message:   t.Title + " has been added",
		Link:      t.Link(),
	})
	return t, nil
}

// EditTracker applies req to the tracker. A changed source is classified
// again, and a changed source or json key set is fetched before anything is
// committed. That validation fetch is not counted against the daily limit.
func (m *Manager) EditTracker(ctx context.Context, id string, req EditRequest) (*tracker.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()

	if req.UpdateInterval != nil {
		if next.UpdateInterval, err = m.checkInterval(*req.UpdateInterval); err != nil {
			return nil, err
		}
	}
	if req.DailyLimit != nil {
		if *req.DailyLimit < 1 {
			return nil, ErrInvalidLimit
		}
		next.DailyRequestLimit = *req.DailyLimit
	}

	sourceChanged := req.Source != nil && strings.TrimSpace(*req.Source) != cur.Source
	if sourceChanged {
		res, err := m.resolve(ctx, *req.Source)
		if err != nil {
			return nil, err
		}
		next.Type = res.Type
		next.Source = res.Source
		next.APIEndpoint = res.APIEndpoint
		next.RedirectURL = res.RedirectURL
		next.Config = tracker.Config{}
	}

	if next.Type == tracker.TypeJSON {
		if req.TitleKey != nil {
			next.Config.TitleKey = strings.TrimSpace(*req.TitleKey)
		}
		if req.FeedKey != nil {
			next.Config.FeedKey = strings.TrimSpace(*req.FeedKey)
		}
		if next.Config.TitleKey == "" || next.Config.FeedKey == "" {
			return nil, ErrNeedsConfiguration
		}
	}

	var fr *fetch.Result
	if sourceChanged || next.Config != cur.Config {
		if fr, err = m.fetcher.Fetch(ctx, next); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInitialFetch, err)
		}
	}

	title := next.Title
	if req.Title != nil {
		title = strings.TrimSpace(*req.Title)
	}
	feedTitle := ""
	if fr != nil {
		feedTitle = fr.FeedTitle
	}

	checked := m.now()
	updated, err := m.store.Update(ctx, id, func(t *tracker.Tracker) error {
		t.Type = next.Type
		t.Source = next.Source
		t.APIEndpoint = next.APIEndpoint
		t.RedirectURL = next.RedirectURL
		t.Config = next.Config
		t.UpdateInterval = next.UpdateInterval
		t.DailyRequestLimit = next.DailyRequestLimit
		t.Title = pickTitle(title, feedTitle)

		// a raised limit lifts the cooldown it caused
		if t.RequestCount < t.DailyRequestLimit {
			t.RateLimitedUntil = nil
		}

		if fr == nil {
			return nil
		}
		if sourceChanged {
			t.FeedContent = nil
			t.LastUpdate = nil
		}
		t.FaviconURL = fr.FaviconURL
		t.LastChecked = checked
		t.LastError = ""
		m.applyResult(t, fr)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.indexed(updated)
	m.notify(ctx, notify.Event{
		Kind:      notify.KindUpdated,
		TrackerID: updated.ID,
		Source:    "Tracker Updated",
		Message:   updated.Title + " has been updated",
		Link:      updated.Link(),
	})
	return updated, nil
}

func (m *Manager) DeleteTracker(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Remove(ctx, id); err != nil {
		return err
	}
	if l, ok := m.searcher.(search.DeleteListener); ok {
		l.OnTrackerDeleted(id)
	}
	debuglog.Infof("deleted tracker %s", id)
	return nil
}

func (m *Manager) List() []*tracker.Tracker {
	return m.store.List()
}

func (m *Manager) Get(id string) (*tracker.Tracker, error) {
	return m.store.Get(id)
}

// Classify reports what a source would become without storing anything.
// URL-like input passes the same validation as AddTracker.
func (m *Manager) Classify(ctx context.Context, raw string) (*classify.Result, error) {
	return m.resolve(ctx, raw)
}

// DescribeJSON lists the key paths of the JSON document at rawURL.
func (m *Manager) DescribeJSON(ctx context.Context, rawURL string) ([]fetch.KeyInfo, error) {
	normalized, err := m.urlValidator.ValidateAndNormalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if m.keys == nil {
		return nil, fmt.Errorf("json key discovery not configured")
	}
	return m.keys.DescribeJSON(ctx, normalized)
}

func (m *Manager) Search(query string, limit int) ([]*search.Result, error) {
	if m.searcher == nil {
		return nil, fmt.Errorf("search not configured")
	}
	return m.searcher.Search(query, limit)
}

// resolve validates URL-like sources before classifying them, so no probe
// is ever sent to a host the validator rejects.
func (m *Manager) resolve(ctx context.Context, source string) (*classify.Result, error) {
	input := strings.TrimSpace(source)
	if input == "" {
		return nil, fmt.Errorf("%w: source cannot be empty", ErrInvalidSource)
	}
	if looksLikeURL(input) {
		if _, err := m.urlValidator.ValidateAndNormalize(input); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
	}
	return m.classifier.Classify(ctx, input), nil
}

// looksLikeURL separates addresses from bare words such as "btc" or "AAPL",
// which also parse as single label hosts.
func looksLikeURL(input string) bool {
	if strings.Contains(input, "://") {
		return true
	}
	u, ok := validation.NormalizeURL(input)
	if !ok {
		return false
	}
	host := u.Hostname()
	return strings.ContainsAny(host, ".:") || u.Port() != "" || host == "localhost"
}

func (m *Manager) checkInterval(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return m.limits.DefaultUpdateInterval, nil
	}
	if d < m.limits.MinUpdateInterval {
		return 0, fmt.Errorf("%w: must be at least %s", ErrInvalidInterval, m.limits.MinUpdateInterval)
	}
	return d, nil
}

func checkLimit(n, def int) (int, error) {
	switch {
	case n == 0:
		return def, nil
	case n < 1:
		return 0, ErrInvalidLimit
	}
	return n, nil
}

func pickTitle(user, feed string) string {
	if t := strings.TrimSpace(user); t != "" {
		return t
	}
	if t := strings.TrimSpace(feed); t != "" {
		return t
	}
	return DefaultTitle
}

func (m *Manager) indexed(t *tracker.Tracker) {
	if l, ok := m.searcher.(search.UpdateListener); ok {
		l.OnTrackerUpdated(t)
	}
}

func (m *Manager) notify(ctx context.Context, e notify.Event) {
	if err := m.notifier.Notify(ctx, e); err != nil {
		debuglog.Warnf("notify %s: %v", e.Kind, err)
	}
}
