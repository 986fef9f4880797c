package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/ntrack/internal/classify"
	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/notify"
	"github.com/pders01/ntrack/internal/quota"
	"github.com/pders01/ntrack/internal/search"
	"github.com/pders01/ntrack/internal/storage"
	"github.com/pders01/ntrack/internal/tracker"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// spy counts fetches before handing them on.
type spy struct {
	mu    sync.Mutex
	calls int
	next  Fetcher
}

func (s *spy) Fetch(ctx context.Context, t *tracker.Tracker) (*fetch.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.next.Fetch(ctx, t)
}

func (s *spy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func (r *recorder) Last() notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type classifierFunc func(ctx context.Context, raw string) *classify.Result

func (f classifierFunc) Classify(ctx context.Context, raw string) *classify.Result {
	return f(ctx, raw)
}

type harness struct {
	cfg    *config.Config
	kv     storage.KV
	store  *tracker.Store
	m      *Manager
	spy    *spy
	events *recorder
	clock  *clock
}

func openStore(t *testing.T, kv storage.KV, cfg *config.Config, now func() time.Time) *tracker.Store {
	t.Helper()
	s := tracker.NewStore(kv, tracker.StoreOptions{
		MaxTrackers: cfg.Tracker.MaxTrackers,
		Defaults: tracker.Defaults{
			UpdateInterval:    cfg.Tracker.DefaultUpdateInterval,
			DailyRequestLimit: cfg.Tracker.DefaultDailyLimit,
			QuotaWindow:       cfg.Tracker.QuotaWindow,
		},
		Now: now,
	})
	require.NoError(t, s.Init(context.Background()))
	return s
}

func newHarness(t *testing.T, cfg *config.Config, f Fetcher, c Classifier, keys KeyDescriber) *harness {
	t.Helper()

	kv, err := storage.OpenBolt(filepath.Join(t.TempDir(), "ntrack.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	h := &harness{
		cfg:    cfg,
		kv:     kv,
		spy:    &spy{next: f},
		events: &recorder{},
		clock:  &clock{t: start},
	}
	h.store = openStore(t, kv, cfg, h.clock.Now)
	h.m = NewManager(cfg, Deps{
		Store:      h.store,
		Fetcher:    h.spy,
		Keys:       keys,
		Classifier: c,
		Notifier:   h.events,
		Search:     search.NewEngine(h.store),
	})
	h.m.SetClock(h.clock.Now)
	return h
}

// newLiveHarness wires the real classifier and fetchers against srv.
func newLiveHarness(t *testing.T, srv *httptest.Server) *harness {
	t.Helper()

	cfg := config.TestConfig()
	cfg.Fetch.Endpoints.CoinGecko = srv.URL
	cfg.Fetch.Endpoints.Favicon = srv.URL + "/favicons"

	client := fetch.NewClient(cfg.Fetch)
	registry, fetchers, err := fetch.NewDefaultRegistry(client, cfg.Fetch)
	require.NoError(t, err)

	h := newHarness(t, cfg, registry, classify.New(client, cfg.Fetch), fetchers)
	fetchers.SetClock(h.clock.Now)
	return h
}

func coinServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":67234.5,"usd_24h_change":2.35}}`))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"name":"Widget","status":"green"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// stubRSS classifies everything as an rss feed without any network.
func stubRSS() Classifier {
	return classifierFunc(func(_ context.Context, raw string) *classify.Result {
		return &classify.Result{
			Type:        tracker.TypeRSS,
			Source:      raw,
			APIEndpoint: "https://proxy.invalid/?rss_url=" + raw,
			RedirectURL: "https://" + raw,
			Detector:    "rss",
		}
	})
}

type feedStub struct {
	mu    sync.Mutex
	items []fetch.Result
	errs  []error
	i     int
}

func (f *feedStub) Fetch(_ context.Context, _ *tracker.Tracker) (*fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.i
	f.i++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.items) {
		i = len(f.items) - 1
	}
	res := f.items[i]
	return &res, nil
}

func item(title string, pub time.Time) fetch.Result {
	return fetch.Result{
		FeedTitle: "Go Blog",
		Content: tracker.FeedContent{
			DisplayedContent: title,
			PubDate:          pub,
			Link:             "https://go.dev/blog/" + title,
		},
	}
}

func TestAddAndDeleteBitcoin(t *testing.T) {
	ctx := context.Background()
	h := newLiveHarness(t, coinServer(t))

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "btc"})
	require.NoError(t, err)

	assert.NotEmpty(t, added.ID)
	assert.Equal(t, tracker.TypeCrypto, added.Type)
	assert.Equal(t, "btc", added.Source)
	assert.Equal(t, "Bitcoin", added.Title)
	require.NotNil(t, added.FeedContent)
	assert.Equal(t, "$67,234.50 🟢 +2.35%", added.FeedContent.DisplayedContent)
	assert.Equal(t, "$67,234.50", added.FeedContent.FetchedContent)
	assert.Equal(t, 1, added.RequestCount)
	assert.Equal(t, start.Add(24*time.Hour), added.RequestResetTime)
	assert.Equal(t, h.cfg.Tracker.DefaultUpdateInterval, added.UpdateInterval)
	assert.Equal(t, h.cfg.Tracker.DefaultDailyLimit, added.DailyRequestLimit)
	assert.Nil(t, added.LastUpdate, "price snapshots are not badged")

	assert.Equal(t, []notify.Kind{notify.KindAdded}, h.events.Kinds())
	assert.Equal(t, "Bitcoin has been added", h.events.Last().Message)

	// a second store over the same database sees the same tracker
	reopened := openStore(t, h.kv, h.cfg, h.clock.Now)
	got, err := reopened.Get(added.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(added, got); diff != "" {
		t.Errorf("persisted tracker mismatch (-want +got):\n%s", diff)
	}

	res, err := h.m.Search("bitcoin", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, added.ID, res[0].Tracker.ID)

	require.NoError(t, h.m.DeleteTracker(ctx, added.ID))
	assert.Empty(t, h.m.List())
	_, err = h.m.Get(added.ID)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
	assert.ErrorIs(t, h.m.DeleteTracker(ctx, added.ID), tracker.ErrNotFound)
}

func TestDailyLimitOfOneSkipsFetch(t *testing.T) {
	ctx := context.Background()
	h := newLiveHarness(t, coinServer(t))

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "btc", DailyLimit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, h.spy.Calls(), "initial fetch")
	require.Equal(t, 1, added.RequestCount)

	out, err := h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.LimitReached, out.Verdict)
	assert.Equal(t, 1, h.spy.Calls(), "no request past the limit")
	require.NotNil(t, out.Tracker.RateLimitedUntil)
	assert.Equal(t, out.Tracker.RequestResetTime, *out.Tracker.RateLimitedUntil)
	assert.Equal(t, notify.KindLimitReached, h.events.Last().Kind)
	assert.Equal(t, "Bitcoin has reached its daily limit.", h.events.Last().Message)

	out, err = h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.CoolingDown, out.Verdict)
	assert.Equal(t, 1, h.spy.Calls())
	assert.Len(t, h.events.Kinds(), 2, "limit is announced once")

	h.clock.Advance(24 * time.Hour)
	out, err = h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.Proceed, out.Verdict)
	assert.Equal(t, 2, h.spy.Calls())
	assert.Equal(t, 1, out.Tracker.RequestCount)
	assert.Nil(t, out.Tracker.RateLimitedUntil)
}

func TestJSONTracker(t *testing.T) {
	ctx := context.Background()
	srv := coinServer(t)
	h := newLiveHarness(t, srv)

	_, err := h.m.AddTracker(ctx, AddRequest{Source: srv.URL + "/data.json"})
	require.ErrorIs(t, err, ErrNeedsConfiguration)
	assert.Equal(t, 0, h.spy.Calls())

	added, err := h.m.AddTracker(ctx, AddRequest{
		Source:   srv.URL + "/data.json",
		TitleKey: "data.name",
		FeedKey:  "data.status",
	})
	require.NoError(t, err)
	assert.Equal(t, tracker.TypeJSON, added.Type)
	assert.Equal(t, "Widget", added.Title)
	assert.Equal(t, "green", added.FeedContent.DisplayedContent)

	missing := "data.missing"
	edited, err := h.m.EditTracker(ctx, added.ID, EditRequest{FeedKey: &missing})
	require.NoError(t, err)
	assert.Equal(t, fetch.NoData, edited.FeedContent.DisplayedContent)
	assert.Equal(t, "data.missing", edited.Config.FeedKey)
	assert.Equal(t, 1, edited.RequestCount, "validation fetch is not counted")

	keys, err := h.m.DescribeJSON(ctx, srv.URL+"/data.json")
	require.NoError(t, err)
	var paths []string
	for _, k := range keys {
		paths = append(paths, k.Path)
	}
	assert.Equal(t, []string{"data", "data.name", "data.status"}, paths)
}

func TestLastUpdateNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	t1 := start.Add(-2 * time.Hour)
	t2 := start.Add(-1 * time.Hour)

	feed := &feedStub{items: []fetch.Result{
		item("first", t1),
		item("second", t2),
		item("older", t1),
		item("same", t2),
	}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/blog/feed.atom"})
	require.NoError(t, err)
	assert.Equal(t, "Go Blog", added.Title)
	require.NotNil(t, added.LastUpdate)
	assert.Equal(t, t1, *added.LastUpdate)

	out, err := h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.True(t, out.New)
	assert.Equal(t, t2, *out.Tracker.LastUpdate)
	assert.Equal(t, notify.KindNewContent, h.events.Last().Kind)
	assert.Equal(t, "https://go.dev/blog/second", h.events.Last().Link)

	for _, want := range []string{"older", "same"} {
		out, err = h.m.UpdateTracker(ctx, added.ID)
		require.NoError(t, err)
		assert.False(t, out.New)
		assert.Equal(t, t2, *out.Tracker.LastUpdate)
		assert.Equal(t, want, out.Tracker.FeedContent.DisplayedContent, "content is stored either way")
	}
	assert.Equal(t, 4, out.Tracker.RequestCount)
}

func TestFetchFailureKeepsContent(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream down")
	feed := &feedStub{
		items: []fetch.Result{
			item("first", start.Add(-time.Hour)),
			item("first", start.Add(-time.Hour)),
			item("first", start.Add(-time.Hour)),
			item("back", start),
		},
		errs:  []error{nil, boom, boom},
	}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/blog/feed.atom"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		h.clock.Advance(time.Minute)
		out, err := h.m.UpdateTracker(ctx, added.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, out.Err, boom)
		assert.Equal(t, "first", out.Tracker.FeedContent.DisplayedContent)
		assert.Equal(t, h.clock.Now(), out.Tracker.LastChecked)
		assert.Equal(t, "upstream down", out.Tracker.LastError)
	}

	failures := 0
	for _, k := range h.events.Kinds() {
		if k == notify.KindFetchFailed {
			failures++
		}
	}
	assert.Equal(t, 1, failures, "failure is announced on onset only")

	out, err := h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.NoError(t, out.Err)
	assert.True(t, out.New)
	assert.Empty(t, out.Tracker.LastError)
}

func TestTrackerCapRejectsBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	cfg := config.TestConfig()
	cfg.Tracker.MaxTrackers = 1

	classified := 0
	c := classifierFunc(func(ctx context.Context, raw string) *classify.Result {
		classified++
		return stubRSS().Classify(ctx, raw)
	})
	feed := &feedStub{items: []fetch.Result{item("first", start)}}
	h := newHarness(t, cfg, feed, c, nil)

	_, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/blog/feed.atom"})
	require.NoError(t, err)

	_, err = h.m.AddTracker(ctx, AddRequest{Source: "blog.rust-lang.org/feed.xml"})
	require.ErrorIs(t, err, tracker.ErrLimitReached)
	assert.Equal(t, 1, classified)
	assert.Equal(t, 1, h.spy.Calls())
	assert.Equal(t, 1, h.store.Len())

	last := h.events.Last()
	assert.Equal(t, notify.KindCapReached, last.Kind)
	assert.Equal(t, "Only 1 trackers allowed.", last.Message)
}

func TestAddTrackerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	feed := &feedStub{items: []fetch.Result{item("first", start)}}

	tests := []struct {
		name    string
		req     AddRequest
		strict  bool
		wantErr error
	}{
		{name: "empty source", req: AddRequest{Source: "   "}, wantErr: ErrInvalidSource},
		{name: "interval below minimum", req: AddRequest{Source: "go.dev/feed", UpdateInterval: 30 * time.Second}, wantErr: ErrInvalidInterval},
		{name: "negative limit", req: AddRequest{Source: "go.dev/feed", DailyLimit: -1}, wantErr: ErrInvalidLimit},
		{name: "private host", req: AddRequest{Source: "http://192.168.1.10/feed"}, strict: true, wantErr: ErrInvalidSource},
		{name: "localhost", req: AddRequest{Source: "localhost:8080/feed.xml"}, strict: true, wantErr: ErrInvalidSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)
			if tt.strict {
				h.m.SetPermissiveValidation(false)
			}
			_, err := h.m.AddTracker(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, h.spy.Calls())
			assert.Equal(t, 0, h.store.Len())
		})
	}
}

func TestAddTrackerInitialFetchFailure(t *testing.T) {
	ctx := context.Background()
	feed := &feedStub{errs: []error{fetch.ErrNoItems}, items: []fetch.Result{item("x", start)}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	_, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/blog/feed.atom"})
	require.ErrorIs(t, err, ErrInitialFetch)
	assert.ErrorIs(t, err, fetch.ErrNoItems)
	assert.Equal(t, 0, h.store.Len())
	assert.Empty(t, h.events.Kinds())
}

func TestAddTrackerTitleFallback(t *testing.T) {
	ctx := context.Background()
	untitled := fetch.Result{Content: tracker.FeedContent{DisplayedContent: "x", PubDate: start}}
	feed := &feedStub{items: []fetch.Result{untitled}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "example.com/feed"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, added.Title)

	added, err = h.m.AddTracker(ctx, AddRequest{Source: "example.com/feed", Title: "  Mine  "})
	require.NoError(t, err)
	assert.Equal(t, "Mine", added.Title)
}

func TestEditTracker(t *testing.T) {
	ctx := context.Background()
	feed := &feedStub{items: []fetch.Result{item("first", start.Add(-time.Hour)), item("other", start.Add(-3*time.Hour))}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/blog/feed.atom"})
	require.NoError(t, err)

	title := "Renamed"
	interval := 10 * time.Minute
	edited, err := h.m.EditTracker(ctx, added.ID, EditRequest{Title: &title, UpdateInterval: &interval})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", edited.Title)
	assert.Equal(t, interval, edited.UpdateInterval)
	assert.Equal(t, 1, h.spy.Calls(), "no fetch without a source change")
	assert.Equal(t, notify.KindUpdated, h.events.Last().Kind)

	short := time.Second
	_, err = h.m.EditTracker(ctx, added.ID, EditRequest{UpdateInterval: &short})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	zero := 0
	_, err = h.m.EditTracker(ctx, added.ID, EditRequest{DailyLimit: &zero})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	source := "blog.rust-lang.org/feed.xml"
	edited, err = h.m.EditTracker(ctx, added.ID, EditRequest{Source: &source})
	require.NoError(t, err)
	assert.Equal(t, 2, h.spy.Calls())
	assert.Equal(t, source, edited.Source)
	assert.Equal(t, "https://"+source, edited.RedirectURL)
	assert.Equal(t, "other", edited.FeedContent.DisplayedContent)
	require.NotNil(t, edited.LastUpdate)
	assert.Equal(t, start.Add(-3*time.Hour), *edited.LastUpdate, "a new source starts a new history")

	_, err = h.m.EditTracker(ctx, "missing", EditRequest{Title: &title})
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestEditRaisingLimitLiftsCooldown(t *testing.T) {
	ctx := context.Background()
	feed := &feedStub{items: []fetch.Result{item("first", start)}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/feed", DailyLimit: 1})
	require.NoError(t, err)
	out, err := h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	require.Equal(t, quota.LimitReached, out.Verdict)

	limit := 5
	edited, err := h.m.EditTracker(ctx, added.ID, EditRequest{DailyLimit: &limit})
	require.NoError(t, err)
	assert.Nil(t, edited.RateLimitedUntil)

	out, err = h.m.UpdateTracker(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.Proceed, out.Verdict)
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()
	feed := &feedStub{items: []fetch.Result{
		item("first", start.Add(-time.Hour)),
		item("first", start.Add(-time.Hour)),
		item("next", start),
		item("first", start.Add(-time.Hour)),
	}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	a, err := h.m.AddTracker(ctx, AddRequest{Source: "go.dev/feed"})
	require.NoError(t, err)
	_, err = h.m.AddTracker(ctx, AddRequest{Source: "example.com/feed"})
	require.NoError(t, err)

	report, err := h.m.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Skipped, "both were just checked")
	assert.Equal(t, 0, report.Fetched)
	for _, o := range report.Outcomes {
		assert.Equal(t, quota.NotDue, o.Verdict)
	}

	h.clock.Advance(5 * time.Minute)
	report, err = h.m.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.New)
	assert.Equal(t, 0, report.Failed)

	got, err := h.m.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RequestCount)
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	feed := &feedStub{
		items: []fetch.Result{item("a", start), item("b", start), item("a", start), item("b", start)},
		errs:  []error{nil, nil, boom, nil},
	}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)

	for _, src := range []string{"go.dev/feed", "example.com/feed"} {
		_, err := h.m.AddTracker(ctx, AddRequest{Source: src})
		require.NoError(t, err)
	}

	h.clock.Advance(time.Hour)
	report, err := h.m.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Outcomes[0].Err, boom)
	assert.NoError(t, report.Outcomes[1].Err)
}

func TestRefreshAllStopsOnCancel(t *testing.T) {
	feed := &feedStub{items: []fetch.Result{item("a", start)}}
	h := newHarness(t, config.TestConfig(), feed, stubRSS(), nil)
	_, err := h.m.AddTracker(context.Background(), AddRequest{Source: "go.dev/feed"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.m.RefreshAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduledRefreshAtLimitStartsCooldown(t *testing.T) {
	ctx := context.Background()
	h := newLiveHarness(t, coinServer(t))

	added, err := h.m.AddTracker(ctx, AddRequest{Source: "btc", DailyLimit: 1})
	require.NoError(t, err)
	require.Equal(t, 1, h.spy.Calls())

	// well inside the update interval: the limit is still reported
	h.clock.Advance(30 * time.Second)
	report, err := h.m.RefreshAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, quota.LimitReached, report.Outcomes[0].Verdict)
	assert.Equal(t, 0, report.Fetched)
	assert.Equal(t, 1, h.spy.Calls(), "no request past the limit")
	assert.Equal(t, notify.KindLimitReached, h.events.Last().Kind)

	got, err := h.m.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RequestCount)
	require.NotNil(t, got.RateLimitedUntil)
	assert.Equal(t, got.RequestResetTime, *got.RateLimitedUntil)

	report, err = h.m.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, quota.CoolingDown, report.Outcomes[0].Verdict)
	assert.Equal(t, 1, h.spy.Calls())
}

// headCounter answers every request with JSON and counts them.
func headCounter(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClassifyValidatesBeforeProbing(t *testing.T) {
	ctx := context.Background()
	srv, hits := headCounter(t)
	h := newLiveHarness(t, srv)
	h.m.SetPermissiveValidation(false)

	_, err := h.m.Classify(ctx, srv.URL+"/internal")
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = h.m.AddTracker(ctx, AddRequest{Source: srv.URL + "/internal"})
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.EqualValues(t, 0, hits.Load(), "rejected hosts are never contacted")

	_, err = h.m.Classify(ctx, "   ")
	assert.ErrorIs(t, err, ErrInvalidSource)

	res, err := h.m.Classify(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, tracker.TypeCrypto, res.Type)

	h.m.SetPermissiveValidation(true)
	res, err = h.m.Classify(ctx, srv.URL+"/internal")
	require.NoError(t, err)
	assert.Equal(t, tracker.TypeJSON, res.Type)
	assert.EqualValues(t, 1, hits.Load())
}

func TestLooksLikeURL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"btc", false},
		{"AAPL", false},
		{"weather in Tokyo", false},
		{"github.com/golang/go", true},
		{"https://example.com", true},
		{"localhost", true},
		{"localhost:8080/x.json", true},
		{"127.0.0.1/feed", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeURL(tt.input))
		})
	}
}
