package search

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/ntrack/internal/tracker"
)

type fakeSource struct {
	mu       sync.Mutex
	order    []string
	trackers map[string]*tracker.Tracker
}

func newFakeSource(ts ...*tracker.Tracker) *fakeSource {
	s := &fakeSource{trackers: map[string]*tracker.Tracker{}}
	for _, t := range ts {
		s.put(t)
	}
	return s
}

func (s *fakeSource) put(t *tracker.Tracker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackers[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.trackers[t.ID] = t
}

func (s *fakeSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *fakeSource) List() []*tracker.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*tracker.Tracker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.trackers[id].Clone())
	}
	return out
}

func (s *fakeSource) Get(id string) (*tracker.Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tracker.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func sampleTrackers() []*tracker.Tracker {
	return []*tracker.Tracker{
		{
			ID:     "go",
			Type:   tracker.TypeGitHubCommits,
			Title:  "golang/go",
			Source: "https://github.com/golang/go",
			FeedContent: &tracker.FeedContent{
				DisplayedContent: "cmd/go: fix vet",
				FetchedContent:   "by Gopher",
			},
		},
		{
			ID:     "btc",
			Type:   tracker.TypeCrypto,
			Title:  "Bitcoin",
			Source: "btc",
			FeedContent: &tracker.FeedContent{
				DisplayedContent: "$67,234.50 🟢 +2.35%",
				FetchedContent:   "$67,234.50",
			},
		},
		{
			ID:     "weather",
			Type:   tracker.TypeWeather,
			Title:  "Weather in Tokyo",
			Source: "weather in Tokyo",
			FeedContent: &tracker.FeedContent{
				DisplayedContent: "Partly cloudy, 59°F",
				FetchedContent:   "Feels like 57°F",
			},
		},
	}
}

func TestSearchMinLength(t *testing.T) {
	engine := NewEngine(newFakeSource(sampleTrackers()...))

	tests := []struct {
		name  string
		query string
	}{
		{name: "Empty query", query: ""},
		{name: "Single character query", query: "a"},
		{name: "Whitespace only", query: "   "},
		{name: "Punctuation only", query: "!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := engine.Search(tt.query, 10)
			assert.NoError(t, err)
			assert.NotNil(t, results)
			assert.Equal(t, 0, len(results), "short queries should return empty results")
		})
	}
}

func TestEngine_Search(t *testing.T) {
	engine := NewEngine(newFakeSource(sampleTrackers()...))

	res, err := engine.Search("tokyo", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "weather", res[0].Tracker.ID)
	assert.Equal(t, "title", res[0].Matches[0].Field)

	res, err = engine.Search("cloudy", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "content", res[0].Matches[0].Field)

	res, err = engine.Search("github commits", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "go", res[0].Tracker.ID)
}

func TestEngine_TitleOutranksSource(t *testing.T) {
	src := newFakeSource(
		&tracker.Tracker{ID: "by-source", Type: tracker.TypeRSS, Title: "Some blog", Source: "https://example.com/gopher"},
		&tracker.Tracker{ID: "by-title", Type: tracker.TypeRSS, Title: "Gopher news", Source: "https://example.org/feed"},
	)
	engine := NewEngine(src)

	res, err := engine.Search("gopher", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "by-title", res[0].Tracker.ID)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestEngine_FreshBoostAndLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Minute)

	src := newFakeSource(
		&tracker.Tracker{ID: "old", Type: tracker.TypeRSS, Title: "Go weekly"},
		&tracker.Tracker{ID: "fresh", Type: tracker.TypeRSS, Title: "Go weekly", LastUpdate: &recent},
	)
	engine := NewEngine(src)
	engine.now = func() time.Time { return now }

	res, err := engine.Search("weekly", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "fresh", res[0].Tracker.ID)

	res, err = engine.Search("weekly", 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"golang", "go", "v1", "24"}, tokenize("golang/go v1.24 a"))
	assert.Empty(t, tokenize("a b c"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
