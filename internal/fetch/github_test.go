package fetch

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/ntrack/internal/tracker"
)

func TestRepoName(t *testing.T) {
	assert.Equal(t, "golang/go", repoName("https://github.com/golang/go"))
	assert.Equal(t, "golang/go", repoName("github.com/golang/go/releases"))
	assert.Equal(t, "Repository", repoName("github.com/golang"))
	assert.Equal(t, "Repository", repoName("gitlab.com/golang/go"))
}

func TestFetchGitHubCommits(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gh/repos/golang/go/commits", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
		  {"html_url":"https://github.com/golang/go/commit/abc",
		   "commit":{"message":"cmd/go: fix vet\n\nLonger explanation.","author":{"name":"Gopher","date":"2025-02-28T09:30:00Z"}}},
		  {"html_url":"https://github.com/golang/go/commit/def",
		   "commit":{"message":"older","author":{"name":"Other","date":"2025-02-27T09:30:00Z"}}}
		]`))
	})
	f, srv := newTestFetchers(t, mux)

	res, err := f.fetchGitHubCommits(context.Background(), &tracker.Tracker{
		Type:        tracker.TypeGitHubCommits,
		Source:      "https://github.com/golang/go",
		APIEndpoint: srv.URL + "/gh/repos/golang/go/commits",
	})
	require.NoError(t, err)

	assert.Equal(t, "golang/go", res.FeedTitle)
	assert.Equal(t, srv.URL+"/favicon.ico", res.FaviconURL)
	assert.Equal(t, "cmd/go: fix vet", res.Content.DisplayedContent)
	assert.Equal(t, "by Gopher", res.Content.FetchedContent)
	assert.Equal(t, time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC), res.Content.PubDate)
	assert.Equal(t, "https://github.com/golang/go/commit/abc", res.Content.Link)
}

func TestFetchGitHubReleases(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gh/repos/golang/go/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"","tag_name":"go1.24.0","body":"**Highlights**","html_url":"https://github.com/golang/go/releases/tag/go1.24.0","published_at":"2025-02-11T18:00:00Z"}]`))
	})
	f, srv := newTestFetchers(t, mux)

	res, err := f.fetchGitHubReleases(context.Background(), &tracker.Tracker{
		Source:      "github.com/golang/go/releases",
		APIEndpoint: srv.URL + "/gh/repos/golang/go/releases",
	})
	require.NoError(t, err)
	assert.Equal(t, "go1.24.0", res.Content.DisplayedContent, "tag name when the release has no name")
	assert.Equal(t, "**Highlights**", res.Content.FetchedContent)
	assert.Equal(t, time.Date(2025, 2, 11, 18, 0, 0, 0, time.UTC), res.Content.PubDate)
}

func TestFetchGitHubIssues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gh/repos/golang/go/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		w.Write([]byte(`[{"title":"runtime: crash","body":"stack trace","html_url":"https://github.com/golang/go/issues/1","created_at":"2025-03-01T08:00:00Z"}]`))
	})
	f, srv := newTestFetchers(t, mux)

	res, err := f.fetchGitHubIssues(context.Background(), &tracker.Tracker{
		Source:      "github.com/golang/go/issues",
		APIEndpoint: srv.URL + "/gh/repos/golang/go/issues?state=open&sort=created&direction=desc",
	})
	require.NoError(t, err)
	assert.Equal(t, "runtime: crash", res.Content.DisplayedContent)
	assert.Equal(t, "https://github.com/golang/go/issues/1", res.Content.Link)
}

func TestFetchGitHub_EmptyList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gh/repos/golang/empty/releases", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	f, srv := newTestFetchers(t, mux)

	_, err := f.fetchGitHubReleases(context.Background(), &tracker.Tracker{APIEndpoint: srv.URL + "/gh/repos/golang/empty/releases"})
	assert.ErrorIs(t, err, ErrNoItems)
}
