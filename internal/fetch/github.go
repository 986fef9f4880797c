package fetch

import (
	"context"
	"strings"

	"github.com/pders01/ntrack/internal/tracker"
)

type githubCommit struct {
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type githubRelease struct {
	Name        string `json:"name"`
	TagName     string `json:"tag_name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}

type githubIssue struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
}

// repoName extracts "owner/repo" from a GitHub source.
func repoName(source string) string {
	_, rest, ok := strings.Cut(source, "github.com/")
	if !ok {
		return "Repository"
	}
	parts := strings.FieldsFunc(strings.SplitN(rest, "?", 2)[0], func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "Repository"
	}
	return parts[0] + "/" + parts[1]
}

func (f *Fetchers) githubIcon() string {
	return strings.TrimRight(f.endpoints.GitHub, "/") + "/favicon.ico"
}

func (f *Fetchers) fetchGitHubCommits(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var commits []githubCommit
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &commits); err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, ErrNoItems
	}

	latest := commits[0]
	subject, _, _ := strings.Cut(latest.Commit.Message, "\n")

	return &Result{
		FeedTitle:  repoName(t.Source),
		FaviconURL: f.githubIcon(),
		Content: tracker.FeedContent{
			DisplayedContent: itemTitle(subject, ""),
			FetchedContent:   "by " + latest.Commit.Author.Name,
			PubDate:          parsePubDate(latest.Commit.Author.Date, f.now()),
			Link:             latest.HTMLURL,
		},
	}, nil
}

func (f *Fetchers) fetchGitHubReleases(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var releases []githubRelease
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &releases); err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, ErrNoItems
	}

	latest := releases[0]
	name := latest.Name
	if name == "" {
		name = latest.TagName
	}

	return &Result{
		FeedTitle:  repoName(t.Source),
		FaviconURL: f.githubIcon(),
		Content: tracker.FeedContent{
			DisplayedContent: itemTitle(name, latest.Body),
			FetchedContent:   excerpt(latest.Body),
			PubDate:          parsePubDate(latest.PublishedAt, f.now()),
			Link:             latest.HTMLURL,
		},
	}, nil
}

func (f *Fetchers) fetchGitHubIssues(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var issues []githubIssue
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &issues); err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, ErrNoItems
	}

	latest := issues[0]
	return &Result{
		FeedTitle:  repoName(t.Source),
		FaviconURL: f.githubIcon(),
		Content: tracker.FeedContent{
			DisplayedContent: itemTitle(latest.Title, latest.Body),
			FetchedContent:   excerpt(latest.Body),
			PubDate:          parsePubDate(latest.CreatedAt, f.now()),
			Link:             latest.HTMLURL,
		},
	}, nil
}
