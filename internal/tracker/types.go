package tracker

import "fmt"

// Type identifies the upstream source kind of a tracker.
type Type string

const (
	TypeRSS               Type = "rss"
	TypeJSON              Type = "json"
	TypeCrypto            Type = "crypto"
	TypeStock             Type = "stock"
	TypeWeather           Type = "weather"
	TypeYouTube           Type = "youtube"
	TypeGitHubCommits     Type = "github-commits"
	TypeGitHubReleases    Type = "github-releases"
	TypeGitHubIssues      Type = "github-issues"
	TypeGitHubDiscussions Type = "github-discussions"
	TypeTwitch            Type = "twitch"
	TypeMedium            Type = "medium"
	TypeDevTo             Type = "devto"
	TypeSubstack          Type = "substack"
	TypeTwitter           Type = "twitter"
	TypeMastodon          Type = "mastodon"
)

var allTypes = []Type{
	TypeRSS,
	TypeJSON,
	TypeCrypto,
	TypeStock,
	TypeWeather,
	TypeYouTube,
	TypeGitHubCommits,
	TypeGitHubReleases,
	TypeGitHubIssues,
	TypeGitHubDiscussions,
	TypeTwitch,
	TypeMedium,
	TypeDevTo,
	TypeSubstack,
	TypeTwitter,
	TypeMastodon,
}

// AllTypes returns every known type in a stable order.
func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

var labels = map[Type]string{
	TypeRSS:               "RSS Feed",
	TypeJSON:              "JSON Feed",
	TypeCrypto:            "Cryptocurrency",
	TypeStock:             "Stock Price",
	TypeWeather:           "Weather",
	TypeYouTube:           "YouTube Channel",
	TypeGitHubCommits:     "GitHub Commits",
	TypeGitHubReleases:    "GitHub Releases",
	TypeGitHubIssues:      "GitHub Issues",
	TypeGitHubDiscussions: "GitHub Discussions",
	TypeTwitch:            "Twitch Stream",
	TypeMedium:            "Medium Author",
	TypeDevTo:             "Dev.to Author",
	TypeSubstack:          "Substack Newsletter",
	TypeTwitter:           "X/Twitter User",
	TypeMastodon:          "Mastodon User",
}

// Label is the human readable name shown next to a tracker.
func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// HasPublishTime reports whether content of this type carries its own
// publication time. Snapshot types stamp every fetch with the fetch time.
func (t Type) HasPublishTime() bool {
	switch t {
	case TypeCrypto, TypeStock, TypeWeather, TypeTwitch, TypeJSON:
		return false
	}
	return true
}

func (t Type) Valid() bool {
	_, ok := labels[t]
	return ok
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tracker type %q", s)
	}
	return t, nil
}
