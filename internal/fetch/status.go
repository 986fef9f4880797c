package fetch

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/pders01/ntrack/internal/tracker"
)

const twitchIcon = "https://www.twitch.tv/favicon.ico"

type weatherResponse struct {
	CurrentCondition []struct {
		TempF       string `json:"temp_F"`
		TempC       string `json:"temp_C"`
		FeelsLikeF  string `json:"FeelsLikeF"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

var (
	weatherPrefix = regexp.MustCompile(`(?i)^weather\s+(?:(?:in|for)\s+)?`)
	weatherSuffix = regexp.MustCompile(`(?i)\s+weather$`)
)

// weatherCity recovers the location from a weather phrase.
func weatherCity(source string) string {
	s := strings.TrimSpace(source)
	s = weatherPrefix.ReplaceAllString(s, "")
	s = weatherSuffix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (f *Fetchers) fetchWeather(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var data weatherResponse
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &data); err != nil {
		return nil, err
	}
	if len(data.CurrentCondition) == 0 {
		return nil, errors.New("no current conditions in response")
	}

	cur := data.CurrentCondition[0]
	desc := "Unknown"
	if len(cur.WeatherDesc) > 0 && strings.TrimSpace(cur.WeatherDesc[0].Value) != "" {
		desc = strings.TrimSpace(cur.WeatherDesc[0].Value)
	}

	temp, feels := cur.TempF, cur.FeelsLikeF
	if f.units == "C" {
		temp, feels = cur.TempC, cur.FeelsLikeC
	}
	unit := "°" + f.units

	return &Result{
		FeedTitle:  "Weather in " + weatherCity(t.Source),
		FaviconURL: siteIcon(f.endpoints.Weather),
		Content: tracker.FeedContent{
			DisplayedContent: desc + ", " + temp + unit,
			FetchedContent:   "Feels like " + feels + unit,
			PubDate:          f.now(),
		},
	}, nil
}

func (f *Fetchers) fetchTwitch(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	text, err := f.client.GetText(ctx, t.APIEndpoint)
	if err != nil {
		return nil, err
	}

	live := !strings.Contains(strings.ToLower(text), "offline")
	content := tracker.FeedContent{
		DisplayedContent: "offline ⚫",
		FetchedContent:   "Not streaming",
		PubDate:          f.now(),
	}
	if live {
		content.DisplayedContent = "LIVE 🟣"
		content.FetchedContent = truncate(strings.TrimSpace(text), excerptLength)
	}

	return &Result{
		FeedTitle:  "Twitch: " + lastSegment(t.Source),
		FaviconURL: twitchIcon,
		Content:    content,
	}, nil
}
