package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/pders01/ntrack/internal/tracker"
)

const (
	trendUp   = "🟢"
	trendDown = "🔻"
)

var usPrinter = message.NewPrinter(language.English)

// money renders v with thousands separators and two decimals.
func money(v float64) string {
	return usPrinter.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// change renders the trend emoji and signed percentage, e.g. "🟢 +1.25%".
func change(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("%s +%.2f%%", trendUp, pct)
	}
	return fmt.Sprintf("%s %.2f%%", trendDown, pct)
}

// siteIcon returns scheme://host/favicon.ico for a page URL.
func siteIcon(page string) string {
	u, err := url.Parse(page)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico"
}

type coinQuote struct {
	USD       *float64 `json:"usd"`
	Change24h float64  `json:"usd_24h_change"`
}

// coinID prefers the ids parameter of the endpoint; the source only matters
// for trackers persisted without one.
func coinID(t *tracker.Tracker) string {
	if u, err := url.Parse(t.APIEndpoint); err == nil {
		if id := u.Query().Get("ids"); id != "" {
			return id
		}
	}
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(t.Source))
}

func (f *Fetchers) fetchCrypto(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var data map[string]coinQuote
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &data); err != nil {
		return nil, err
	}

	id := coinID(t)
	coin, ok := data[id]
	if !ok || coin.USD == nil {
		return nil, fmt.Errorf("coin %q not found", id)
	}

	price := "$" + money(*coin.USD)
	return &Result{
		FeedTitle:  strings.ToUpper(id[:1]) + id[1:],
		FaviconURL: siteIcon(f.endpoints.CoinPage),
		Content: tracker.FeedContent{
			DisplayedContent: price + " " + change(coin.Change24h),
			FetchedContent:   price,
			PubDate:          f.now(),
		},
	}, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol                     string   `json:"symbol"`
				RegularMarketPrice         *float64 `json:"regularMarketPrice"`
				RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
				RegularMarketChange        *float64 `json:"regularMarketChange"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (f *Fetchers) fetchStock(ctx context.Context, t *tracker.Tracker) (*Result, error) {
	var data chartResponse
	if err := f.client.GetJSON(ctx, t.APIEndpoint, &data); err != nil {
		return nil, err
	}
	if e := data.Chart.Error; e != nil {
		return nil, fmt.Errorf("quote error %s: %s", e.Code, e.Description)
	}
	if len(data.Chart.Result) == 0 {
		return nil, errors.New("no quote in response")
	}

	meta := data.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return nil, errors.New("quote has no market price")
	}

	var pct float64
	switch {
	case meta.RegularMarketChangePercent != nil:
		pct = *meta.RegularMarketChangePercent
	case meta.RegularMarketChange != nil:
		pct = *meta.RegularMarketChange
	}

	price := fmt.Sprintf("%.2f", *meta.RegularMarketPrice)
	return &Result{
		FeedTitle:  strings.ToUpper(strings.TrimSpace(t.Source)),
		FaviconURL: siteIcon(f.endpoints.StockPage),
		Content: tracker.FeedContent{
			DisplayedContent: price + " " + change(pct),
			FetchedContent:   price,
			PubDate:          f.now(),
		},
	}, nil
}
