package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-recap/internal/market"
)

const notAvailable = "N/A"

// NewsOptions parameterise the Google News RSS fetcher.
type NewsOptions struct {
	BaseURL   string
	MaxItems  int
	Timeout   time.Duration
	RateLimit float64
	Retry     RetryOptions
	UserAgent string
}

// GoogleNews fetches headlines from the Google News RSS search feed.
type GoogleNews struct {
	opts    NewsOptions
	baseURL string
	client  *client
}

// NewGoogleNews constructs a news source.
func NewGoogleNews(opts NewsOptions, logger zerolog.Logger) *GoogleNews {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://news.google.com/rss/search"
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 3
	}
	log := logger.With().Str("component", "news_fetcher").Logger()
	return &GoogleNews{
		opts:    opts,
		baseURL: baseURL,
		client:  newClient("google_news", opts.Timeout, opts.RateLimit, opts.Retry, opts.UserAgent, log),
	}
}

// NewsQuery builds the search phrase for a ticker; "-USD" pairs are searched
// as crypto assets.
func NewsQuery(ticker string) string {
	if base, found := strings.CutSuffix(ticker, "-USD"); found {
		return base + " crypto"
	}
	return ticker + " stock"
}

// FetchNews returns the first MaxItems headlines for ticker.
func (g *GoogleNews) FetchNews(ctx context.Context, ticker string) Result[market.NewsItem] {
	q := url.Values{}
	q.Set("q", NewsQuery(ticker))
	q.Set("hl", "en-US")
	q.Set("gl", "US")
	q.Set("ceid", "US:en")

	body, err := g.client.get(ctx, g.baseURL+"?"+q.Encode())
	if err != nil {
		if !retryable(err) {
			return noData[market.NewsItem](err)
		}
		return transient[market.NewsItem](err)
	}

	items, err := decodeFeed(ticker, body, g.opts.MaxItems)
	if err != nil {
		return transient[market.NewsItem](err)
	}
	return ok(items)
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Source  string `xml:"source"`
}

func decodeFeed(ticker string, payload []byte, limit int) ([]market.NewsItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal(payload, &feed); err != nil {
		return nil, fmt.Errorf("rss decode: %w", err)
	}

	items := feed.Channel.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]market.NewsItem, 0, len(items))
	for _, it := range items {
		out = append(out, market.NewsItem{
			Ticker:        ticker,
			Title:         orNA(it.Title),
			Publisher:     orNA(it.Source),
			PublishedDate: orNA(it.PubDate),
			Link:          strings.TrimSpace(it.Link),
		})
	}
	return out, nil
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notAvailable
	}
	return s
}

var _ NewsSource = (*GoogleNews)(nil)
