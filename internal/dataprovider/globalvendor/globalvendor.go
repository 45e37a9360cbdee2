// Package globalvendor implements a market-agnostic news provider: it
// serves the Data Provider Registry's CapNews capability for any market,
// filling the gap left by usvendor (Yahoo Finance quote/chart only, no
// news endpoint). Articles come from general market wire-service RSS
// feeds (gofeed), with goquery stripping HTML from summaries, and are
// post-filtered by ticker keywords.
package globalvendor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/tradingagents/internal/dataprovider"
)

// Feed names one RSS source this vendor polls for CapNews.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds lists general market-wire RSS feeds, deliberately not
// scoped to any single exchange — MarketScope returns nil so this vendor
// registers as the CapNews fallback across every market.
var DefaultFeeds = []Feed{
	{Name: "Reuters Business", URL: "https://feeds.reuters.com/reuters/businessNews"},
	{Name: "MarketWatch Top Stories", URL: "https://feeds.marketwatch.com/marketwatch/topstories/"},
	{Name: "Yahoo Finance", URL: "https://finance.yahoo.com/news/rssindex"},
}

type article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}

// Vendor fetches and filters general financial news by ticker keyword.
type Vendor struct {
	feeds  []Feed
	parser *gofeed.Parser
}

// New creates the vendor with DefaultFeeds.
func New() *Vendor {
	return &Vendor{feeds: DefaultFeeds, parser: gofeed.NewParser()}
}

// NewWithFeeds creates the vendor against a custom feed list.
func NewWithFeeds(feeds []Feed) *Vendor {
	return &Vendor{feeds: feeds, parser: gofeed.NewParser()}
}

func (v *Vendor) Name() string { return "global-news" }

// MarketScope returns nil: this vendor serves every market.
func (v *Vendor) MarketScope() []string { return nil }

func (v *Vendor) Fetch(ctx context.Context, cap dataprovider.Capability, params dataprovider.QueryParams) (json.RawMessage, error) {
	// Social-sentiment requests reuse the same keyword-matched article
	// sweep; the analyst prompt frames the mentions, not the vendor.
	if cap != dataprovider.CapNews && cap != dataprovider.CapSocial {
		return nil, fmt.Errorf("globalvendor: capability %s not supported", cap)
	}

	keywords := tickerKeywords(params.Ticker)
	var matched []article
	for _, f := range v.feeds {
		items, err := v.fetchRSS(ctx, f)
		if err != nil {
			continue // a dead feed is not worth failing the whole query
		}
		for _, a := range items {
			if matchesAny(a.Title+" "+a.Summary, keywords) {
				matched = append(matched, a)
			}
		}
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("globalvendor: no matching articles for %s", params.Ticker)
	}
	return json.Marshal(matched)
}

func (v *Vendor) fetchRSS(ctx context.Context, f Feed) ([]article, error) {
	feed, err := v.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", f.Name, err)
	}

	articles := make([]article, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := article{
			Title:   item.Title,
			URL:     item.Link,
			Source:  f.Name,
			Summary: cleanHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

func tickerKeywords(ticker string) []string {
	t := strings.ToLower(ticker)
	return []string{t}
}

func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
