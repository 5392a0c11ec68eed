package trends

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// DefaultGoogleRSSURL is the official Japanese trending-searches feed.
const DefaultGoogleRSSURL = "https://trends.google.com/trending/rss?geo=JP"

var genericLabel = regexp.MustCompile(`^トレンド\s*\d+$`)

// GoogleRSS reads Google Trends' daily trending-searches feed.
type GoogleRSS struct {
	client *resty.Client
	url    string
}

// NewGoogleRSS builds the source; an empty url uses DefaultGoogleRSSURL.
func NewGoogleRSS(client *resty.Client, url string) *GoogleRSS {
	if client == nil {
		client = resty.New().SetTimeout(15 * time.Second)
	}
	if url == "" {
		url = DefaultGoogleRSSURL
	}
	return &GoogleRSS{client: client, url: url}
}

// Name implements Source.
func (g *GoogleRSS) Name() string { return "google" }

// Trends implements Source.
func (g *GoogleRSS) Trends(ctx context.Context) ([]news.Trend, error) {
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", browserAgent).
		Get(g.url)
	if err != nil {
		return nil, fmt.Errorf("download google trends: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download google trends: status %d", resp.StatusCode())
	}
	parsed, err := gofeed.NewParser().ParseString(strings.ToValidUTF8(resp.String(), "�"))
	if err != nil {
		return nil, fmt.Errorf("parse google trends: %w", err)
	}
	entries := parsed.Items
	if len(entries) > 25 {
		entries = entries[:25]
	}
	var out []news.Trend
	for _, item := range entries {
		title := strings.TrimSpace(item.Title)
		if title == "" || isGenericLabel(title) {
			continue
		}
		out = append(out, news.Trend{ID: news.TrendID(title), Keyword: title, Source: "google"})
	}
	if len(out) > 20 {
		out = out[:20]
	}
	return out, nil
}

func isGenericLabel(s string) bool {
	s = strings.TrimSpace(s)
	return news.RuneLen(s) < 2 || genericLabel.MatchString(s)
}
