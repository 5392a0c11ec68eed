// Package feed harvests articles from the configured RSS/Atom feeds.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/extract"
	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	// MaxEntriesPerFeed bounds how far back each feed is scanned.
	MaxEntriesPerFeed = 50
	// MaxArticles caps one harvest.
	MaxArticles = 200
	// DefaultUserAgent identifies the harvester to feed hosts.
	DefaultUserAgent = "NewsSite/1.0"
)

// Options configures a Fetcher.
type Options struct {
	FullTextBaseURL string
	UserAgent       string
	Timeout         time.Duration
	Client          *resty.Client
	Clock           news.Clock
	Logger          *zap.Logger
}

// Fetcher downloads and parses every feed in the catalog.
type Fetcher struct {
	catalog      []Source
	client       *resty.Client
	fullTextBase string
	clock        news.Clock
	logger       *zap.Logger
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// New builds a Fetcher over catalog.
func New(catalog []Source, opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = resty.New()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetHeader("User-Agent", ua).SetTimeout(timeout)
	clock := opts.Clock
	if clock == nil {
		clock = utcClock{}
	}
	return &Fetcher{
		catalog:      catalog,
		client:       client,
		fullTextBase: strings.TrimRight(opts.FullTextBaseURL, "/"),
		clock:        clock,
		logger:       logging.OrNop(opts.Logger).Named("feed"),
	}
}

// Fetch harvests all feeds, newest first, deduplicated by article ID.
// Individual feed failures are logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context) ([]news.Article, error) {
	seen := make(map[string]struct{})
	var all []news.Article
	for _, src := range f.catalog {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch feeds: %w", err)
		}
		items, err := f.fetchOne(ctx, src)
		if err != nil {
			metrics.ObserveFeed(src.Name, "error", 0)
			f.logger.Warn("feed fetch failed", zap.String("source", src.Name), zap.String("url", src.URL), zap.Error(err))
			continue
		}
		added := 0
		for _, a := range items {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			all = append(all, a)
			added++
		}
		metrics.ObserveFeed(src.Name, "ok", added)
		f.logger.Debug("feed harvested", zap.String("source", src.Name), zap.Int("items", added))
	}
	news.SortByPublished(all)
	if len(all) > MaxArticles {
		all = all[:MaxArticles]
	}
	return all, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source) ([]news.Article, error) {
	resp, err := f.client.R().SetContext(ctx).Get(FeedURL(f.fullTextBase, src.URL))
	if err != nil {
		return nil, fmt.Errorf("download feed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download feed: status %d", resp.StatusCode())
	}
	parsed, err := gofeed.NewParser().ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	now := f.clock.Now()
	entries := parsed.Items
	if len(entries) > MaxEntriesPerFeed {
		entries = entries[:MaxEntriesPerFeed]
	}
	out := make([]news.Article, 0, len(entries))
	for _, item := range entries {
		if item == nil {
			continue
		}
		out = append(out, toArticle(item, src, now))
	}
	return out, nil
}

// FeedURL routes original through a Full-Text RSS proxy when base is set.
func FeedURL(base, original string) string {
	if base == "" {
		return original
	}
	return fmt.Sprintf("%s/makefulltextfeed.php?url=%s&max=%d", base, url.QueryEscape(original), MaxEntriesPerFeed)
}

func toArticle(item *gofeed.Item, src Source, now time.Time) news.Article {
	published := now
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}
	return news.Article{
		ID:        news.ArticleID(item.Link, item.Title),
		Title:     item.Title,
		Link:      item.Link,
		Summary:   news.CleanSummary(combinedSummary(item), news.DefaultSummaryLimit),
		Published: published,
		Source:    src.Name,
		Category:  news.DetectCategory(item.Title, src.Category),
		ImageURL:  entryImage(item),
	}
}

// combinedSummary joins the description with full content so the AI sees as
// much of the story as the feed offers.
func combinedSummary(item *gofeed.Item) string {
	summary := item.Description
	content := strings.TrimSpace(item.Content)
	if content != "" && !strings.Contains(summary, content) {
		if summary == "" {
			return content
		}
		return summary + "\n\n" + content
	}
	return summary
}

func entryImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
			// media:content may nest media:thumbnail
			for _, ext := range media["group"] {
				for _, child := range ext.Children[key] {
					if u := child.Attrs["url"]; u != "" {
						return u
					}
				}
			}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	return extract.Image(item.Description)
}
