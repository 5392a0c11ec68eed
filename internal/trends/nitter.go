package trends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// DefaultNitterInstances are tried in order.
var DefaultNitterInstances = []string{
	"https://nitter.privacyredirect.com",
	"https://nitter.catsarch.com",
	"https://nitter.tiekoetter.com",
}

var nitterPaths = []string{"/explore/trends", "/i/trends"}

var navigationWords = map[string]struct{}{
	"トレンド": {}, "検索": {}, "ホーム": {}, "通知": {},
	"メッセージ": {}, "ブックマーク": {}, "プロフィール": {}, "もっと見る": {},
}

// Nitter scrapes X trends from public Nitter instances.
type Nitter struct {
	client    *resty.Client
	instances []string
}

// NewNitter builds the source; empty instances use DefaultNitterInstances.
func NewNitter(client *resty.Client, instances []string) *Nitter {
	if client == nil {
		client = resty.New().SetTimeout(12 * time.Second)
	}
	if len(instances) == 0 {
		instances = DefaultNitterInstances
	}
	return &Nitter{client: client, instances: instances}
}

// Name implements Source.
func (n *Nitter) Name() string { return "twitter" }

// Trends implements Source. It stops at the first page yielding five or more trends.
func (n *Nitter) Trends(ctx context.Context) ([]news.Trend, error) {
	seen := make(map[string]struct{})
	var (
		out  []news.Trend
		errs []error
	)
	for _, base := range n.instances {
		for _, path := range nitterPaths {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("nitter trends: %w", err)
			}
			page := strings.TrimRight(base, "/") + path
			found, err := n.scrape(ctx, page)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, kw := range found {
				key := strings.ToLower(kw)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, news.Trend{ID: news.TrendID(kw), Keyword: kw, Source: "twitter"})
			}
			if len(out) >= 5 {
				return capTrends(out, 15), nil
			}
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("nitter trends: %w", errors.Join(errs...))
	}
	return capTrends(out, 15), nil
}

func (n *Nitter) scrape(ctx context.Context, page string) ([]string, error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", browserAgent).
		SetDoNotParseResponse(true).
		Get(page)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", page, err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("get %s: status %d", page, resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page, err)
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/search") && !strings.Contains(href, "q=") {
			return
		}
		kw := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(a.Text()), "#"))
		if validTrend(kw) {
			out = append(out, kw)
		}
	})
	return out, nil
}

func validTrend(s string) bool {
	n := news.RuneLen(s)
	if n < 2 || n > 80 {
		return false
	}
	_, nav := navigationWords[s]
	return !nav
}

func capTrends(items []news.Trend, n int) []news.Trend {
	if len(items) > n {
		return items[:n]
	}
	return items
}
