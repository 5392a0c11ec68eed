package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

// DefaultRapidAPIHost serves the Super Duper Trends API.
const DefaultRapidAPIHost = "super-duper-trends.p.rapidapi.com"

var rapidPaths = []string{"/trending/now", "/trending/hourly", "/v1/trending", "/trending"}

var (
	rapidListKeys    = []string{"items", "data", "trends", "hourly", "results"}
	rapidKeywordKeys = []string{"keyword", "title", "query", "name"}
)

// RapidAPI reads trending keywords from the RapidAPI Super Duper Trends API.
type RapidAPI struct {
	client  *resty.Client
	key     string
	host    string
	baseURL string
}

// NewRapidAPI returns nil when key is blank. A nil source reports no trends.
func NewRapidAPI(client *resty.Client, key, host string) *RapidAPI {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	if host == "" {
		host = DefaultRapidAPIHost
	}
	return &RapidAPI{client: client, key: key, host: host, baseURL: "https://" + host}
}

// WithBaseURL points requests at another origin while keeping the host header.
func (r *RapidAPI) WithBaseURL(base string) *RapidAPI {
	r.baseURL = strings.TrimRight(base, "/")
	return r
}

// Name implements Source.
func (r *RapidAPI) Name() string { return "rapidapi" }

// Trends implements Source. Paths are tried in order until one answers 200.
func (r *RapidAPI) Trends(ctx context.Context) ([]news.Trend, error) {
	if r == nil {
		return nil, nil
	}
	var lastErr error
	for _, path := range rapidPaths {
		resp, err := r.client.R().
			SetContext(ctx).
			SetHeader("X-RapidAPI-Key", r.key).
			SetHeader("X-RapidAPI-Host", r.host).
			Get(r.baseURL + path)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() != 200 {
			continue
		}
		items, ok := rapidItems(resp.Body())
		if !ok {
			continue
		}
		return rapidTrends(items), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("rapidapi trends: %w", lastErr)
	}
	return nil, nil
}

func rapidItems(body []byte) ([]any, bool) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	switch v := payload.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range rapidListKeys {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				return list, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

func rapidTrends(items []any) []news.Trend {
	if len(items) > 25 {
		items = items[:25]
	}
	var out []news.Trend
	for _, entry := range items {
		kw := ""
		switch v := entry.(type) {
		case string:
			kw = v
		case map[string]any:
			for _, key := range rapidKeywordKeys {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					kw = s
					break
				}
			}
		}
		kw = strings.TrimSpace(kw)
		if news.RuneLen(kw) < 2 {
			continue
		}
		out = append(out, news.Trend{ID: news.TrendID("sdt-" + kw), Keyword: kw, Source: "google"})
	}
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}
