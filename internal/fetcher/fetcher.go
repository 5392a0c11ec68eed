// Package fetcher retrieves article pages and extracts their body text.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/extract"
	"github.com/JakeFAU/chiripo-news/internal/fetcher/detector"
	"github.com/JakeFAU/chiripo-news/internal/logging"
)

// Request describes a single page retrieval.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw page returned by a PageFetcher.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PageFetcher fetches a URL and returns the body plus metadata.
type PageFetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Body is an article page with its extracted text.
type Body struct {
	URL          string
	HTML         []byte
	Text         string
	UsedHeadless bool
}

// Limiter holds a fetch back until the host may be contacted again.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Promoter decides whether a plain page must be rendered headless.
type Promoter interface {
	ShouldPromote(status int, body []byte, text string) bool
}

// BodyFetcher fetches pages with a plain HTTP fetcher and promotes to a
// headless browser when the plain page looks client-rendered.
type BodyFetcher struct {
	primary  PageFetcher
	headless PageFetcher
	promoter Promoter
	limiter  Limiter
	logger   *zap.Logger
}

// NewBodyFetcher wires the fetchers. headless may be nil.
func NewBodyFetcher(primary PageFetcher, headless PageFetcher, logger *zap.Logger) *BodyFetcher {
	return &BodyFetcher{
		primary:  primary,
		headless: headless,
		promoter: detector.NewHeuristic(0),
		logger:   logging.OrNop(logger).Named("body_fetcher"),
	}
}

// WithLimiter throttles every fetch through l.
func (f *BodyFetcher) WithLimiter(l Limiter) *BodyFetcher {
	f.limiter = l
	return f
}

// FetchBody returns the page at url. Body.Text is empty when nothing readable was found.
func (f *BodyFetcher) FetchBody(ctx context.Context, url string) (Body, error) {
	if url == "" || url == "#" {
		return Body{}, errors.New("fetch body: empty url")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return Body{}, fmt.Errorf("fetch body: %w", err)
		}
	}
	resp, err := f.primary.Fetch(ctx, Request{URL: url})
	if err != nil && f.headless == nil {
		return Body{}, fmt.Errorf("fetch body: %w", err)
	}
	var body Body
	if err == nil {
		body = Body{URL: resp.URL, HTML: resp.Body, Text: extract.Text(resp.Body)}
		if f.headless == nil || !f.promoter.ShouldPromote(resp.StatusCode, resp.Body, body.Text) {
			return body, nil
		}
	} else {
		f.logger.Debug("plain fetch failed, trying headless", zap.String("url", url), zap.Error(err))
	}

	rendered, herr := f.headless.Fetch(ctx, Request{URL: url})
	if herr != nil {
		if err != nil {
			return Body{}, fmt.Errorf("fetch body: %w", errors.Join(err, herr))
		}
		f.logger.Warn("headless fetch failed", zap.String("url", url), zap.Error(herr))
		return body, nil
	}
	return Body{
		URL:          rendered.URL,
		HTML:         rendered.Body,
		Text:         extract.Text(rendered.Body),
		UsedHeadless: true,
	}, nil
}
