// Package headless renders article pages that only fill in their body after
// client-side scripts run.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/chiripo-news/internal/extract"
	"github.com/JakeFAU/chiripo-news/internal/fetcher"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultArticleWait       = 3 * time.Second
	acceptLanguage           = "ja-JP,ja;q=0.9"
)

// blockedResources keeps renders to markup; article text never needs them.
var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.mp4", "*.webm",
}

// Config controls the renderer.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means one.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ArticleWait bounds how long a render waits for an article container
	// after the document is ready. Pages without one fall back to the full DOM.
	ArticleWait time.Duration
}

// Fetcher implements fetcher.PageFetcher on top of headless Chrome.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	container   string
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts a browser allocator. Chrome itself is launched lazily on the
// first Fetch.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ArticleWait <= 0 {
		cfg.ArticleWait = defaultArticleWait
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("lang", "ja-JP"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		container:   extract.ContainerSelector(),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders request.URL and returns the article container's markup, or
// the whole document when no container shows up in time. Request headers are
// not forwarded; the renderer only sends the configured user agent.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return fetcher.Response{}, fmt.Errorf("wait for render slot: %w", err)
	}
	defer f.slots.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	// The caller's deadline still applies to the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &mainDocument{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	html, finalURL, err := f.render(tabCtx, request.URL)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	status, responseURL := doc.result(request.URL, finalURL)
	if status >= http.StatusBadRequest {
		return fetcher.Response{}, fmt.Errorf("render %s: status %d", request.URL, status)
	}
	return fetcher.Response{
		URL:          responseURL,
		StatusCode:   status,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, string, error) {
	var finalURL string
	err := chromedp.Run(ctx,
		f.prepare(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return "", "", err
	}

	if html, ok := f.articleMarkup(ctx); ok {
		return html, finalURL, nil
	}
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", "", err
	}
	return html, finalURL, nil
}

// articleMarkup waits briefly for a container the extractor understands and
// returns its markup when it holds any text.
func (f *Fetcher) articleMarkup(ctx context.Context) (string, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, f.cfg.ArticleWait)
	defer cancel()

	var html string
	err := chromedp.Run(waitCtx,
		chromedp.WaitReady(f.container, chromedp.ByQuery),
		chromedp.OuterHTML(f.container, &html, chromedp.ByQuery),
	)
	if err != nil || extract.Text([]byte(html)) == "" {
		return "", false
	}
	return html, true
}

func (f *Fetcher) prepare() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if err := network.SetBlockedURLs(blockedResources).Do(ctx); err != nil {
			return fmt.Errorf("block resources: %w", err)
		}
		if f.cfg.UserAgent == "" {
			return nil
		}
		ua := emulation.SetUserAgentOverride(f.cfg.UserAgent).WithAcceptLanguage(acceptLanguage)
		if err := ua.Do(ctx); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
		return nil
	})
}

// mainDocument records the first document response of a render, which is the
// article itself rather than an embedded frame.
type mainDocument struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *mainDocument) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != 0 {
		return
	}
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
}

func (d *mainDocument) result(requestURL, finalURL string) (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url := d.status, d.url
	if status == 0 {
		status = http.StatusOK
	}
	if finalURL != "" {
		url = finalURL
	}
	if url == "" {
		url = requestURL
	}
	return status, url
}
