// Package pipeline turns harvested feed items into explained site articles.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/chiripo-news/internal/fetcher"
	"github.com/JakeFAU/chiripo-news/internal/hash/sha256"
	"github.com/JakeFAU/chiripo-news/internal/history"
	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	maxBodyRunes          = 40000
	maxManualContentRunes = 20000
	bodyContentType       = "text/html; charset=utf-8"
	defaultManualSource   = "編集部"
)

// User-facing result messages.
const (
	MsgNoFeedItems      = "RSSから記事を取得できませんでした。フィードURLやネットワークを確認してください。"
	MsgNotReadable      = "記事の保存後に取得できませんでした。data フォルダの権限やDBを確認してください。"
	MsgGenerateFailed   = "AI解説の生成に失敗しました。.env の OPENAI_API_KEY を確認し、利用可能なモデル（OPENAI_MODEL）を指定してください。"
	MsgManualFailed     = "AIによる記事生成に失敗しました"
	MsgManualSaveFailed = "記事の保存に失敗しました"
	MsgNothingToAdd     = "取り込める記事がありません"
)

// ErrNoBlocks reports an explanation without any content blocks.
var ErrNoBlocks = errors.New("explanation has no blocks")

// AI is the subset of the AI service the pipeline drives.
type AI interface {
	LongBubbles(ctx context.Context, title, content string) []news.Block
	PersonaOpinion(ctx context.Context, title, content string, id int) string
	TranslateAndRewrite(ctx context.Context, title, summary string) (string, string)
	TranslateBody(ctx context.Context, body string) string
	QuickUnderstand(ctx context.Context, title, content string) *news.QuickUnderstand
	VoteQuestion(ctx context.Context, title, content string) *news.VoteQuestion
}

// BodyFetcher retrieves an article page.
type BodyFetcher interface {
	FetchBody(ctx context.Context, url string) (fetcher.Body, error)
}

// FeedSource harvests feed items.
type FeedSource interface {
	Fetch(ctx context.Context) ([]news.Article, error)
}

// TrendSource returns trending keywords.
type TrendSource interface {
	Fetch(ctx context.Context) []news.Trend
}

// Ranker orders candidates by search potential.
type Ranker interface {
	RankAndFilter(ctx context.Context, items []news.Article, trends []string, limit int, now time.Time) []news.Article
}

// Deps are the collaborators of a Pipeline. Bodies, Ranker, Blobs and
// Publisher are optional.
type Deps struct {
	Store     news.Store
	AI        AI
	Bodies    BodyFetcher
	Feed      FeedSource
	Trends    TrendSource
	Ranker    Ranker
	Blobs     news.BlobStore
	Publisher news.Publisher
	History   *history.Log
	Clock     news.Clock
	Logger    *zap.Logger
}

// Config tunes candidate selection.
type Config struct {
	BlobPrefix string
	// Ranking is "trend" (keyword matches) or "score" (search potential).
	Ranking           string
	DailyArticleLimit int
}

// Pipeline processes feed items into stored explanations and articles.
type Pipeline struct {
	Deps
	cfg Config
}

// New builds a Pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	deps.Logger = logging.OrNop(deps.Logger).Named("pipeline")
	if deps.History == nil {
		deps.History = history.New(deps.Clock)
	}
	return &Pipeline{Deps: deps, cfg: cfg}
}

func (p *Pipeline) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now()
}

// GenerateAll returns the cached explanation for id or generates the
// middleman blocks and all persona opinions concurrently and stores them.
// A failed persona leaves an empty slot.
func (p *Pipeline) GenerateAll(ctx context.Context, id, title, content string) (news.Explanation, error) {
	cached, err := p.Store.GetExplanation(ctx, id)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, news.ErrNotFound) {
		p.Logger.Warn("read explanation cache", zap.String("article_id", id), zap.Error(err))
	}

	exp := news.Explanation{
		ArticleID: id,
		Personas:  make([]string, news.PersonaCount),
		CreatedAt: p.now(),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		exp.Blocks = p.AI.LongBubbles(gctx, title, content)
		return nil
	})
	for i := range news.PersonaCount {
		g.Go(func() error {
			exp.Personas[i] = p.AI.PersonaOpinion(gctx, title, content, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return news.Explanation{}, err
	}
	if len(exp.Blocks) == 0 {
		return news.Explanation{}, ErrNoBlocks
	}
	if err := p.Store.SaveExplanation(ctx, exp); err != nil {
		return news.Explanation{}, fmt.Errorf("save explanation: %w", err)
	}
	return exp, nil
}

// ProcessArticle explains item and publishes it on the site. It reports false
// without error when the item was already explained and force is off.
func (p *Pipeline) ProcessArticle(ctx context.Context, item news.Article, force bool) (bool, error) {
	if !force {
		if _, err := p.Store.GetExplanation(ctx, item.ID); err == nil {
			return false, nil
		}
	}
	logger := p.Logger.With(zap.String("article_id", item.ID), zap.String("source", item.Source))

	if news.IsForeign(item.Source, item.Title, item.Summary) {
		item.Title, item.Summary = p.AI.TranslateAndRewrite(ctx, item.Title, item.Summary)
	}

	content := news.SanitizeDisplayText(item.Title + "\n\n" + item.Summary)
	if body := p.fetchBody(ctx, item); body != "" {
		body = news.Truncate(news.SanitizeDisplayText(body), maxBodyRunes)
		if news.IsForeign(item.Source, item.Title, body) {
			body = p.AI.TranslateBody(ctx, body)
		}
		content = news.SanitizeDisplayText(item.Title + "\n\n" + item.Summary + "\n\n" + body)
	}

	if _, err := p.GenerateAll(ctx, item.ID, item.Title, content); err != nil {
		metrics.ObserveArticle("failed")
		p.History.Add(item.ID, item.Title, err, history.SourceRSS)
		return false, fmt.Errorf("generate explanation %s: %w", item.ID, err)
	}
	if err := p.Store.SaveArticle(ctx, item); err != nil {
		metrics.ObserveArticle("failed")
		p.History.Add(item.ID, item.Title, err, history.SourceRSS)
		return false, fmt.Errorf("save article %s: %w", item.ID, err)
	}
	metrics.ObserveArticle("processed")
	p.History.Add(item.ID, item.Title, nil, history.SourceRSS)
	p.publish(ctx, item)
	logger.Info("article published")
	return true, nil
}

// fetchBody returns the extracted page text, archiving the raw HTML when a
// blob store is configured. Failures yield "".
func (p *Pipeline) fetchBody(ctx context.Context, item news.Article) string {
	if p.Bodies == nil || item.Link == "" || item.Link == "#" {
		return ""
	}
	body, err := p.Bodies.FetchBody(ctx, item.Link)
	if err != nil {
		metrics.ObserveBodyFetch(item.Link, "error")
		p.Logger.Debug("body fetch failed", zap.String("url", item.Link), zap.Error(err))
		return ""
	}
	status := "ok"
	if body.Text == "" {
		status = "empty"
	}
	metrics.ObserveBodyFetch(item.Link, status)

	if p.Blobs != nil && len(body.HTML) > 0 {
		path := sha256.BodyPath(p.cfg.BlobPrefix, item.ID, body.HTML)
		if _, err := p.Blobs.PutObject(ctx, path, bodyContentType, bytes.NewReader(body.HTML)); err != nil {
			p.Logger.Warn("archive body", zap.String("path", path), zap.Error(err))
		}
	}
	return body.Text
}

func (p *Pipeline) publish(ctx context.Context, a news.Article) {
	if p.Publisher == nil {
		return
	}
	evt := news.PublishedEvent{
		ArticleID:   a.ID,
		Title:       a.Title,
		Source:      a.Source,
		Category:    a.Category,
		Link:        a.Link,
		PublishedAt: a.Published,
	}
	if _, err := p.Publisher.Publish(ctx, news.EventArticlePublished, evt); err != nil {
		p.Logger.Warn("publish article event", zap.String("article_id", a.ID), zap.Error(err))
	}
}

// ProcessNew explains up to max items that have no explanation yet. When
// every item is already explained the top max are reprocessed so a manual
// refresh always lands something.
func (p *Pipeline) ProcessNew(ctx context.Context, items []news.Article, limit int, keywords []string) int {
	if len(items) == 0 || limit <= 0 {
		return 0
	}
	explained, err := p.Store.ExplainedIDs(ctx)
	if err != nil {
		p.Logger.Warn("list explained ids", zap.Error(err))
		explained = map[string]struct{}{}
	}
	var fresh []news.Article
	for _, a := range items {
		if _, ok := explained[a.ID]; !ok {
			fresh = append(fresh, a)
		}
	}
	fresh = p.rank(ctx, fresh, keywords)

	force := false
	candidates := fresh
	if len(candidates) == 0 {
		candidates = items
		if len(keywords) > 0 {
			candidates = news.RankByTrending(items, keywords)
		}
		force = true
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	count := 0
	for _, item := range candidates {
		if ctx.Err() != nil {
			break
		}
		ok, err := p.ProcessArticle(ctx, item, force)
		if err != nil {
			p.Logger.Warn("process article", zap.String("article_id", item.ID), zap.Error(err))
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

func (p *Pipeline) rank(ctx context.Context, items []news.Article, keywords []string) []news.Article {
	if p.cfg.Ranking == "score" && p.Ranker != nil {
		pool := p.cfg.DailyArticleLimit
		if pool <= 0 {
			pool = len(items)
		}
		return p.Ranker.RankAndFilter(ctx, items, keywords, pool, p.now())
	}
	if len(keywords) > 0 {
		return news.RankByTrending(items, keywords)
	}
	return items
}

// ForceAddOne harvests feeds, picks the most trending item, drops its cached
// explanation and reprocesses it.
func (p *Pipeline) ForceAddOne(ctx context.Context) news.Result {
	items, err := p.Feed.Fetch(ctx)
	if err != nil || len(items) == 0 {
		if err != nil {
			p.Logger.Warn("fetch feeds", zap.Error(err))
		}
		return news.Result{Status: news.ResultError, Message: MsgNoFeedItems}
	}
	keywords := p.keywords(ctx)
	if len(keywords) > 0 {
		items = news.RankByTrending(items, keywords)
	}
	item := items[0]
	if _, err := p.Store.DeleteExplanation(ctx, item.ID); err != nil {
		p.Logger.Warn("drop explanation", zap.String("article_id", item.ID), zap.Error(err))
	}
	ok, err := p.ProcessArticle(ctx, item, true)
	if err != nil || !ok {
		if err != nil {
			p.Logger.Warn("force add", zap.String("article_id", item.ID), zap.Error(err))
		}
		return news.Result{Status: news.ResultError, Message: MsgGenerateFailed}
	}
	if _, err := p.Store.GetArticle(ctx, item.ID); err != nil {
		return news.Result{Status: news.ResultError, Message: MsgNotReadable}
	}
	id := item.ID
	return news.Result{Status: news.ResultOK, ArticleID: &id}
}

func (p *Pipeline) keywords(ctx context.Context) []string {
	if p.Trends == nil {
		return nil
	}
	return news.Keywords(p.Trends.Fetch(ctx))
}

// CreateManual generates an explained article from an editor's outline.
func (p *Pipeline) CreateManual(ctx context.Context, in news.ManualInput) (news.Result, error) {
	title := strings.TrimSpace(in.Title)
	summary := strings.TrimSpace(in.Summary)
	if title == "" || summary == "" {
		return news.Result{}, errors.New("title and summary are required")
	}
	raw, err := uuid.NewRandom()
	if err != nil {
		return news.Result{}, fmt.Errorf("generate article id: %w", err)
	}
	id := "manual-" + strings.ReplaceAll(raw.String(), "-", "")[:16]

	content := news.Truncate(news.SanitizeDisplayText(title+"\n\n"+summary), maxManualContentRunes)
	if _, err := p.GenerateAll(ctx, id, title, content); err != nil {
		p.Logger.Warn("manual article generation", zap.String("article_id", id), zap.Error(err))
		p.History.Add(id, title, err, history.SourceManual)
		return news.Result{Status: news.ResultError, Message: MsgManualFailed}, nil
	}

	article := news.Article{
		ID:        id,
		Title:     title,
		Link:      orDefault(strings.TrimSpace(in.Link), "#"),
		Summary:   news.Truncate(summary, news.StoredSummaryLimit),
		Published: p.now(),
		Source:    orDefault(strings.TrimSpace(in.Source), defaultManualSource),
		Category:  news.CategoryGeneral,
	}
	if err := p.Store.SaveArticle(ctx, article); err != nil {
		p.History.Add(id, title, err, history.SourceManual)
		return news.Result{Status: news.ResultError, Message: MsgManualSaveFailed}, nil
	}
	p.History.Add(id, title, nil, history.SourceManual)
	p.publish(ctx, article)
	return news.Result{Status: news.ResultOK, ArticleID: &id}, nil
}

// Seed stores up to target articles without explanations, preferring
// trending items. Foreign items are translated first.
func (p *Pipeline) Seed(ctx context.Context, target int) (int, error) {
	existing, err := p.Store.ListArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}
	need := target - len(existing)
	if need <= 0 {
		return 0, nil
	}
	items, err := p.Feed.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch feeds: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		known[a.ID] = struct{}{}
	}
	var candidates []news.Article
	for _, a := range items {
		if _, ok := known[a.ID]; !ok {
			candidates = append(candidates, a)
		}
	}
	candidates = news.RankByTrending(candidates, p.keywords(ctx))
	if len(candidates) > need {
		candidates = candidates[:need]
	}
	for i, a := range candidates {
		if news.IsForeign(a.Source, a.Title, a.Summary) {
			candidates[i].Title, candidates[i].Summary = p.AI.TranslateAndRewrite(ctx, a.Title, a.Summary)
		}
	}

	inserted, err := p.Store.SaveArticles(ctx, candidates)
	for _, a := range candidates {
		p.History.Add(a.ID, a.Title, err, history.SourceSeed)
	}
	if err != nil {
		return inserted, fmt.Errorf("save seeded articles: %w", err)
	}
	return inserted, nil
}

// Saved returns the stored explanation for id, or news.ErrNotFound. It never
// calls the AI.
func (p *Pipeline) Saved(ctx context.Context, id string) (news.Explanation, error) {
	exp, err := p.Store.GetExplanation(ctx, id)
	if err != nil {
		return news.Explanation{}, fmt.Errorf("read explanation %s: %w", id, err)
	}
	return exp, nil
}

// Extras returns the quick-understand digest and poll for an article,
// generating and persisting whichever is missing.
func (p *Pipeline) Extras(ctx context.Context, id string) (*news.QuickUnderstand, *news.VoteQuestion, error) {
	article, err := p.Store.GetArticle(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	content := news.SanitizeDisplayText(article.Title + "\n\n" + article.Summary)

	exp, err := p.Store.GetExplanation(ctx, id)
	cached := err == nil
	if err != nil && !errors.Is(err, news.ErrNotFound) {
		return nil, nil, fmt.Errorf("read explanation: %w", err)
	}
	if cached && exp.QuickUnderstand != nil && exp.Vote != nil {
		return exp.QuickUnderstand, exp.Vote, nil
	}

	changed := false
	if exp.QuickUnderstand == nil {
		exp.QuickUnderstand = p.AI.QuickUnderstand(ctx, article.Title, content)
		changed = changed || exp.QuickUnderstand != nil
	}
	if exp.Vote == nil {
		exp.Vote = p.AI.VoteQuestion(ctx, article.Title, content)
		changed = changed || exp.Vote != nil
	}
	if cached && changed {
		if err := p.Store.SaveExplanation(ctx, exp); err != nil {
			p.Logger.Warn("persist extras", zap.String("article_id", id), zap.Error(err))
		}
	}
	return exp.QuickUnderstand, exp.Vote, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
