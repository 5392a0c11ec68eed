package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/logging"
	"github.com/JakeFAU/chiripo-news/internal/metrics"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	minBodyTranslateRunes = 50
	maxBodyTranslateRunes = 25000
	minTranslatedRunes    = 100
)

// Service produces every AI-generated artifact shown on the site. A Service
// without a Completer is unconfigured and answers with placeholder text.
type Service struct {
	completer Completer
	logger    *zap.Logger
}

// NewService wraps completer. A nil completer yields an unconfigured service.
func NewService(completer Completer, logger *zap.Logger) *Service {
	return &Service{completer: completer, logger: logging.OrNop(logger).Named("ai")}
}

// Configured reports whether an API key is available.
func (s *Service) Configured() bool {
	return s != nil && s.completer != nil
}

// Close releases provider resources.
func (s *Service) Close() error {
	if !s.Configured() {
		return nil
	}
	return closeCompleter(s.completer)
}

func (s *Service) complete(ctx context.Context, op string, req Request) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	start := time.Now()
	out, err := s.completer.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveAICall(op, status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Explain returns a plain four-part explanation of the article.
func (s *Service) Explain(ctx context.Context, title, content string) string {
	if !s.Configured() {
		return MsgExplainNoKey
	}
	out, err := s.explain(ctx, title, content)
	if err != nil {
		return fmt.Sprintf("（AI解説の取得に失敗しました: %v）", err)
	}
	return out
}

func (s *Service) explain(ctx context.Context, title, content string) (string, error) {
	return s.complete(ctx, "explain", Request{
		System:      explainSystem,
		User:        explainPrompt(title, content),
		MaxTokens:   1500,
		Temperature: Temp(0.3),
	})
}

// LongBubbles rewrites the article as conversational text with middleman
// speech bubbles.
func (s *Service) LongBubbles(ctx context.Context, title, content string) []news.Block {
	if !s.Configured() {
		return []news.Block{
			{Type: news.BlockText, Content: news.Truncate(content, 3000)},
			{Type: news.BlockExplain, Content: MsgNoKey},
		}
	}
	content = news.SanitizeDisplayText(content)
	blocks, err := s.structuredBlocks(ctx, "long_bubbles", longBubblesRole, longBubblesPlainSuffix,
		longBubblesPrompt(title, content), 6000)
	if err == nil {
		return blocks
	}
	s.logger.Warn("long bubbles failed", zap.String("title", title), zap.Error(err))
	return []news.Block{
		{Type: news.BlockText, Content: news.Truncate(content, 3500)},
		{Type: news.BlockExplain, Content: MsgGenerateFailed},
	}
}

// InlineBlocks is the shorter middleman rewrite. When structured output
// fails it falls back to a plain explanation beside the original text.
func (s *Service) InlineBlocks(ctx context.Context, title, content string) []news.Block {
	if !s.Configured() {
		return []news.Block{
			{Type: news.BlockText, Content: content},
			{Type: news.BlockExplain, Content: MsgNoKey},
		}
	}
	content = news.SanitizeDisplayText(content)
	blocks, err := s.structuredBlocks(ctx, "inline_blocks", middlemanRole, inlinePlainSuffix,
		inlinePrompt(title, content), 5000)
	if err == nil {
		return blocks
	}
	s.logger.Warn("inline blocks failed, trying plain explanation", zap.String("title", title), zap.Error(err))
	summary, err := s.explain(ctx, title, news.Truncate(content, 4000))
	if err == nil && summary != "" && !strings.Contains(summary, "APIキー") {
		return []news.Block{
			{Type: news.BlockText, Content: news.Truncate(content, 3500)},
			{Type: news.BlockExplain, Content: summary},
		}
	}
	return []news.Block{
		{Type: news.BlockText, Content: content},
		{Type: news.BlockExplain, Content: MsgStructFailed},
	}
}

// structuredBlocks asks for schema-constrained output first and then for
// free-form JSON.
func (s *Service) structuredBlocks(ctx context.Context, op, system, plainSuffix, prompt string, maxTokens int) ([]news.Block, error) {
	raw, err := s.complete(ctx, op, Request{
		System:      system,
		User:        prompt,
		MaxTokens:   maxTokens,
		Temperature: Temp(0.2),
		Schema:      blocksSchema,
	})
	if err == nil {
		if blocks, perr := parseBlocks(raw); perr == nil {
			return blocks, nil
		}
	} else {
		s.logger.Info("strict schema skipped", zap.String("operation", op), zap.Error(err))
	}

	raw, err = s.complete(ctx, op, Request{
		System:      system + plainSuffix,
		User:        prompt,
		MaxTokens:   maxTokens,
		Temperature: Temp(0.2),
	})
	if err != nil {
		return nil, err
	}
	blocks, err := parsePlainBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", op, err)
	}
	return blocks, nil
}

// Navigator restructures the article into the five navigator sections.
func (s *Service) Navigator(ctx context.Context, title, content string) []news.Block {
	if !s.Configured() {
		return navigatorFallback(MsgNoKey)
	}
	content = news.SanitizeDisplayText(content)
	prompt := navigatorPrompt(title, content)
	raw, err := s.complete(ctx, "navigator", Request{
		System:      navigatorRole,
		User:        prompt,
		MaxTokens:   5000,
		Temperature: Temp(0.2),
		Schema:      navigatorSchema,
	})
	if err != nil {
		s.logger.Info("strict schema skipped", zap.String("operation", "navigator"), zap.Error(err))
		raw, err = s.complete(ctx, "navigator", Request{
			System:      navigatorRole + navigatorPlainSuffix,
			User:        prompt,
			MaxTokens:   5000,
			Temperature: Temp(0.2),
		})
	}
	if err == nil {
		blocks, perr := parseNavigator(raw)
		if perr == nil {
			return blocks
		}
		err = perr
	}
	s.logger.Warn("navigator failed", zap.String("title", title), zap.Error(err))
	facts := news.Truncate(content, 2000)
	if facts == "" {
		facts = MsgUnavailable
	}
	return navigatorFallback(facts)
}

// PersonaOpinion returns a short opinion in the voice of persona id. Unknown
// ids yield "".
func (s *Service) PersonaOpinion(ctx context.Context, title, content string, id int) string {
	if !s.Configured() {
		return MsgNoKey
	}
	p, ok := news.PersonaByID(id)
	if !ok {
		return ""
	}
	out, err := s.complete(ctx, "persona_opinion", Request{
		System:      personaSystem(p),
		User:        personaPrompt(p, title, content),
		MaxTokens:   400,
		Temperature: Temp(0.7),
	})
	if err != nil {
		return fmt.Sprintf("（取得失敗: %v）", err)
	}
	return out
}

// QuickUnderstand returns the what/why/how digest, or nil.
func (s *Service) QuickUnderstand(ctx context.Context, title, content string) *news.QuickUnderstand {
	if !s.Configured() {
		return nil
	}
	raw, err := s.complete(ctx, "quick_understand", Request{
		System:      quickUnderstandSystem,
		User:        digestPrompt(title, content),
		MaxTokens:   300,
		Temperature: Temp(0.3),
	})
	if err != nil {
		s.logger.Warn("quick understand failed", zap.Error(err))
		return nil
	}
	var out news.QuickUnderstand
	if err := json.Unmarshal([]byte(stripFence(raw)), &out); err != nil {
		s.logger.Warn("quick understand unparsable", zap.Error(err))
		return nil
	}
	if out.What == "" && out.Why == "" && out.How == "" {
		return nil
	}
	return &out
}

// VoteQuestion returns a reader poll, or nil.
func (s *Service) VoteQuestion(ctx context.Context, title, content string) *news.VoteQuestion {
	if !s.Configured() {
		return nil
	}
	raw, err := s.complete(ctx, "vote_question", Request{
		System:      voteSystem,
		User:        digestPrompt(title, content),
		MaxTokens:   300,
		Temperature: Temp(0.5),
	})
	if err != nil {
		s.logger.Warn("vote question failed", zap.Error(err))
		return nil
	}
	var out news.VoteQuestion
	if err := json.Unmarshal([]byte(stripFence(raw)), &out); err != nil {
		s.logger.Warn("vote question unparsable", zap.Error(err))
		return nil
	}
	if out.Question == "" {
		return nil
	}
	return &out
}

// ExplainParagraph explains one paragraph in the context of title.
func (s *Service) ExplainParagraph(ctx context.Context, paragraph, title string) string {
	if !s.Configured() {
		return MsgNoKeyShort
	}
	out, err := s.complete(ctx, "paragraph", Request{
		System:      paragraphSystem,
		User:        paragraphPrompt(title, paragraph),
		MaxTokens:   300,
		Temperature: Temp(0.3),
	})
	if err != nil {
		return fmt.Sprintf("（エラー: %v）", err)
	}
	return out
}

// TranslateAndRewrite renders a foreign headline and summary in Japanese.
// The inputs are returned unchanged when anything goes wrong.
func (s *Service) TranslateAndRewrite(ctx context.Context, title, summary string) (string, string) {
	if !s.Configured() {
		return title, summary
	}
	raw, err := s.complete(ctx, "translate", Request{
		System:      rewriteSystem,
		User:        rewritePrompt(title, summary),
		MaxTokens:   500,
		Temperature: Temp(0.4),
	})
	if err != nil {
		s.logger.Warn("translate failed", zap.String("title", title), zap.Error(err))
		return title, summary
	}
	return parseRewrite(raw, title, summary)
}

// TranslateBody translates an article body to Japanese, keeping the original
// for short input, failures and suspiciously short output.
func (s *Service) TranslateBody(ctx context.Context, body string) string {
	if news.RuneLen(body) < minBodyTranslateRunes || !s.Configured() {
		return body
	}
	raw, err := s.complete(ctx, "translate_body", Request{
		System:      translateBodySystem,
		User:        translateBodyPrompt(body),
		MaxTokens:   8000,
		Temperature: Temp(0.3),
	})
	if err != nil {
		s.logger.Warn("body translation failed", zap.Error(err))
		return body
	}
	if out := strings.TrimSpace(raw); news.RuneLen(out) > minTranslatedRunes {
		return out
	}
	return body
}

// DailyMemo predicts today's news from yesterday's titles.
func (s *Service) DailyMemo(ctx context.Context, titles []string) (string, error) {
	raw, err := s.complete(ctx, "daily_memo", Request{
		System:      dailyMemoSystem,
		User:        "昨日の主要ニュース:\n" + titleList(titles),
		MaxTokens:   300,
		Temperature: Temp(0.5),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// PersonaComment is a one-line persona reaction to the day's titles.
func (s *Service) PersonaComment(ctx context.Context, p news.Persona, titles []string) (string, error) {
	raw, err := s.complete(ctx, "persona_comment", Request{
		System:      personaCommentSystem(p),
		User:        "最近のニュース:\n" + titleList(titles),
		MaxTokens:   300,
		Temperature: Temp(0.6),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
