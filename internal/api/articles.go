package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	msgArticleNotFound = "記事が見つかりません"
	msgPersonaNotFound = "人格が見つかりません"
	msgGenerateFailed  = "解説の生成に失敗しました"
)

// lookupArticle writes the 404/500 response itself and reports whether the
// handler should continue.
func (s *Server) lookupArticle(w http.ResponseWriter, r *http.Request) (news.Article, bool) {
	id := chi.URLParam(r, "id")
	article, err := s.deps.Site.Article(r.Context(), id)
	if errors.Is(err, news.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgArticleNotFound)
		return news.Article{}, false
	}
	if err != nil {
		s.logger.Error("load article", zap.String("article_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load article")
		return news.Article{}, false
	}
	return article, true
}

func articleContent(a news.Article) string {
	return a.Title + "\n\n" + a.Summary
}

// savedExplanation serves what is already stored while updates are disabled.
// Without a stored explanation it writes the disabled result and reports false.
func (s *Server) savedExplanation(w http.ResponseWriter, r *http.Request, id string) (news.Explanation, bool) {
	exp, err := s.deps.Explainer.Saved(r.Context(), id)
	if err == nil {
		return exp, true
	}
	if !errors.Is(err, news.ErrNotFound) {
		s.logger.Warn("read saved explanation", zap.String("article_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusConflict, disabledResult())
	return news.Explanation{}, false
}

// explainText joins the explain blocks of a stored explanation.
func explainText(blocks []news.Block) string {
	var parts []string
	for _, b := range news.SanitizeBlocks(blocks) {
		if b.Type == news.BlockExplain && b.Content != "" {
			parts = append(parts, b.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	if s.deps.Site.UpdatesDisabled() {
		exp, ok := s.savedExplanation(w, r, article.ID)
		if ok {
			writeJSON(w, http.StatusOK, map[string]string{"explanation": explainText(exp.Blocks)})
		}
		return
	}
	text := s.deps.AI.Explain(r.Context(), article.Title, articleContent(article))
	writeJSON(w, http.StatusOK, map[string]string{"explanation": text})
}

func (s *Server) generate(r *http.Request, article news.Article) (news.Explanation, bool) {
	exp, err := s.deps.Explainer.GenerateAll(r.Context(), article.ID, article.Title, articleContent(article))
	if err != nil {
		s.logger.Warn("generate explanations", zap.String("article_id", article.ID), zap.Error(err))
		return news.Explanation{}, false
	}
	return exp, true
}

// explanation returns the stored explanation while updates are disabled and
// generates one otherwise. Failures are written to w.
func (s *Server) explanation(w http.ResponseWriter, r *http.Request, article news.Article) (news.Explanation, bool) {
	if s.deps.Site.UpdatesDisabled() {
		return s.savedExplanation(w, r, article.ID)
	}
	exp, ok := s.generate(r, article)
	if !ok {
		writeError(w, http.StatusBadGateway, msgGenerateFailed)
	}
	return exp, ok
}

func (s *Server) explainInline(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	if s.deps.Site.UpdatesDisabled() {
		if exp, ok := s.savedExplanation(w, r, article.ID); ok {
			writeJSON(w, http.StatusOK, map[string]any{"blocks": news.SanitizeBlocks(exp.Blocks)})
		}
		return
	}
	var blocks []news.Block
	if exp, ok := s.generate(r, article); ok {
		blocks = exp.Blocks
	} else {
		blocks = s.deps.AI.InlineBlocks(r.Context(), article.Title, articleContent(article))
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": news.SanitizeBlocks(blocks)})
}

func (s *Server) explanations(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	exp, ok := s.explanation(w, r, article)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"blocks":   news.SanitizeBlocks(exp.Blocks),
		"personas": news.NormalizePersonas(exp.Personas),
	})
}

func (s *Server) opinion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "persona_id"))
	persona, known := news.PersonaByID(id)
	if err != nil || !known {
		writeError(w, http.StatusNotFound, msgPersonaNotFound)
		return
	}
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	exp, ok := s.explanation(w, r, article)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"persona": persona,
		"opinion": news.NormalizePersonas(exp.Personas)[id],
	})
}

func (s *Server) navigator(w http.ResponseWriter, r *http.Request) {
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	if s.deps.Site.UpdatesDisabled() {
		writeJSON(w, http.StatusConflict, disabledResult())
		return
	}
	blocks := s.deps.AI.Navigator(r.Context(), article.Title, articleContent(article))
	writeJSON(w, http.StatusOK, map[string]any{"blocks": news.SanitizeBlocks(blocks)})
}

func (s *Server) extras(w http.ResponseWriter, r *http.Request) {
	if s.deps.Site.UpdatesDisabled() {
		article, ok := s.lookupArticle(w, r)
		if !ok {
			return
		}
		if exp, ok := s.savedExplanation(w, r, article.ID); ok {
			writeJSON(w, http.StatusOK, map[string]any{"quick_understand": exp.QuickUnderstand, "vote": exp.Vote})
		}
		return
	}
	id := chi.URLParam(r, "id")
	quick, vote, err := s.deps.Explainer.Extras(r.Context(), id)
	if errors.Is(err, news.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgArticleNotFound)
		return
	}
	if err != nil {
		s.logger.Error("article extras", zap.String("article_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load extras")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quick_understand": quick, "vote": vote})
}

type paragraphRequest struct {
	Paragraph string `json:"paragraph"`
}

func (s *Server) paragraph(w http.ResponseWriter, r *http.Request) {
	var req paragraphRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	text := strings.TrimSpace(req.Paragraph)
	if text == "" {
		writeError(w, http.StatusBadRequest, "paragraph is required")
		return
	}
	article, ok := s.lookupArticle(w, r)
	if !ok {
		return
	}
	if s.deps.Site.UpdatesDisabled() {
		writeJSON(w, http.StatusConflict, disabledResult())
		return
	}
	explanation := s.deps.AI.ExplainParagraph(r.Context(), text, article.Title)
	writeJSON(w, http.StatusOK, map[string]string{"explanation": explanation})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Site.Status(r.Context())
	if err != nil {
		s.logger.Error("status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	trends := s.deps.Site.Trends(r.Context(), false)
	if trends == nil {
		trends = []news.Trend{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

func (s *Server) daily(w http.ResponseWriter, r *http.Request) {
	var content *news.DailyContent
	if s.deps.Daily != nil {
		var err error
		content, err = s.deps.Daily.Get(r.Context())
		if err != nil {
			s.logger.Warn("load daily", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily": content})
}
