package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/aggregator"
	"github.com/JakeFAU/chiripo-news/internal/history"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

var (
	//go:embed templates/*.html
	templatesFS embed.FS

	templates = sync.OnceValue(func() *template.Template {
		return template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html"))
	})

	templateFuncs = template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006/01/02 15:04")
		},
	}
)

const (
	cardWidth, cardHeight = 400, 225
	heroWidth, heroHeight = 800, 450
)

type indexView struct {
	Groups     []news.CategoryGroup
	Trends     []news.Trend
	Pagination news.Pagination
	AddedOne   *news.Article
	Daily      *news.DailyContent
}

type confirmView struct {
	Articles []news.Article
}

type articleView struct {
	Article  news.Article
	ImageURL string
	// Lead is the blurb from the stored explanation, empty until one exists.
	Lead     string
	Personas []news.Persona
}

type routeInfo struct {
	Method string
	Path   string
}

type debugView struct {
	Routes  []routeInfo
	Storage string
	Status  aggregator.Status
}

type loginView struct {
	Error string
}

type adminView struct {
	History []history.Entry
}

type notFoundView struct {
	Message string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates().ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template",
			zap.String("request_id", requestID(r.Context())),
			zap.String("template", name),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page",
			zap.String("request_id", requestID(r.Context())),
			zap.String("template", name),
			zap.Error(err))
	}
}

func (s *Server) withImage(a news.Article, width, height int) news.Article {
	path := a.ImageURL
	if path == "" {
		path = a.ID
	}
	a.ImageURL = news.ImageURL(s.opts.CDNBaseURL, path, width, height)
	return a
}

func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	groups, pagination, err := s.deps.Site.ByCategory(ctx, page)
	if err != nil {
		s.logger.Error("list news", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	for gi := range groups {
		for ai, a := range groups[gi].Articles {
			groups[gi].Articles[ai] = s.withImage(a, cardWidth, cardHeight)
		}
	}
	view := indexView{
		Groups:     groups,
		Trends:     s.deps.Site.Trends(ctx, false),
		Pagination: pagination,
	}
	if pagination.Page == 1 {
		if all, err := s.deps.Site.News(ctx, false); err == nil && len(all) > 0 {
			first := s.withImage(all[0], cardWidth, cardHeight)
			view.AddedOne = &first
		}
	}
	if s.deps.Daily != nil {
		if daily, err := s.deps.Daily.Get(ctx); err == nil {
			view.Daily = daily
		}
	}
	s.render(w, r, http.StatusOK, "index.html", view)
}

func (s *Server) confirmPage(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Site.News(r.Context(), false)
	if err != nil {
		s.logger.Error("list news", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	items = items[:min(len(items), s.opts.ConfirmLimit)]
	for i, a := range items {
		items[i] = s.withImage(a, cardWidth, cardHeight)
	}
	s.render(w, r, http.StatusOK, "confirm.html", confirmView{Articles: items})
}

func (s *Server) articlePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.deps.Site.Article(r.Context(), id)
	if errors.Is(err, news.ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "not_found.html", notFoundView{Message: msgArticleNotFound})
		return
	}
	if err != nil {
		s.logger.Error("load article", zap.String("article_id", id), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	var lead string
	if exp, err := s.deps.Explainer.Saved(r.Context(), id); err == nil {
		lead = news.DisplaySummary(news.SanitizeBlocks(exp.Blocks))
	}
	hero := s.withImage(article, heroWidth, heroHeight)
	s.render(w, r, http.StatusOK, "article.html", articleView{
		Article:  article,
		ImageURL: hero.ImageURL,
		Lead:     lead,
		Personas: news.Personas[:],
	})
}

func (s *Server) debugPage(w http.ResponseWriter, r *http.Request) {
	var routes []routeInfo
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeInfo{Method: method, Path: strings.TrimSuffix(route, "/*")})
		return nil
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	st, err := s.deps.Site.Status(r.Context())
	if err != nil {
		s.logger.Warn("status for debug page", zap.Error(err))
	}
	s.render(w, r, http.StatusOK, "debug.html", debugView{
		Routes:  routes,
		Storage: s.deps.Store.Name(),
		Status:  st,
	})
}

func (s *Server) historyEntries() []history.Entry {
	if s.deps.History == nil {
		return []history.Entry{}
	}
	return s.deps.History.Entries()
}
