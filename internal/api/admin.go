package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	adminHeader     = "X-Admin-Secret"
	sessionMaxAge   = 7 * 24 * time.Hour
	msgAdminOff     = "管理機能は無効です"
	msgAdminOffPage = "管理機能は無効です（ADMIN_SECRET 未設定）"
	msgAdminOnly    = "管理者のみ利用できます"
	msgBadSecret    = "シークレットが正しくありません"
	msgManualBody   = "JSON で title, summary を送ってください"
	msgManualFields = "タイトルと概要は必須です"
)

type adminSession struct {
	Admin  bool  `json:"admin"`
	Issued int64 `json:"issued"`
}

// newSessionCodec derives signing and encryption keys from the admin secret.
// A blank secret disables admin sessions.
func newSessionCodec(secret string) *securecookie.SecureCookie {
	if secret == "" {
		return nil
	}
	hashKey := sha256.Sum256([]byte("session-hash:" + secret))
	blockKey := sha256.Sum256([]byte("session-block:" + secret))
	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.MaxAge(int(sessionMaxAge.Seconds()))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return codec
}

func (s *Server) adminEnabled() bool {
	return s.codec != nil
}

func (s *Server) secretMatches(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !s.adminEnabled() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.opts.AdminSecret)) == 1
}

func (s *Server) hasSession(r *http.Request) bool {
	if !s.adminEnabled() {
		return false
	}
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return false
	}
	var sess adminSession
	if err := s.codec.Decode(s.opts.CookieName, cookie.Value, &sess); err != nil {
		return false
	}
	return sess.Admin
}

func (s *Server) isAdmin(r *http.Request) bool {
	return s.secretMatches(r.Header.Get(adminHeader)) || s.hasSession(r)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAdmin(r) {
			writeError(w, http.StatusForbidden, msgAdminOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setSession(w http.ResponseWriter, r *http.Request) error {
	value, err := s.codec.Encode(s.opts.CookieName, adminSession{Admin: true, Issued: time.Now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (s *Server) adminLoginPage(w http.ResponseWriter, r *http.Request) {
	if !s.adminEnabled() {
		s.render(w, r, http.StatusOK, "admin_login.html", loginView{Error: msgAdminOffPage})
		return
	}
	if s.hasSession(r) {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}
	view := loginView{}
	if r.URL.Query().Get("error") == "invalid" {
		view.Error = msgBadSecret
	}
	s.render(w, r, http.StatusOK, "admin_login.html", view)
}

func (s *Server) adminLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.adminEnabled() {
		writeError(w, http.StatusForbidden, msgAdminOff)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/admin/login?error=invalid", http.StatusFound)
		return
	}
	if !s.secretMatches(r.PostForm.Get("secret")) {
		http.Redirect(w, r, "/admin/login?error=invalid", http.StatusFound)
		return
	}
	if err := s.setSession(w, r); err != nil {
		s.logger.Error("encode admin session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (s *Server) adminLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) adminPage(w http.ResponseWriter, r *http.Request) {
	if !s.adminEnabled() {
		writeError(w, http.StatusForbidden, msgAdminOff)
		return
	}
	if !s.hasSession(r) {
		http.Redirect(w, r, "/admin/login", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "admin.html", adminView{History: s.historyEntries()})
}

func (s *Server) adminManual(w http.ResponseWriter, r *http.Request) {
	var in news.ManualInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, msgManualBody)
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Link = strings.TrimSpace(in.Link)
	in.Source = strings.TrimSpace(in.Source)
	if in.Title == "" || in.Summary == "" {
		writeError(w, http.StatusBadRequest, msgManualFields)
		return
	}
	s.runJob(w, r, news.JobKindManual, &in)
}

func (s *Server) adminClearCache(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.deps.Store.DeleteExplanation(r.Context(), id)
	if err != nil {
		s.logger.Error("clear explanation", zap.String("article_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	s.reloadSite(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  news.ResultOK,
		"deleted": deleted,
		"message": "キャッシュを削除しました。次回アクセスで再生成されます。",
	})
}

func (s *Server) adminDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deletedExp, err := s.deps.Store.DeleteExplanation(r.Context(), id)
	if err != nil {
		s.logger.Error("delete explanation", zap.String("article_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete article")
		return
	}
	deletedArt, err := s.deps.Store.DeleteArticle(r.Context(), id)
	if err != nil {
		s.logger.Error("delete article", zap.String("article_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete article")
		return
	}
	s.reloadSite(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  news.ResultOK,
		"deleted": deletedExp || deletedArt,
		"message": "記事を削除しました。",
	})
}

func (s *Server) adminSeed(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, news.JobKindSeedBatch, nil)
}

func (s *Server) adminHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.historyEntries()})
}

func (s *Server) reloadSite(r *http.Request) {
	if _, err := s.deps.Site.Reload(r.Context()); err != nil {
		s.logger.Warn("reload news", zap.Error(err))
	}
}
