package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/dispatcher"
	"github.com/JakeFAU/chiripo-news/internal/news"
)

const (
	msgRefreshStarted  = "更新を開始しました"
	msgJobsBusy        = "処理が混み合っています。しばらくしてから再度お試しください。"
	msgUpdatesDisabled = "updates disabled"
	msgJobTimeout      = "処理がタイムアウトしました（3分）。RSSやOpenAIの応答が遅い可能性があります。もう一度お試しください。"
	msgUnknownError    = "不明なエラー"
	maxRequestBody     = 1 << 20
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func disabledResult() news.Result {
	return news.Result{Status: news.ResultDisabled, Message: msgUpdatesDisabled}
}

func failedResult(msg string) news.Result {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = msgUnknownError
	}
	return news.Result{Status: news.ResultError, Message: "処理に失敗しました: " + msg}
}

func (s *Server) refreshNews(w http.ResponseWriter, r *http.Request) {
	if s.deps.Site.UpdatesDisabled() {
		if _, err := s.deps.Site.Reload(r.Context()); err != nil {
			s.logger.Warn("reload news", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": news.ResultDisabled, "message": msgUpdatesDisabled})
		return
	}
	jobID, err := s.deps.Jobs.TrySubmit(r.Context(), news.JobKindRefresh, nil)
	if errors.Is(err, news.ErrQueueFull) {
		s.logger.Warn("refresh rejected, job queue full")
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, msgJobsBusy)
		return
	}
	if err != nil {
		s.logger.Error("submit refresh", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue refresh")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  news.ResultOK,
		"message": msgRefreshStarted,
		"job_id":  jobID,
	})
}

func (s *Server) seedOne(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, news.JobKindSeedOne, nil)
}

func (s *Server) forceAddOne(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, news.JobKindForceAdd, nil)
}

// runJob submits a job and waits for its result. Updates being disabled is a
// 409; every other outcome is reported in the result body with a 200.
func (s *Server) runJob(w http.ResponseWriter, r *http.Request, kind news.JobKind, manual *news.ManualInput) {
	if s.deps.Site.UpdatesDisabled() {
		writeJSON(w, http.StatusConflict, disabledResult())
		return
	}
	writeJSON(w, http.StatusOK, s.awaitJob(r, kind, manual))
}

func (s *Server) awaitJob(r *http.Request, kind news.JobKind, manual *news.ManualInput) news.Result {
	ctx := r.Context()
	jobID, err := s.deps.Jobs.Submit(ctx, kind, manual)
	if err != nil {
		s.logger.Error("submit job", zap.String("kind", string(kind)), zap.Error(err))
		return failedResult(err.Error())
	}
	job, err := s.deps.Jobs.Wait(ctx, jobID, s.opts.JobWait)
	if errors.Is(err, dispatcher.ErrWaitTimeout) {
		s.logger.Warn("job wait timed out", zap.String("job_id", jobID), zap.String("kind", string(kind)))
		return news.Result{Status: news.ResultError, Message: msgJobTimeout}
	}
	if err != nil {
		return failedResult(err.Error())
	}
	if job.Status == news.JobStatusFailed || job.Result == nil {
		return failedResult(job.ErrorText)
	}
	return *job.Result
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.Job(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}
