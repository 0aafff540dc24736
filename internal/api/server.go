// Package api serves the HTTP interface: starting ingestions, polling jobs,
// asking questions and raw search.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/auth"
	"github.com/nikhileshsirohi/codebase-explainer/internal/ingest"
	"github.com/nikhileshsirohi/codebase-explainer/internal/store"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const (
	notIndexedMessage  = "Repo not indexed yet. Run /ingest and wait for job done."
	rateLimitedMessage = "LLM quota exceeded. Add billing or a paid tier for the primary provider, or switch to a local fallback model."
	maxTopK            = 50
	maxQuestionChars   = 4000
)

// Ingester starts ingestion jobs.
type Ingester interface {
	Start(ctx context.Context, repoURL, requestedBy string) (models.Repository, models.IngestJob, error)
}

// Answerer answers questions about a repository.
type Answerer interface {
	Answer(ctx context.Context, repoID, question string, history []models.ChatMessage, k int) (models.Answer, error)
}

// Searcher runs raw similarity search.
type Searcher interface {
	Search(ctx context.Context, repoID, query string, k int) ([]models.RetrievedChunk, error)
}

// Store is the persistence the handlers read.
type Store interface {
	GetRepository(ctx context.Context, id string) (models.Repository, error)
	ListRepositories(ctx context.Context) ([]models.Repository, error)
	CountChunks(ctx context.Context, repoID string) (int, error)
	GetJob(ctx context.Context, id string) (models.IngestJob, error)
	LatestJob(ctx context.Context, repoID string) (models.IngestJob, error)
	Ping(ctx context.Context) error
	store.ChatStore
}

// Server wires the handlers to their collaborators.
type Server struct {
	Ingest       Ingester
	Answers      Answerer
	Search       Searcher
	Store        Store
	Auth         *auth.Authenticator
	HistoryTurns int
	DefaultTopK  int
}

type ingestRequest struct {
	RepoURL string `json:"repo_url"`
}

type ingestResponse struct {
	RepoID string           `json:"repo_id"`
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

type askResponse struct {
	SessionID string            `json:"session_id"`
	Answer    string            `json:"answer"`
	Sources   []models.Citation `json:"sources"`
}

type repoResponse struct {
	models.Repository
	LatestJob *models.IngestJob `json:"latest_job,omitempty"`
}

// Handler returns the routed API with request logging.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/ingest", s.startIngest)
	api.HandleFunc("GET /api/v1/jobs/{id}", s.getJob)
	api.HandleFunc("GET /api/v1/repos", s.listRepos)
	api.HandleFunc("GET /api/v1/repos/{id}", s.getRepo)
	api.HandleFunc("POST /api/v1/repos/{id}/ask", s.ask)
	api.HandleFunc("GET /api/v1/repos/{id}/search", s.search)
	mux.Handle("/api/v1/", s.Auth.Middleware(api))

	return hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	repo, job, err := s.Ingest.Start(ctx, req.RepoURL, auth.SubjectFromContext(r.Context()))
	switch {
	case errors.Is(err, ingest.ErrUnsupportedProvider), errors.Is(err, ingest.ErrInvalidRepository):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("repo_url", req.RepoURL).Msg("start ingestion failed")
		writeError(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{RepoID: repo.ID, JobID: job.ID, Status: job.Status})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Store.GetJob(r.Context(), r.PathValue("id"))
	if s.storeError(w, r, err, "job not found") {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	repos, err := s.Store.ListRepositories(ctx)
	if s.storeError(w, r, err, "") {
		return
	}
	if repos == nil {
		repos = []models.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) getRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.Store.GetRepository(r.Context(), r.PathValue("id"))
	if s.storeError(w, r, err, "repository not found") {
		return
	}
	out := repoResponse{Repository: repo}
	job, err := s.Store.LatestJob(r.Context(), repo.ID)
	switch {
	case err == nil:
		out.LatestJob = &job
	case !errors.Is(err, store.ErrNotFound):
		hlog.FromRequest(r).Warn().Err(err).Str("repo_id", repo.ID).Msg("latest job lookup failed")
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	repoID := r.PathValue("id")

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len([]rune(req.Question)) > maxQuestionChars {
		writeError(w, http.StatusBadRequest, "question is too long")
		return
	}
	k := s.topK(req.TopK)

	ctx := r.Context()
	if _, err := s.Store.GetRepository(ctx, repoID); s.storeError(w, r, err, "repository not found") {
		return
	}
	n, err := s.Store.CountChunks(ctx, repoID)
	if s.storeError(w, r, err, "") {
		return
	}
	if n == 0 {
		writeError(w, http.StatusConflict, notIndexedMessage)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, err = s.Store.CreateSession(ctx, repoID)
		if s.storeError(w, r, err, "") {
			return
		}
	} else {
		owner, err := s.Store.SessionRepo(ctx, sessionID)
		if s.storeError(w, r, err, "Session not found for this repo") {
			return
		}
		if owner != repoID {
			writeError(w, http.StatusNotFound, "Session not found for this repo")
			return
		}
	}

	history, err := s.Store.RecentMessages(ctx, sessionID, s.HistoryTurns)
	if s.storeError(w, r, err, "") {
		return
	}
	if err := s.Store.AddMessage(ctx, sessionID, "user", req.Question); s.storeError(w, r, err, "") {
		return
	}

	ans, err := s.Answers.Answer(ctx, repoID, req.Question, history, k)
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		hlog.FromRequest(r).Warn().Err(err).Str("repo_id", repoID).Msg("answer rate limited")
		writeError(w, http.StatusTooManyRequests, rateLimitedMessage)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("repo_id", repoID).Msg("answer failed")
		writeError(w, http.StatusInternalServerError, "failed to generate answer")
		return
	}
	if err := s.Store.AddMessage(ctx, sessionID, "assistant", ans.Text); s.storeError(w, r, err, "") {
		return
	}

	hlog.FromRequest(r).Info().Str("repo_id", repoID).Str("session_id", sessionID).Int("k", k).
		Int("sources", len(ans.Sources)).Dur("dur", time.Since(start)).Msg("answered")
	writeJSON(w, http.StatusOK, askResponse{SessionID: sessionID, Answer: ans.Text, Sources: ans.Sources})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	k := s.DefaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			k = n
		}
	}
	k = s.topK(k)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res, err := s.Search.Search(ctx, repoID, q, k)
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, rateLimitedMessage)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("repo_id", repoID).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if res == nil {
		res = []models.RetrievedChunk{}
	}
	for i := range res {
		if math.IsNaN(res[i].Score) || math.IsInf(res[i].Score, 0) {
			res[i].Score = 0
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) topK(k int) int {
	if k <= 0 {
		k = s.DefaultTopK
	}
	if k <= 0 {
		k = 8
	}
	return min(k, maxTopK)
}

// storeError writes the response for a store failure and reports whether
// one was written. ErrNotFound maps to 404 with notFound as the message.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error, notFound string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, store.ErrNotFound) && notFound != "":
		writeError(w, http.StatusNotFound, notFound)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("store error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
