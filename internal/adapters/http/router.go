package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/pdf-rag-assistant/internal/observability/metrics"
)

type runReader interface {
	LatestRun(ctx context.Context) (*domain.IngestRun, error)
}

type Router struct {
	cfg       config.Config
	answerer  ports.QuestionAnswerer
	sessions  ports.SessionAsker
	documents ports.DocumentUploader
	runs      runReader

	metrics *metrics.HTTPServerMetrics
	service string
}

// NewRouter wires the HTTP surface. runs may be nil when no ingest catalog is
// configured.
func NewRouter(
	cfg config.Config,
	answerer ports.QuestionAnswerer,
	sessions ports.SessionAsker,
	documents ports.DocumentUploader,
	runs runReader,
) *Router {
	return &Router{
		cfg:       cfg,
		answerer:  answerer,
		sessions:  sessions,
		documents: documents,
		runs:      runs,
		service:   "api",
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics, service string) *Router {
	rt.metrics = m
	if service != "" {
		rt.service = service
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	api.HandleFunc("POST /v1/sessions", rt.createSession)
	api.HandleFunc("POST /v1/sessions/{id}/ask", rt.askSession)
	api.HandleFunc("GET /v1/sessions/{id}/messages", rt.sessionHistory)
	api.HandleFunc("DELETE /v1/sessions/{id}/messages", rt.clearSession)
	api.HandleFunc("DELETE /v1/sessions/{id}", rt.deleteSession)
	api.HandleFunc("GET /v1/sources", rt.listSources)
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("POST /v1/index/rebuild", rt.requestRebuild)
	api.HandleFunc("GET /v1/index/runs/latest", rt.latestRun)

	limited := backpressureMiddleware(
		rateLimitMiddleware(api, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst),
		rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIQueueWaitMillis)*time.Millisecond,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k"`
	Sources  []string      `json:"sources"`
	History  []domain.Turn `json:"history"`
}

type queryResponse struct {
	Answer    string                  `json:"answer"`
	Citations []string                `json:"citations"`
	Abstained bool                    `json:"abstained"`
	Outcome   domain.RetrievalOutcome `json:"outcome"`
	Hint      string                  `json:"hint,omitempty"`
}

// queryRAG answers one question without server-side history. Callers that
// want follow-up handling pass their own recent turns.
func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	filter := domain.NewSourceFilter(req.Sources...)
	history := usecase.FormatHistory(req.History, rt.cfg.SessionHistoryMessages)

	answer, err := rt.answerer.Answer(r.Context(), req.Question, req.TopK, filter, history)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.recordAnswer("rag_query", req.Question, answer.RetrievalQuery, string(answer.Outcome), answer.Abstained, len(answer.Citations), start)

	resp := queryResponse{
		Answer:    answer.Text,
		Citations: answer.Citations,
		Abstained: answer.Abstained,
		Outcome:   answer.Outcome,
	}
	if resp.Citations == nil {
		resp.Citations = []string{}
	}
	if answer.Abstained && filter.Active() {
		resp.Hint = domain.FilteredOutHint
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) createSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": rt.sessions.Create()})
}

func (rt *Router) askSession(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	reply, err := rt.sessions.Ask(r.Context(), r.PathValue("id"), req.Question, domain.AskSettings{
		TopK:    req.TopK,
		Sources: req.Sources,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.recordAnswer("session_ask", req.Question, reply.RetrievalQuery, string(reply.Outcome), reply.Abstained, len(reply.Citations), start)

	if reply.Citations == nil {
		reply.Citations = []string{}
	}
	writeJSON(w, http.StatusOK, reply)
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := rt.sessions.History(r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (rt *Router) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Clear(r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Delete(r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := rt.documents.ListSources(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.MaxUploadMB)<<20)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	source, err := rt.documents.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"source": source})
}

func (rt *Router) requestRebuild(w http.ResponseWriter, r *http.Request) {
	if err := rt.documents.RequestRebuild(r.Context(), "api"); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (rt *Router) latestRun(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ingest catalog is not configured"})
		return
	}
	run, err := rt.runs.LatestRun(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) recordAnswer(endpoint, question, retrievalQuery, outcome string, abstained bool, citations int, start time.Time) {
	if rt.metrics == nil {
		return
	}
	rewritten := retrievalQuery != "" && retrievalQuery != question && retrievalQuery != strings.TrimSpace(question)
	rt.metrics.RecordAnswer(rt.service, endpoint, outcome, abstained, rewritten, citations, time.Since(start))
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
