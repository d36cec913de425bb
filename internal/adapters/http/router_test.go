package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/config"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
)

type answererFake struct {
	err         error
	gotQuestion string
	gotK        int
	gotFilter   domain.SourceFilter
	gotHistory  string
	answer      *domain.Answer
}

func (f *answererFake) Answer(_ context.Context, question string, k int, filter domain.SourceFilter, history string) (*domain.Answer, error) {
	f.gotQuestion = question
	f.gotK = k
	f.gotFilter = filter
	f.gotHistory = history
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{
		Text:           "Rotate keys monthly.",
		Citations:      []string{"ops.pdf - page 2 - chunk#1"},
		Outcome:        domain.OutcomeGrounded,
		RetrievalQuery: question,
	}, nil
}

type sessionsFake struct {
	askErr   error
	reply    *domain.Reply
	gotID    string
	gotSet   domain.AskSettings
	history  []domain.Turn
	cleared  string
	deleted  string
	notFound bool
}

func (f *sessionsFake) Create() string { return "sess-1" }

func (f *sessionsFake) Ask(_ context.Context, sessionID, question string, settings domain.AskSettings) (*domain.Reply, error) {
	f.gotID = sessionID
	f.gotSet = settings
	if f.askErr != nil {
		return nil, f.askErr
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &domain.Reply{SessionID: sessionID, Question: question, Answer: "ok", Outcome: domain.OutcomeGrounded}, nil
}

func (f *sessionsFake) History(sessionID string) ([]domain.Turn, error) {
	if f.notFound {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "history", errors.New(sessionID))
	}
	return f.history, nil
}

func (f *sessionsFake) Clear(sessionID string) error {
	f.cleared = sessionID
	return nil
}

func (f *sessionsFake) Delete(sessionID string) error {
	if f.notFound {
		return domain.WrapError(domain.ErrSessionNotFound, "delete", errors.New(sessionID))
	}
	f.deleted = sessionID
	return nil
}

type documentsFake struct {
	uploadErr  error
	rebuildErr error
	sources    []string
	uploaded   string
	body       string
	reasons    []string
}

func (f *documentsFake) Upload(_ context.Context, filename string, body io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.uploaded = filename
	f.body = string(raw)
	return filename, nil
}

func (f *documentsFake) RequestRebuild(_ context.Context, reason string) error {
	f.reasons = append(f.reasons, reason)
	return f.rebuildErr
}

func (f *documentsFake) ListSources(context.Context) ([]string, error) {
	return f.sources, nil
}

type runsFake struct {
	run *domain.IngestRun
	err error
}

func (f runsFake) LatestRun(context.Context) (*domain.IngestRun, error) {
	return f.run, f.err
}

func testConfig() config.Config {
	return config.Config{RAGTopK: 5, SessionHistoryMessages: 6, MaxUploadMB: 1}
}

func serve(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, nil).Handler()
	res := serve(t, handler, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestQueryRAGPassesSettingsAndHistory(t *testing.T) {
	answerer := &answererFake{}
	handler := NewRouter(testConfig(), answerer, &sessionsFake{}, &documentsFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/rag/query", map[string]any{
		"question": "How often?",
		"top_k":    3,
		"sources":  []string{"ops.pdf"},
		"history": []map[string]string{
			{"role": "user", "content": "What about keys?"},
			{"role": "assistant", "content": "Keys are rotated."},
		},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if answerer.gotK != 3 || !answerer.gotFilter.Allows("ops.pdf") || answerer.gotFilter.Allows("other.pdf") {
		t.Fatalf("settings not passed through: k=%d filter=%v", answerer.gotK, answerer.gotFilter)
	}
	if answerer.gotHistory != "User: What about keys?\nAssistant: Keys are rotated." {
		t.Fatalf("unexpected history %q", answerer.gotHistory)
	}

	var resp queryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Rotate keys monthly." || len(resp.Citations) != 1 || resp.Hint != "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestQueryRAGWithoutHistoryUsesNoneMarker(t *testing.T) {
	answerer := &answererFake{}
	handler := NewRouter(testConfig(), answerer, &sessionsFake{}, &documentsFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/rag/query", map[string]any{"question": "What is it?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if answerer.gotHistory != "(none)" {
		t.Fatalf("expected (none) history, got %q", answerer.gotHistory)
	}
}

func TestQueryRAGAbstentionUnderFilterCarriesHint(t *testing.T) {
	answerer := &answererFake{answer: &domain.Answer{
		Text:      domain.AbstentionMessage,
		Abstained: true,
		Outcome:   domain.OutcomeFilteredOut,
	}}
	handler := NewRouter(testConfig(), answerer, &sessionsFake{}, &documentsFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/rag/query", map[string]any{
		"question": "Capital of Japan?",
		"sources":  []string{"ops.pdf"},
	})
	var resp queryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Hint != domain.FilteredOutHint || resp.Citations == nil || len(resp.Citations) != 0 {
		t.Fatalf("unexpected abstention response %+v", resp)
	}
}

func TestQueryRAGMapsTemporaryErrorTo503(t *testing.T) {
	answerer := &answererFake{err: domain.WrapError(domain.ErrTemporary, "complete", errors.New("ollama down"))}
	handler := NewRouter(testConfig(), answerer, &sessionsFake{}, &documentsFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/rag/query", map[string]any{"question": "x"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestQueryRAGRejectsInvalidJSON(t *testing.T) {
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/rag/query", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	sessions := &sessionsFake{history: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}}
	handler := NewRouter(testConfig(), &answererFake{}, sessions, &documentsFake{}, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/sessions", nil)
	if res.Code != http.StatusCreated || !strings.Contains(res.Body.String(), "sess-1") {
		t.Fatalf("create session: %d %s", res.Code, res.Body.String())
	}

	res = serve(t, handler, http.MethodPost, "/v1/sessions/sess-1/ask", map[string]any{
		"question": "Why?",
		"top_k":    7,
		"sources":  []string{"a.pdf"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("ask: expected 200, got %d", res.Code)
	}
	if sessions.gotID != "sess-1" || sessions.gotSet.TopK != 7 || len(sessions.gotSet.Sources) != 1 {
		t.Fatalf("ask settings not passed: %q %+v", sessions.gotID, sessions.gotSet)
	}
	if !strings.Contains(res.Body.String(), `"citations":[]`) {
		t.Fatalf("expected empty citations array, got %s", res.Body.String())
	}

	res = serve(t, handler, http.MethodGet, "/v1/sessions/sess-1/messages", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"hi"`) {
		t.Fatalf("history: %d %s", res.Code, res.Body.String())
	}

	res = serve(t, handler, http.MethodDelete, "/v1/sessions/sess-1/messages", nil)
	if res.Code != http.StatusNoContent || sessions.cleared != "sess-1" {
		t.Fatalf("clear: %d cleared=%q", res.Code, sessions.cleared)
	}

	res = serve(t, handler, http.MethodDelete, "/v1/sessions/sess-1", nil)
	if res.Code != http.StatusNoContent || sessions.deleted != "sess-1" {
		t.Fatalf("delete: %d deleted=%q", res.Code, sessions.deleted)
	}
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	sessions := &sessionsFake{
		notFound: true,
		askErr:   domain.WrapError(domain.ErrSessionNotFound, "ask", errors.New("missing")),
	}
	handler := NewRouter(testConfig(), &answererFake{}, sessions, &documentsFake{}, nil).Handler()

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/v1/sessions/missing/ask", map[string]any{"question": "x"}},
		{http.MethodGet, "/v1/sessions/missing/messages", nil},
		{http.MethodDelete, "/v1/sessions/missing", nil},
	} {
		res := serve(t, handler, tc.method, tc.path, tc.body)
		if res.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, res.Code)
		}
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	docs := &documentsFake{}
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, docs, nil).Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "ops.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 fake"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if docs.uploaded != "ops.pdf" || docs.body != "%PDF-1.4 fake" {
		t.Fatalf("unexpected upload %q %q", docs.uploaded, docs.body)
	}
}

func TestUploadDocumentRequiresFileField(t *testing.T) {
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMapsInvalidInputTo400(t *testing.T) {
	docs := &documentsFake{uploadErr: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("not a pdf"))}
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, docs, nil).Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "notes.txt")
	_, _ = part.Write([]byte("hello"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRebuildRequestStatuses(t *testing.T) {
	docs := &documentsFake{}
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, docs, nil).Handler()

	res := serve(t, handler, http.MethodPost, "/v1/index/rebuild", nil)
	if res.Code != http.StatusAccepted || len(docs.reasons) != 1 || docs.reasons[0] != "api" {
		t.Fatalf("rebuild: %d reasons=%v", res.Code, docs.reasons)
	}

	docs.rebuildErr = domain.WrapError(domain.ErrRebuildUnsupported, "request rebuild", errors.New("no queue"))
	res = serve(t, handler, http.MethodPost, "/v1/index/rebuild", nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without queue, got %d", res.Code)
	}
}

func TestLatestRun(t *testing.T) {
	handler := NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, nil).Handler()
	if res := serve(t, handler, http.MethodGet, "/v1/index/runs/latest", nil); res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without catalog, got %d", res.Code)
	}

	missing := runsFake{err: domain.WrapError(domain.ErrRunNotFound, "latest run", errors.New("empty"))}
	handler = NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, missing).Handler()
	if res := serve(t, handler, http.MethodGet, "/v1/index/runs/latest", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for no runs, got %d", res.Code)
	}

	run := &domain.IngestRun{ID: "run-1", Status: domain.IngestSucceeded, Chunks: 12, StartedAt: time.Now().UTC()}
	handler = NewRouter(testConfig(), &answererFake{}, &sessionsFake{}, &documentsFake{}, runsFake{run: run}).Handler()
	res := serve(t, handler, http.MethodGet, "/v1/index/runs/latest", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"run-1"`) {
		t.Fatalf("latest run: %d %s", res.Code, res.Body.String())
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[error]int{
		domain.ErrInvalidInput:       http.StatusBadRequest,
		domain.ErrSessionNotFound:    http.StatusNotFound,
		domain.ErrRunNotFound:        http.StatusNotFound,
		domain.ErrRebuildInProgress:  http.StatusConflict,
		domain.ErrNoInput:            http.StatusUnprocessableEntity,
		domain.ErrTemporary:          http.StatusServiceUnavailable,
		domain.ErrIndexUnavailable:   http.StatusServiceUnavailable,
		domain.ErrRebuildUnsupported: http.StatusServiceUnavailable,
		errors.New("boom"):           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		err := domain.WrapError(kind, "op", errors.New("cause"))
		if got := mapErrorToHTTPStatus(err); got != want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}
