package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/keys"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/setup"
	"github.com/pritzvi/linked-out/internal/store"
)

type fakeSummarizer struct {
	summary  string
	examples []string
	err      error
}

func (f *fakeSummarizer) SummarizeResume(context.Context, string) (string, error) {
	return f.summary, f.err
}

func (f *fakeSummarizer) ConnectionExamples(context.Context, string) ([]string, error) {
	return f.examples, nil
}

type testEnv struct {
	srv     *Server
	router  http.Handler
	ctrl    *job.Controller
	history store.Store
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	ctrl := job.New(setup.NewStore(),
		job.WithRecorder(store.NewRecorder(s)),
		job.WithResultsDir(filepath.Join(dir, "results")),
		job.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	srv := NewServer(ctrl, s, keys.NewRegistry(), &fakeSummarizer{
		summary:  "- I am Ada\n- I build engines",
		examples: []string{"Hi [Name], I build engines.", "Hey [Name], let's talk."},
	})
	srv.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return &testEnv{srv: srv, router: srv.Router(), ctrl: ctrl, history: s}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// configureReady drives the config endpoints until the launch gate opens.
func (e *testEnv) configureReady(t *testing.T, needed int) {
	t.Helper()
	w := e.do(t, "PUT", "/api/v1/config/search",
		`{"kind":"url","url":"https://www.linkedin.com/search/results/people/?keywords=ml","profiles_needed":`+jsonInt(needed)+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, "PUT", "/api/v1/config/summary", `{"summary":"I am Ada."}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, "POST", "/api/v1/config/summary/lock", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, "PUT", "/api/v1/config/templates", `{"mode":"examples","templates":["Hi [Name]"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, "POST", "/api/v1/config/templates/confirm", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestGetConfig_Defaults(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "GET", "/api/v1/config", "")
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode[configResponse](t, w)
	assert.Equal(t, models.PhaseIdle, resp.Phase)
	assert.False(t, resp.CanLaunch)
	assert.True(t, resp.Config.SendConnectionRequest)
	assert.True(t, resp.Config.IncludeNote)
}

func TestCORS_Preflight(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "OPTIONS", "/api/v1/progress", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLockSummary_Twice(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "PUT", "/api/v1/config/summary", `{"summary":"I am Ada."}`)

	w := env.do(t, "POST", "/api/v1/config/summary/lock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[map[string]any](t, w)["already_locked"].(bool))

	w = env.do(t, "POST", "/api/v1/config/summary/lock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[map[string]any](t, w)["already_locked"].(bool))

	w = env.do(t, "PUT", "/api/v1/config/summary", `{"summary":"changed"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLockSummary_Empty(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "POST", "/api/v1/config/summary/lock", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmTemplates_TooLong(t *testing.T) {
	env := setupTestServer(t)
	long := strings.Repeat("x", 301)
	w := env.do(t, "PUT", "/api/v1/config/templates", `{"mode":"examples","templates":["ok","`+long+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/api/v1/config/templates/confirm", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "template_too_long", body["code"])
	assert.Equal(t, float64(1), body["index"])
	assert.Equal(t, float64(300), body["limit"])

	cfg := decode[configResponse](t, env.do(t, "GET", "/api/v1/config", ""))
	assert.False(t, cfg.Config.TemplatesLocked)
}

func TestSetSearch_Invalid(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "PUT", "/api/v1/config/search", `{"kind":"form","companies":"OpenAI","profiles_needed":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_search", decode[map[string]any](t, w)["code"])

	w = env.do(t, "PUT", "/api/v1/config/search", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOutreach_ForcesNoteOff(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "PUT", "/api/v1/config/outreach", `{"send_connection_request":false,"include_note":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[configResponse](t, w)
	assert.False(t, resp.Config.IncludeNote)
}

func TestLaunch_GateNotSatisfied(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "PUT", "/api/v1/config/search", `{"kind":"url","url":"https://x","profiles_needed":2}`)

	w := env.do(t, "POST", "/api/v1/session/launch", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "gate_not_satisfied", decode[map[string]any](t, w)["code"])
	assert.NotEqual(t, models.PhaseRunning, env.ctrl.Phase())
}

func TestSessionFlow(t *testing.T) {
	env := setupTestServer(t)
	env.configureReady(t, 5)

	w := env.do(t, "POST", "/api/v1/session/launch", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	launched := decode[map[string]any](t, w)
	assert.Equal(t, "running", launched["phase"])
	sessionID, _ := launched["session_id"].(string)
	assert.NotEmpty(t, sessionID)

	w = env.do(t, "POST", "/api/v1/session/launch", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_running", decode[map[string]any](t, w)["code"])

	w = env.do(t, "PUT", "/api/v1/config/outreach", `{"send_connection_request":false}`)
	assert.Equal(t, http.StatusConflict, w.Code, "configuration is frozen")

	w = env.do(t, "GET", "/api/v1/download-results", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	events := `[
		{"type":"profile_discovered","id":"1","name":"Ada","url":"https://linkedin.com/in/ada"},
		{"type":"profile_discovered","id":"2","name":"Grace"},
		{"type":"status_changed","id":"1","status":"processing"},
		{"type":"status_changed","id":"1","status":"completed","message":"Hi Ada"},
		{"type":"status_changed","id":"1","status":"processing"},
		{"type":"status_changed","status":"completed"}
	]`
	w = env.do(t, "POST", "/api/v1/worker/events", events)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ing := decode[ingestResponse](t, w)
	assert.Equal(t, 5, ing.Accepted)
	assert.Len(t, ing.Warnings, 1, "regression is a warning")
	assert.Len(t, ing.Rejected, 1, "missing id is rejected")

	w = env.do(t, "GET", "/api/v1/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	rep := decode[models.Report](t, w)
	assert.Equal(t, 2, rep.DiscoveredCount)
	assert.Equal(t, 1, rep.CompletedCount)
	assert.Equal(t, 4, rep.PendingCount)
	assert.False(t, rep.IsFinal)

	w = env.do(t, "POST", "/api/v1/worker/events", `{"type":"fatal_error","reason":"auth expired"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rep = decode[models.Report](t, env.do(t, "GET", "/api/v1/progress", ""))
	assert.Equal(t, models.PhaseFailed, rep.Phase)
	assert.True(t, rep.IsFinal)
	assert.Equal(t, "auth expired", rep.FailureReason)

	w = env.do(t, "GET", "/api/v1/download-results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "detailed_profiles.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,full_name"))
	assert.Contains(t, lines[1], "Hi Ada")

	w = env.do(t, "POST", "/api/v1/worker/events", `{"type":"finished"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "GET", "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[[]models.SessionRecord](t, w)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.PhaseFailed, sessions[0].Phase)
	assert.Equal(t, 1, sessions[0].CompletedCount)

	w = env.do(t, "GET", "/api/v1/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[map[string]json.RawMessage](t, w)
	var profiles []models.ProfileRecord
	require.NoError(t, json.Unmarshal(detail["profiles"], &profiles))
	assert.Len(t, profiles, 2)
}

func TestWorkerEvents_SingleInvalid(t *testing.T) {
	env := setupTestServer(t)
	env.configureReady(t, 2)
	require.Equal(t, http.StatusAccepted, env.do(t, "POST", "/api/v1/session/launch", "").Code)

	w := env.do(t, "POST", "/api/v1/worker/events", `{"type":"status_changed","status":"completed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/v1/worker/events", `[{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkerEvents_BeforeLaunch(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "POST", "/api/v1/worker/events", `{"type":"profile_discovered","id":"1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDownloadResults_NoRows(t *testing.T) {
	env := setupTestServer(t)
	env.configureReady(t, 2)
	env.do(t, "POST", "/api/v1/session/launch", "")
	env.do(t, "POST", "/api/v1/worker/events", `{"type":"finished"}`)

	w := env.do(t, "GET", "/api/v1/download-results", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarizeResume(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/v1/resume", `{"text":"Ada Lovelace, analyst"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "- I am Ada\n- I build engines", body["summary"])

	cfg := decode[configResponse](t, env.do(t, "GET", "/api/v1/config", ""))
	assert.Equal(t, "- I am Ada\n- I build engines", cfg.Config.ResumeSummary)
	assert.Equal(t, []string{"Hi [Name], I build engines.", "Hey [Name], let's talk."}, cfg.Config.Templates)
	assert.False(t, cfg.Config.SummaryLocked)

	w = env.do(t, "POST", "/api/v1/resume", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarizeResume_Errors(t *testing.T) {
	env := setupTestServer(t)
	env.srv.summarizer = &fakeSummarizer{err: errors.New("rate limited")}
	w := env.do(t, "POST", "/api/v1/resume", `{"text":"resume"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env.srv.summarizer = nil
	w = env.do(t, "POST", "/api/v1/resume", `{"text":"resume"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestKeys(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/api/v1/keys", `{"provider":"openai","key":"sk-abcdef"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/api/v1/keys", `{"provider":"gemini","key":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/v1/keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]string](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "openai", list[0]["provider"])
	assert.Equal(t, "********cdef", list[0]["key"])
}

func TestListSessions_NoHistory(t *testing.T) {
	ctrl := job.New(setup.NewStore())
	srv := NewServer(ctrl, nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
