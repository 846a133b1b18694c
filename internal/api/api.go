package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/job"
	"github.com/pritzvi/linked-out/internal/keys"
	"github.com/pritzvi/linked-out/internal/models"
	"github.com/pritzvi/linked-out/internal/store"
)

// maxBodyBytes bounds request bodies; resumes are the largest payload.
const maxBodyBytes = 4 << 20

// Summarizer turns resume text into a summary and example templates.
type Summarizer interface {
	SummarizeResume(ctx context.Context, resume string) (string, error)
	ConnectionExamples(ctx context.Context, summary string) ([]string, error)
}

// Server provides the REST API handlers.
type Server struct {
	ctrl       *job.Controller
	history    store.Store
	keys       *keys.Registry
	summarizer Summarizer
	logger     *slog.Logger
}

// NewServer creates a new API server. history and summarizer may be nil.
func NewServer(ctrl *job.Controller, history store.Store, reg *keys.Registry, summarizer Summarizer) *Server {
	if reg == nil {
		reg = keys.NewRegistry()
	}
	return &Server{
		ctrl:       ctrl,
		history:    history,
		keys:       reg,
		summarizer: summarizer,
		logger:     slog.Default(),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/config", s.getConfig)
	mux.HandleFunc("PUT /api/v1/config/summary", s.setSummary)
	mux.HandleFunc("POST /api/v1/config/summary/lock", s.lockSummary)
	mux.HandleFunc("PUT /api/v1/config/templates", s.setTemplates)
	mux.HandleFunc("POST /api/v1/config/templates/confirm", s.confirmTemplates)
	mux.HandleFunc("PUT /api/v1/config/search", s.setSearch)
	mux.HandleFunc("PUT /api/v1/config/outreach", s.setOutreach)

	mux.HandleFunc("POST /api/v1/resume", s.summarizeResume)

	mux.HandleFunc("GET /api/v1/keys", s.listKeys)
	mux.HandleFunc("POST /api/v1/keys", s.setKey)

	mux.HandleFunc("POST /api/v1/session/launch", s.launch)
	mux.HandleFunc("GET /api/v1/progress", s.progress)
	mux.HandleFunc("GET /api/v1/download-results", s.downloadResults)
	mux.HandleFunc("POST /api/v1/worker/events", s.workerEvents)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFault maps a classified error to its status and adds the machine
// readable code, plus the offending index for an over-long template.
func writeFault(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var fe *faults.Error
	if errors.As(err, &fe) && fe.Code != "" {
		body["code"] = fe.Code
	}
	var tl *faults.TemplateTooLongError
	if errors.As(err, &tl) {
		body["code"] = faults.ErrTemplateTooLong.Code
		body["index"] = tl.Index
		body["length"] = tl.Length
		body["limit"] = tl.Limit
	}
	writeJSON(w, faults.HTTPStatus(err), body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// --- Configuration ---

type configResponse struct {
	Phase     models.Phase         `json:"phase"`
	CanLaunch bool                 `json:"can_launch"`
	Config    models.SessionConfig `json:"config"`
}

func (s *Server) configResponse() configResponse {
	cfg := s.ctrl.Config()
	return configResponse{
		Phase:     s.ctrl.Phase(),
		CanLaunch: cfg.CanLaunch(),
		Config:    cfg.View(),
	}
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) setSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ctrl.Config().SetResumeSummary(req.Summary); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) lockSummary(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Config().LockSummary()
	if err != nil && !errors.Is(err, faults.ErrAlreadyLocked) {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"already_locked": err != nil,
		"can_launch":     s.ctrl.Config().CanLaunch(),
	})
}

func (s *Server) setTemplates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode      models.TemplateMode `json:"mode"`
		Templates []string            `json:"templates"`
		Custom    string              `json:"custom"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = models.TemplateModeExamples
	}
	if err := s.ctrl.Config().SetTemplates(req.Mode, req.Templates, req.Custom); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) confirmTemplates(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Config().ConfirmTemplates()
	if err != nil && !errors.Is(err, faults.ErrTemplatesLocked) {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"already_locked": err != nil,
		"can_launch":     s.ctrl.Config().CanLaunch(),
	})
}

func (s *Server) setSearch(w http.ResponseWriter, r *http.Request) {
	var spec models.SearchSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	if err := s.ctrl.Config().SetSearch(spec); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.configResponse())
}

func (s *Server) setOutreach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SendConnectionRequest bool `json:"send_connection_request"`
		IncludeNote           bool `json:"include_note"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ctrl.Config().SetOutreach(req.SendConnectionRequest, req.IncludeNote); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.configResponse())
}

// --- Resume ---

// summarizeResume summarizes plain resume text and pre-fills the summary and
// example templates where they are still editable.
func (s *Server) summarizeResume(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	summary, err := s.summarizer.SummarizeResume(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	examples, err := s.summarizer.ConnectionExamples(r.Context(), summary)
	if err != nil {
		s.logger.Warn("connection examples", "error", err)
	}

	cfg := s.ctrl.Config()
	if err := cfg.SetResumeSummary(summary); err != nil {
		s.logger.Info("summary not applied", "error", err)
	}
	if len(examples) > 0 {
		if err := cfg.SetTemplates(models.TemplateModeExamples, examples, cfg.View().CustomTemplate); err != nil {
			s.logger.Info("examples not applied", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":             summary,
		"connection_requests": examples,
	})
}

// --- Keys ---

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0)
	for _, p := range s.keys.Providers() {
		k, _ := s.keys.Get(p)
		out = append(out, map[string]string{"provider": string(p), "key": keys.Mask(k)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) setKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider keys.Provider `json:"provider"`
		Key      string        `json:"key"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.keys.Set(req.Provider, req.Key); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  fmt.Sprintf("%s key saved", req.Provider),
		"provider": string(req.Provider),
	})
}

// --- Session ---

func (s *Server) launch(w http.ResponseWriter, r *http.Request) {
	payload, err := s.ctrl.Launch(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":         "Search initiated",
		"phase":           s.ctrl.Phase(),
		"profiles_needed": payload.ProfilesNeeded,
		"session_id":      s.ctrl.SessionID(),
	})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Report())
}

func (s *Server) downloadResults(w http.ResponseWriter, r *http.Request) {
	path, err := s.ctrl.ResultFile()
	if err != nil {
		writeFault(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	Warnings []string `json:"warnings,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
	Phase    string   `json:"phase"`
}

// workerEvents accepts one event object or an array of events from a remote
// worker. Consistency faults are accepted with a warning; invalid events are
// rejected individually; events after the session ended are refused.
func (s *Server) workerEvents(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw = bytes.TrimSpace(raw)

	var events []models.Event
	single := len(raw) == 0 || raw[0] != '['
	if single {
		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		events = []models.Event{ev}
	} else if err := json.Unmarshal(raw, &events); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	resp := ingestResponse{}
	for _, ev := range events {
		err := s.ctrl.Ingest(r.Context(), ev)
		switch {
		case err == nil:
			resp.Accepted++
		case errors.Is(err, faults.ErrLifecycle):
			writeFault(w, err)
			return
		case errors.Is(err, faults.ErrConsistency) && !errors.Is(err, faults.ErrValidation):
			resp.Accepted++
			resp.Warnings = append(resp.Warnings, err.Error())
		default:
			if single {
				writeFault(w, err)
				return
			}
			resp.Rejected = append(resp.Rejected, err.Error())
		}
	}
	resp.Phase = string(s.ctrl.Phase())
	writeJSON(w, http.StatusOK, resp)
}

// --- History ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []*models.SessionRecord{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	sessions, err := s.history.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "session history is disabled")
		return
	}
	id := r.PathValue("id")
	rec, err := s.history.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	profiles, err := s.history.ListProfiles(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":  rec,
		"profiles": profiles,
	})
}
