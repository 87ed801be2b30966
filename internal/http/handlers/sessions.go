package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clinsim/clinsim/internal/casefile"
	"github.com/clinsim/clinsim/internal/engine"
	"github.com/clinsim/clinsim/internal/session"
	"github.com/clinsim/clinsim/pkg/logging"
)

// SessionHandler exposes the interview engine over HTTP.
type SessionHandler struct {
	engine *engine.Engine
	logger *logging.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(eng *engine.Engine, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{engine: eng, logger: logger}
}

// CreateSessionResponse is the payload for a newly started session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	CaseID    string `json:"caseId"`
	CaseTitle string `json:"caseTitle,omitempty"`
}

// QueryRequest is one trainee question.
type QueryRequest struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

// DiagnosisRequest submits a working or final diagnosis.
type DiagnosisRequest struct {
	Diagnosis string `json:"diagnosis"`
	Final     bool   `json:"final"`
}

// CreateSession starts a new interview session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.engine.StartSession(r.Context())
	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: s.ID,
		CaseID:    s.CaseID,
		CaseTitle: h.engine.Case().Title,
	})
}

// Query processes one trainee question against a session.
func (h *SessionHandler) Query(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	clinicalCtx := casefile.Context(strings.ToLower(strings.TrimSpace(req.Context)))
	if clinicalCtx == "" {
		clinicalCtx = casefile.ContextAnamnesis
	}
	if !knownContext(clinicalCtx) {
		writeError(w, http.StatusBadRequest, "unknown context: "+string(clinicalCtx))
		return
	}

	result := h.engine.ProcessQuery(r.Context(), sessionID, clinicalCtx, req.Query)
	if !result.Success {
		writeJSON(w, failureStatus(result.Err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Diagnosis records a hypothesis or, when final, ends the session and
// returns the evaluation summary.
func (h *SessionHandler) Diagnosis(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req DiagnosisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Diagnosis) == "" {
		writeError(w, http.StatusBadRequest, "diagnosis is required")
		return
	}

	if req.Final {
		summary, err := h.engine.EndSession(r.Context(), sessionID, req.Diagnosis)
		if err != nil {
			h.writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	result := h.engine.SubmitHypothesis(r.Context(), sessionID, req.Diagnosis)
	if !result.Success {
		writeJSON(w, failureStatus(result.Err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Summary returns the current session summary.
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Summary(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Discoveries returns everything revealed so far.
func (h *SessionHandler) Discoveries(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.Discoveries(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discoveries": views,
		"count":       len(views),
	})
}

// DeleteSession removes a session.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck reports service liveness.
func (h *SessionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"case":   h.engine.Case().ID,
	})
}

// failureStatus maps an engine result's sentinel error to an HTTP status.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrEnded):
		writeError(w, http.StatusConflict, "session has ended")
	default:
		h.logger.Error("session request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func knownContext(ctx casefile.Context) bool {
	for _, known := range casefile.KnownContexts {
		if ctx == known {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
