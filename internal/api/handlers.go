package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mindsupport/compass/internal/models"
)

// chatStartHandler handles POST /chat/start. It mints an identity when the
// request does not carry one and runs the opening turn.
func (s *Server) chatStartHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatStartHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ChatStartRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("chatStartHandler invalid JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	}

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		identity = uuid.NewString()
	}

	result, err := s.orch.Restart(r.Context(), identity)
	if err != nil {
		s.writeOrchestratorError(w, "chatStartHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// chatMessageHandler handles POST /chat/message, one assessment turn.
func (s *Server) chatMessageHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatMessageHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("chatMessageHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("chatMessageHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.orch.HandleMessage(r.Context(), req.Identity, req.Text)
	if err != nil {
		s.writeOrchestratorError(w, "chatMessageHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// chatRestartHandler handles POST /chat/restart, wiping the conversation and
// starting over under the same identity.
func (s *Server) chatRestartHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatRestartHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var req models.ChatRestartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("chatRestartHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("chatRestartHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.orch.Restart(r.Context(), req.Identity)
	if err != nil {
		s.writeOrchestratorError(w, "chatRestartHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation restarted", result))
}

// chatReportHandler handles GET /chat/report?identity=...
func (s *Server) chatReportHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatReportHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	if identity == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("identity query parameter is required"))
		return
	}

	report, err := s.orch.Report(r.Context(), identity)
	if err != nil {
		s.writeOrchestratorError(w, "chatReportHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// writeOrchestratorError maps orchestrator errors onto HTTP status codes.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, handler string, err error) {
	switch {
	case errors.Is(err, models.ErrTurnInProgress):
		slog.Warn(handler+": turn already in progress", "error", err)
		writeJSONResponse(w, http.StatusConflict, models.Error("A turn for this identity is already being processed"))
	case errors.Is(err, models.ErrEmptyIdentity), errors.Is(err, models.ErrEmptyMessage):
		slog.Warn(handler+": bad request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, models.ErrConversationNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
	case errors.Is(err, models.ErrAssessmentIncomplete):
		writeJSONResponse(w, http.StatusConflict, models.Error("Assessment is not complete yet"))
	default:
		slog.Error(handler+": orchestrator failure", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
