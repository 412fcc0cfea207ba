// internal/server/handlers.go
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apperrors "camp-lifecycle/internal/common/errors"
)

type submitResponseRequest struct {
	Value   *string `json:"value"`
	FileKey *string `json:"fileKey"`
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON")
		return
	}
	if req.Value == nil && req.FileKey == nil {
		s.writeError(w, http.StatusBadRequest, "EMPTY_RESPONSE", "Provide value or fileKey; use DELETE to clear an answer")
		return
	}

	snap, err := s.lifecycle.SubmitResponse(r.Context(), vars["id"], vars["questionId"], req.Value, req.FileKey)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	snap, err := s.lifecycle.DeleteResponse(r.Context(), vars["id"], vars["questionId"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	snap, err := s.lifecycle.Recompute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	model, err := s.lifecycle.GetReadModel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, model)
}

type recordApprovalRequest struct {
	TeamKey    string `json:"teamKey"`
	ApproverID string `json:"approverId"`
}

func (s *Server) handleRecordApproval(w http.ResponseWriter, r *http.Request) {
	var req recordApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BODY", "Request body must be JSON")
		return
	}
	if req.TeamKey == "" || req.ApproverID == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "teamKey and approverId are required")
		return
	}

	if err := s.approvals.RecordApproval(r.Context(), mux.Vars(r)["id"], req.TeamKey, req.ApproverID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	records, err := s.approvals.ListApprovals(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": records})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	app, err := s.transitions.Accept(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	app, err := s.transitions.Waitlist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleDeactivate(trigger string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, err := s.transitions.Deactivate(r.Context(), mux.Vars(r)["id"], trigger)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, app)
	}
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.schema.Get(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleInvalidateSchema(w http.ResponseWriter, r *http.Request) {
	if err := s.schema.Invalidate(r.Context()); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

// handleRunAutomations is the endpoint the external hourly trigger hits. The
// trigger is at-least-once; idempotence per period comes from the claim, so
// re-invocations are harmless.
func (s *Server) handleRunAutomations(w http.ResponseWriter, r *http.Request) {
	if s.triggerToken != "" && r.Header.Get("X-Trigger-Token") != s.triggerToken {
		s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid trigger token")
		return
	}

	summary := s.automations.RunDueAutomations(r.Context(), time.Now().UTC())
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListEmailLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	logs, err := s.emailLogs.ListByAutomation(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.healthChecks))
	for name, check := range s.healthChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{"checks": checks}
	if status == http.StatusOK {
		body["status"] = "healthy"
	} else {
		body["status"] = "unhealthy"
	}
	s.writeJSON(w, status, body)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	stdErr, ok := err.(*apperrors.StandardError)
	if !ok {
		s.logger.WithError(err).Error("Unclassified handler error", nil)
		s.writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch stdErr.Code {
	case apperrors.ErrCodeApplicationNotFound, apperrors.ErrCodeQuestionNotFound, apperrors.ErrCodeTemplateNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeIneligibleForAcceptance:
		status = http.StatusConflict
	case apperrors.ErrCodeInvalidAudienceFilter, "BUSINESS_RULE_VIOLATION":
		status = http.StatusBadRequest
	default:
		if stdErr.Retryable {
			status = http.StatusServiceUnavailable
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(stdErr).Error("Handler error", nil)
	}
	s.writeJSON(w, status, errorResponse{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil || status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response body", nil)
	}
}
