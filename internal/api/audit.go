package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
)

// createAuditEventRequest is a client-reported event, e.g. an app-side
// alarm acknowledgement.
type createAuditEventRequest struct {
	Action     string         `json:"action" validate:"required,max=64"`
	TargetType string         `json:"target_type" validate:"max=64"`
	TargetID   string         `json:"target_id" validate:"max=128"`
	Metadata   map[string]any `json:"metadata"`
}

// handleListMyAudit returns the caller's own audit entries, newest first.
//
// Query parameters:
//   - action: filter by action
//   - target_type: filter by target type
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListMyAudit(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q := r.URL.Query()

	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		ActorID:    user.ID,
		Action:     q.Get("action"),
		TargetType: q.Get("target_type"),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetAuditEntry returns one of the caller's audit entries. Entries of
// other actors are reported as not found.
func (s *Server) handleGetAuditEntry(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	entry, err := s.auditRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if entry.ActorType != audit.ActorUser || entry.ActorID != user.ID {
		s.writeDomainError(w, r, audit.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleCreateAuditEvent records a client-reported event for the caller.
// The write is synchronous so the entry is returned with its id.
func (s *Server) handleCreateAuditEvent(w http.ResponseWriter, r *http.Request) {
	var req createAuditEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	targetType := req.TargetType
	if targetType == "" {
		targetType = "client"
	}
	entry := &audit.AuditLog{
		ActorType:  audit.ActorUser,
		ActorID:    user.ID,
		Action:     req.Action,
		TargetType: targetType,
		TargetID:   req.TargetID,
		Metadata:   req.Metadata,
	}
	if err := s.auditRepo.Create(r.Context(), entry); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
