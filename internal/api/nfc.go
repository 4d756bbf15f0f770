package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type linkTagRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	TagUID   string `json:"tag_uid" validate:"required,max=64"`
}

type unlinkTagRequest struct {
	TagUID string `json:"tag_uid" validate:"required,max=64"`
}

// handleLinkTag binds a tag to one of the caller's devices.
func (s *Server) handleLinkTag(w http.ResponseWriter, r *http.Request) {
	var req linkTagRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	tag, err := s.nfc.Link(r.Context(), user.ID, req.DeviceID, req.TagUID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// handleUnlinkTag clears a tag linked to one of the caller's devices.
func (s *Server) handleUnlinkTag(w http.ResponseWriter, r *http.Request) {
	var req unlinkTagRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	tag, err := s.nfc.Unlink(r.Context(), user.ID, req.TagUID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

// handleListDeviceTags returns the tags linked to an owned device.
func (s *Server) handleListDeviceTags(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	tags, err := s.nfc.ListByDevice(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags, "count": len(tags)})
}
