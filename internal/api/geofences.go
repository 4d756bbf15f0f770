package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
)

// Geofence audit actions.
const (
	actionCreatedGeofence = "created_geofence"
	actionDeletedGeofence = "deleted_geofence"
)

type createGeofenceRequest struct {
	Name   string   `json:"name" validate:"max=64"`
	Lat    *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng    *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Radius *float64 `json:"radius" validate:"required,gt=0"`
}

// handleListGeofences returns an owned device's fences.
func (s *Server) handleListGeofences(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	fences, err := s.geofences.ListByDevice(r.Context(), d.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"geofences": fences, "count": len(fences)})
}

// handleCreateGeofence adds a circular fence to an owned device.
func (s *Server) handleCreateGeofence(w http.ResponseWriter, r *http.Request) {
	var req createGeofenceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	g := &geofence.Geofence{
		DeviceID: d.ID,
		Name:     req.Name,
		Lat:      *req.Lat,
		Lng:      *req.Lng,
		Radius:   *req.Radius,
	}
	if err := s.geofences.Create(r.Context(), g); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.recordUserAction(r, actionCreatedGeofence, "geofence", g.ID, map[string]any{"device_id": d.ID})
	writeJSON(w, http.StatusCreated, g)
}

// handleDeleteGeofence removes a fence from an owned device.
func (s *Server) handleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	fenceID := chi.URLParam(r, "fenceID")
	if err := s.geofences.Delete(r.Context(), d.ID, fenceID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.recordUserAction(r, actionDeletedGeofence, "geofence", fenceID, map[string]any{"device_id": d.ID})
	w.WriteHeader(http.StatusNoContent)
}

// recordUserAction writes an audit entry for the calling user (best effort).
func (s *Server) recordUserAction(r *http.Request, action, targetType, targetID string, metadata map[string]any) {
	user := userFromContext(r.Context())
	s.audit.Record(&audit.AuditLog{
		ActorType:  audit.ActorUser,
		ActorID:    user.ID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	})
}
