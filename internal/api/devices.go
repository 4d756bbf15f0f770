package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// deviceView is a device with its config and newest reading per kind.
type deviceView struct {
	*device.Device
	Config *device.FeatureFlags                  `json:"config,omitempty"`
	Latest map[telemetry.Kind]*telemetry.Reading `json:"latest"`
}

type createDeviceRequest struct {
	SerialNumber string `json:"serial_number" validate:"required,serial"`
	DeviceName   string `json:"device_name" validate:"max=64"`
}

type pairDeviceRequest struct {
	SerialNumber string `json:"serial_number" validate:"required,serial"`
	PairingCode  string `json:"pairing_code" validate:"required,max=32"`
}

// handleListDevices returns the caller's devices, each with its newest
// reading per telemetry kind.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFromContext(ctx)

	devices, err := s.devices.ListByOwner(ctx, user.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for i := range devices {
		latest, err := s.telemetry.Latest(ctx, devices[i].ID)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		views = append(views, deviceView{Device: &devices[i], Latest: latest})
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns one owned device with its config and latest readings.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	cfg, err := s.devices.GetConfig(ctx, d.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	latest, err := s.telemetry.Latest(ctx, d.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceView{Device: d, Config: &cfg.FeatureFlags, Latest: latest})
}

// handleCreateDevice registers a device already paired to the caller.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	d, err := s.pairing.CreateAndPair(r.Context(), user.ID, strings.TrimSpace(req.SerialNumber), req.DeviceName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handlePairDevice claims an unpaired device with its one-time code.
func (s *Server) handlePairDevice(w http.ResponseWriter, r *http.Request) {
	var req pairDeviceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	d, err := s.pairing.Pair(r.Context(), user.ID, strings.TrimSpace(req.SerialNumber), strings.TrimSpace(req.PairingCode))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUnpairDevice returns an owned device to the unpaired state.
func (s *Server) handleUnpairDevice(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	d, err := s.pairing.Unpair(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpdateConfig applies a partial update to device fields and feature
// flags. Unknown fields, including pairing state, are rejected.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch device.ConfigPatch
	if err := decodeJSON(r, &patch, true); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	user := userFromContext(r.Context())
	d, cfg, err := s.pairing.UpdateConfig(r.Context(), user.ID, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": d, "config": cfg})
}

// handleScanNFC asks an owned device to enter NFC scan mode.
func (s *Server) handleScanNFC(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	d, err := s.pairing.EnterScanMode(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"device_id": d.ID, "status": "scan_mode_requested"})
}

// handleListTelemetry returns the newest readings of one kind.
func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	kind, err := telemetry.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	readings, err := s.telemetry.List(r.Context(), d.ID, kind)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleListFindings returns the newest findings of an owned device.
//
// Query parameters:
//   - limit: max results (default and max 100)
func (s *Server) handleListFindings(w http.ResponseWriter, r *http.Request) {
	d, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	findings, err := s.findings.ListByDevice(r.Context(), d.ID, queryInt(r, "limit", 0))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"findings": findings, "count": len(findings)})
}

// ownedDevice loads the {id} device and checks the caller owns it. On
// failure it writes the response and returns false.
func (s *Server) ownedDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	user := userFromContext(r.Context())
	d, err := s.pairing.Owned(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, false
	}
	return d, true
}
