package api

import (
	"net/http"
	"strings"

	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

type bootstrapRequest struct {
	SerialNumber string `json:"serial_number"`
}

// ingestRequest is the telemetry body. serial_number may ride along for
// device authentication and is otherwise ignored.
type ingestRequest struct {
	telemetry.Ingest
	SerialNumber string `json:"serial_number,omitempty"`
}

type verifyTagRequest struct {
	TagUID string `json:"tag_uid" validate:"required,max=64"`
}

// handleBootstrap is the device handshake: serial number in, channel and
// device-facing config out. It mutates nothing and may be repeated.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	serial := strings.TrimSpace(r.Header.Get(deviceSerialHeader))
	if serial == "" {
		var req bootstrapRequest
		if err := decodeJSON(r, &req, false); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		serial = strings.TrimSpace(req.SerialNumber)
	}
	if serial == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "serial_number is required")
		return
	}

	b, err := s.pairing.Bootstrap(r.Context(), serial)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleHeartbeat marks the calling device online.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())
	if err := s.pairing.Heartbeat(r.Context(), d.ID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleIngest stores one reading from the calling device. Detection runs
// after the response; its outcome is never reported here.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	d := deviceFromContext(r.Context())
	if _, err := s.telemetry.Ingest(r.Context(), d.ID, req.Ingest); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleVerifyTag tells the calling device whether a scanned tag is linked
// to it.
func (s *Server) handleVerifyTag(w http.ResponseWriter, r *http.Request) {
	var req verifyTagRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	d := deviceFromContext(r.Context())
	valid, err := s.nfc.Verify(r.Context(), d.ID, req.TagUID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}
