package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/auth"
	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/nfc"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeInvalidState    = "invalid_state"
	ErrCodeFeatureDisabled = "feature_disabled"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeUnavailable     = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorMapping ties domain errors to a status, code and a fixed message.
// Messages never include identifiers or wrapped detail.
type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound, "device not found"},
	{device.ErrConfigNotFound, http.StatusNotFound, ErrCodeNotFound, "device config not found"},
	{nfc.ErrTagNotFound, http.StatusNotFound, ErrCodeNotFound, "tag not found"},
	{geofence.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "geofence not found"},
	{audit.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "audit entry not found"},

	{auth.ErrInvalidCredential, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid device credential"},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token"},

	{device.ErrNotOwner, http.StatusForbidden, ErrCodeForbidden, "device not owned by caller"},
	{device.ErrInvalidPairingCode, http.StatusForbidden, ErrCodeForbidden, "invalid serial number or pairing code"},
	{telemetry.ErrFeatureDisabled, http.StatusForbidden, ErrCodeFeatureDisabled, "telemetry type disabled for this device"},

	{device.ErrNotPaired, http.StatusConflict, ErrCodeInvalidState, "device not paired"},
	{device.ErrPairingCodeConsumed, http.StatusConflict, ErrCodeInvalidState, "pairing code already used"},
	{device.ErrAlreadyPaired, http.StatusConflict, ErrCodeConflict, "device already paired"},
	{device.ErrDeviceExists, http.StatusConflict, ErrCodeConflict, "device already exists"},

	{device.ErrInvalidConfig, http.StatusBadRequest, ErrCodeValidation, "invalid config update"},
	{device.ErrInvalidSerial, http.StatusBadRequest, ErrCodeValidation, "invalid serial number"},
	{telemetry.ErrUnsupportedKind, http.StatusBadRequest, ErrCodeValidation, "unsupported telemetry type"},
	{telemetry.ErrInvalidReading, http.StatusBadRequest, ErrCodeValidation, "invalid telemetry reading"},
	{nfc.ErrInvalidTagUID, http.StatusBadRequest, ErrCodeValidation, "invalid tag uid"},
	{geofence.ErrInvalid, http.StatusBadRequest, ErrCodeValidation, "invalid geofence"},

	{telemetry.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable, "shutting down"},
}

// writeDomainError maps err to a response. Unmapped errors are logged and
// surface as a generic 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.message)
			return
		}
	}
	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
		"error", err,
	)
	writeInternalError(w, "internal server error")
}
