package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Bootstrap applies its own gates and reports each one distinctly.
		r.Post("/device/bootstrap", s.handleBootstrap)

		// Device-originated routes
		r.Group(func(r chi.Router) {
			r.Use(s.deviceAuthMiddleware)

			r.Post("/device/heartbeat", s.handleHeartbeat)
			r.Post("/device/telemetry", s.handleIngest)
			r.Post("/device/nfc/verify", s.handleVerifyTag)
		})

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// User routes
		r.Group(func(r chi.Router) {
			r.Use(s.userAuthMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Post("/pair", s.handlePairDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/unpair", s.handleUnpairDevice)
					r.Patch("/config", s.handleUpdateConfig)
					r.Post("/scan-nfc", s.handleScanNFC)
					r.Get("/telemetry/{kind}", s.handleListTelemetry)
					r.Get("/findings", s.handleListFindings)
					r.Get("/nfc", s.handleListDeviceTags)
					r.Get("/geofences", s.handleListGeofences)
					r.Post("/geofences", s.handleCreateGeofence)
					r.Delete("/geofences/{fenceID}", s.handleDeleteGeofence)
				})
			})

			r.Route("/nfc", func(r chi.Router) {
				r.Post("/link", s.handleLinkTag)
				r.Post("/unlink", s.handleUnlinkTag)
			})

			r.Route("/audit", func(r chi.Router) {
				r.Get("/me", s.handleListMyAudit)
				r.Post("/", s.handleCreateAuditEvent)
				r.Get("/{id}", s.handleGetAuditEntry)
			})
		})
	})

	return r
}

// handleHealth returns the server health status and the state of each
// registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	components := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := hc.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			s.logger.Warn("health check failed", "component", name, "error", err)
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":     overall,
		"version":    s.version,
		"components": components,
	})
}
