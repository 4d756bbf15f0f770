package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/auth"
	"github.com/nerrad567/guard-imoto-core/internal/detection"
	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/logging"
	"github.com/nerrad567/guard-imoto-core/internal/nfc"
	"github.com/nerrad567/guard-imoto-core/internal/pairing"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TokenVerifier validates user bearer tokens. *auth.TokenVerifier satisfies it.
type TokenVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// HealthChecker is a dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Tokens    TokenVerifier
	Users     auth.UserRepository
	Pairing   *pairing.Service
	Devices   device.Repository
	Telemetry *telemetry.Service
	Findings  detection.Repository
	NFC       *nfc.Service
	Geofences geofence.Repository
	AuditRepo audit.Repository
	Audit     audit.Recorder
	Hub       *Hub                     // shared with the detection engine as a finding sink
	Health    map[string]HealthChecker // optional, keyed by component name
	DB        DBStatser                // optional, for /metrics
	MQTT      Connectivity             // optional, for /metrics
	Version   string
}

// Server is the HTTP API server for Guard Imoto.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	tokens    TokenVerifier
	users     auth.UserRepository
	pairing   *pairing.Service
	devices   device.Repository
	telemetry *telemetry.Service
	findings  detection.Repository
	nfc       *nfc.Service
	geofences geofence.Repository
	auditRepo audit.Repository
	audit     audit.Recorder
	health    map[string]HealthChecker
	db        DBStatser
	mqtt      Connectivity
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token verifier is required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Pairing == nil:
		return nil, fmt.Errorf("pairing service is required")
	case deps.Devices == nil:
		return nil, fmt.Errorf("device repository is required")
	case deps.Telemetry == nil:
		return nil, fmt.Errorf("telemetry service is required")
	case deps.Findings == nil:
		return nil, fmt.Errorf("findings repository is required")
	case deps.NFC == nil:
		return nil, fmt.Errorf("nfc service is required")
	case deps.Geofences == nil:
		return nil, fmt.Errorf("geofence repository is required")
	case deps.AuditRepo == nil:
		return nil, fmt.Errorf("audit repository is required")
	}

	rec := deps.Audit
	if rec == nil {
		rec = audit.Discard{}
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		tokens:    deps.Tokens,
		users:     deps.Users,
		pairing:   deps.Pairing,
		devices:   deps.Devices,
		telemetry: deps.Telemetry,
		findings:  deps.Findings,
		nfc:       deps.NFC,
		geofences: deps.Geofences,
		auditRepo: deps.AuditRepo,
		audit:     rec,
		health:    deps.Health,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
		hub:       hub,
	}, nil
}

// Handler returns the fully wired router. Start uses it; tests may serve it
// directly.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
