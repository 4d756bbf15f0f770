// Guard Imoto Core - IoT anti-theft backend
//
// This is the main entry point for the Guard Imoto service. It hosts:
//   - The device trust model (provisioning, pairing, bootstrap)
//   - Telemetry ingestion over HTTP and MQTT
//   - The detection engine and its findings feed
//   - The owner-facing REST and WebSocket API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/guard-imoto-core/migrations"

	"github.com/nerrad567/guard-imoto-core/internal/access"
	"github.com/nerrad567/guard-imoto-core/internal/api"
	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/auth"
	"github.com/nerrad567/guard-imoto-core/internal/detection"
	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/logging"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/guard-imoto-core/internal/nfc"
	"github.com/nerrad567/guard-imoto-core/internal/pairing"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides defaultConfigPath.
const configEnv = "GUARDIMOTO_CONFIG"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Guard Imoto Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	influxClient, err := connectInflux(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Audit entries are written by one goroutine. It is drained after the
	// API and ingestion paths have stopped producing.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewAsyncRecorder(auditRepo, log.Component("audit"))
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go recorder.Run(auditCtx)
	defer func() {
		stopAudit()
		<-recorder.Done()
		log.Info("audit log drained")
	}()

	deviceRepo := device.NewSQLiteRepository(db.DB)

	gateway := access.NewDynSecGateway(mqttClient, mqttClient.Topics(), cfg.MQTT.DynamicSecurity)
	gateway.SetLogger(log.Component("access"))

	pairingSvc := pairing.NewService(pairing.Deps{
		Devices:     deviceRepo,
		Credentials: auth.NewCredentials(cfg.Security.DeviceSecret),
		Access:      gateway,
		Notifier:    access.NewNotifier(mqttClient, mqttClient.Topics()),
		Audit:       recorder,
	})
	pairingSvc.SetLogger(log.Component("pairing"))

	tagRepo := nfc.NewSQLiteRepository(db.DB)
	fenceRepo := geofence.NewSQLiteRepository(db.DB)
	findingRepo := detection.NewSQLiteRepository(db.DB)
	store := telemetry.NewSQLiteStore(db.DB)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	engine := detection.NewEngine(
		detection.DefaultRegistry(),
		store,
		detection.NewContextLoader(tagRepo, fenceRepo),
		findingRepo,
	)
	engine.SetLogger(log.Component("detection"))
	engine.AddSink(hub)

	var mirror telemetry.Mirror
	if influxClient != nil {
		mirror = influxClient
		engine.AddSink(detection.MirrorSink{Writer: influxClient})
	}

	ingest := telemetry.NewService(store, deviceRepo, engine, mirror)
	ingest.SetLogger(log.Component("telemetry"))

	subscriber := telemetry.NewSubscriber(ingest, deviceRepo, mqttClient.Topics())
	subscriber.SetLogger(log.Component("telemetry"))
	if subErr := mqttClient.Subscribe(subscriber.Topic(), mqttClient.QoS(), subscriber.Handle); subErr != nil {
		return fmt.Errorf("subscribing to telemetry: %w", subErr)
	}
	log.Info("telemetry subscription active", "topic", subscriber.Topic())

	nfcSvc := nfc.NewService(tagRepo, deviceRepo, recorder)
	nfcSvc.SetLogger(log.Component("nfc"))

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		health["influxdb"] = influxClient
	}

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Tokens:    auth.NewTokenVerifier(cfg.Security.Identity.Secret, cfg.Security.Identity.Issuer, cfg.Security.Identity.Audience),
		Users:     auth.NewUserRepository(db.DB),
		Pairing:   pairingSvc,
		Devices:   deviceRepo,
		Telemetry: ingest,
		Findings:  findingRepo,
		NFC:       nfcSvc,
		Geofences: fenceRepo,
		AuditRepo: auditRepo,
		Audit:     recorder,
		Hub:       hub,
		Health:    health,
		DB:        db.DB,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Stop accepting requests, unsubscribe, then let in-flight detection
	// finish before the deferred closes run.
	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	if unsubErr := mqttClient.Unsubscribe(subscriber.Topic()); unsubErr != nil {
		log.Warn("error unsubscribing telemetry", "error", unsubErr)
	}
	ingest.Close()
	if influxClient != nil {
		influxClient.Flush()
	}

	log.Info("Guard Imoto Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GUARDIMOTO_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInflux opens the optional time-series mirror. It returns nil when
// InfluxDB is disabled.
func connectInflux(cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
