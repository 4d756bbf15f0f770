// guardimoto-provision registers a device at manufacture time and prints its
// one-time pairing code.
//
// Usage:
//
//	guardimoto-provision -serial GI-000123 [-name "Scooter"] [-config configs/config.yaml]
//
// Running it again for an unpaired device issues a fresh code. The code is
// printed once and never stored in clear text anywhere else.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/nerrad567/guard-imoto-core/migrations"

	"github.com/nerrad567/guard-imoto-core/internal/audit"
	"github.com/nerrad567/guard-imoto-core/internal/auth"
	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/config"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/logging"
	"github.com/nerrad567/guard-imoto-core/internal/pairing"
)

const defaultConfigPath = "configs/config.yaml"

// errUsage is returned for bad command-line arguments.
var errUsage = errors.New("usage error")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("guardimoto-provision", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	serial := fs.String("serial", "", "device serial number (required)")
	name := fs.String("name", "", "initial device name")
	configPath := fs.String("config", configPathFromEnv(), "configuration file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if strings.TrimSpace(*serial) == "" {
		return fmt.Errorf("%w: -serial is required", errUsage)
	}
	if !device.ValidSerial(strings.TrimSpace(*serial)) {
		return fmt.Errorf("%w: -serial may only contain letters, digits, '-' and '_'", errUsage)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, "provision")

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	d, code, err := provision(ctx, db, cfg.Security.DeviceSecret, strings.TrimSpace(*serial), *name, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "device_id:     %s\n", d.ID)
	fmt.Fprintf(out, "serial_number: %s\n", d.SerialNumber)
	fmt.Fprintf(out, "channel:       %s\n", d.Channel)
	fmt.Fprintf(out, "pairing_code:  %s\n", code)
	return nil
}

// provision registers serial, or reissues its code. Provisioning touches
// neither the broker nor the device channel, so no gateway is wired.
func provision(ctx context.Context, db *database.DB, masterKey, serial, name string, log *logging.Logger) (*device.Device, string, error) {
	svc := pairing.NewService(pairing.Deps{
		Devices:     device.NewSQLiteRepository(db.DB),
		Credentials: auth.NewCredentials(masterKey),
		Audit:       audit.SyncRecorder{Repo: audit.NewSQLiteRepository(db.DB), Logger: log},
	})
	svc.SetLogger(log)

	d, code, err := svc.Provision(ctx, serial, name)
	if err != nil {
		if errors.Is(err, device.ErrAlreadyPaired) {
			return nil, "", fmt.Errorf("device %s is paired; unpair it before reprovisioning: %w", serial, err)
		}
		return nil, "", fmt.Errorf("provisioning %s: %w", serial, err)
	}
	return d, code, nil
}

func configPathFromEnv() string {
	if path := os.Getenv("GUARDIMOTO_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
