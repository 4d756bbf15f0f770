package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validSecret meets the 32-character minimum.
const validSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
service:
  id: "test-core"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "gi-test"
api:
  host: "0.0.0.0"
  port: 8080
security:
  device_secret: "`+validSecret+`"
  identity:
    secret: "`+validSecret+`"
    issuer: "test-issuer"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "test-core" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "test-core")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.TopicPrefix != "gi-test" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "gi-test")
	}
	if cfg.Security.Identity.Issuer != "test-issuer" {
		t.Errorf("Security.Identity.Issuer = %q, want %q", cfg.Security.Identity.Issuer, "test-issuer")
	}
	// Untouched sections keep their defaults.
	if cfg.WebSocket.PingInterval != 30 {
		t.Errorf("WebSocket.PingInterval = %d, want 30", cfg.WebSocket.PingInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
service:
  id: "test-core"
`)
	t.Setenv("GUARDIMOTO_DEVICE_SECRET", validSecret)
	t.Setenv("GUARDIMOTO_IDENTITY_SECRET", validSecret)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.DeviceSecret != validSecret {
		t.Errorf("Security.DeviceSecret not taken from environment")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
service:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.id, got nil")
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.DeviceSecret = validSecret
	cfg.Security.Identity.Secret = validSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "missing service ID", mutate: func(c *Config) { c.Service.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "missing topic prefix", mutate: func(c *Config) { c.MQTT.TopicPrefix = "" }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing device secret", mutate: func(c *Config) { c.Security.DeviceSecret = "" }, wantErr: true},
		{name: "device secret too short", mutate: func(c *Config) { c.Security.DeviceSecret = "short" }, wantErr: true},
		{name: "missing identity secret", mutate: func(c *Config) { c.Security.Identity.Secret = "" }, wantErr: true},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GUARDIMOTO_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GUARDIMOTO_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GUARDIMOTO_MQTT_PORT", "8883")
	t.Setenv("GUARDIMOTO_MQTT_USERNAME", "testuser")
	t.Setenv("GUARDIMOTO_MQTT_PASSWORD", "testpass")
	t.Setenv("GUARDIMOTO_API_HOST", "192.168.1.1")
	t.Setenv("GUARDIMOTO_API_PORT", "9090")
	t.Setenv("GUARDIMOTO_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GUARDIMOTO_DEVICE_SECRET", "device-key")
	t.Setenv("GUARDIMOTO_IDENTITY_SECRET", "identity-key")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 9090},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.DeviceSecret", cfg.Security.DeviceSecret, "device-key"},
		{"Security.Identity.Secret", cfg.Security.Identity.Secret, "identity-key"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID == "" {
		t.Error("defaultConfig should have non-empty Service.ID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave InfluxDB disabled")
	}
}
