package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
database:
  path: "` + filepath.Join(dir, "provision.db") + `"
logging:
  level: error
  format: text
security:
  device_secret: "test-device-master-key-0123456789abcdef"
  identity:
    secret: "test-identity-secret-0123456789abcdef"
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// fields parses the "key: value" lines printed by run.
func fields(out string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, ":")
		if ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing serial", []string{"-name", "x"}},
		{"blank serial", []string{"-serial", "  "}},
		{"serial with topic separator", []string{"-serial", "GI/1"}},
		{"unknown flag", []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(context.Background(), tt.args, &bytes.Buffer{})
			if !errors.Is(err, errUsage) {
				t.Errorf("run() error = %v, want errUsage", err)
			}
		})
	}
}

func TestRun_ProvisionAndReissue(t *testing.T) {
	cfg := writeConfig(t)
	args := []string{"-config", cfg, "-serial", "GI-000123", "-name", "Scooter"}

	var first bytes.Buffer
	if err := run(context.Background(), args, &first); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	got := fields(first.String())
	if got["serial_number"] != "GI-000123" {
		t.Errorf("serial_number = %q", got["serial_number"])
	}
	if got["device_id"] == "" || got["channel"] == "" || got["pairing_code"] == "" {
		t.Fatalf("output missing fields: %q", first.String())
	}

	var second bytes.Buffer
	if err := run(context.Background(), args, &second); err != nil {
		t.Fatalf("second run() error = %v", err)
	}
	again := fields(second.String())
	if again["device_id"] != got["device_id"] {
		t.Errorf("reissue changed device id: %q -> %q", got["device_id"], again["device_id"])
	}
	if again["channel"] != got["channel"] {
		t.Errorf("reissue changed channel: %q -> %q", got["channel"], again["channel"])
	}
}

func TestRun_MissingConfig(t *testing.T) {
	err := run(context.Background(), []string{"-config", "/nonexistent/config.yaml", "-serial", "GI-1"}, &bytes.Buffer{})
	if err == nil || errors.Is(err, errUsage) {
		t.Errorf("run() error = %v, want a config failure", err)
	}
}
