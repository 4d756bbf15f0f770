// Package logging provides structured logging for Guard Imoto Core.
//
// It wraps log/slog with JSON output for production, text output for
// development, and service/version fields on every record.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("pairing").Info("device paired", "device_id", id)
//
// # Security
//
// Never log device secrets, credential hashes, pairing codes, or bearer tokens.
package logging
