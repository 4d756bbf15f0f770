// Package api implements the HTTP REST API and WebSocket server for Guard Imoto.
//
// This package provides:
//   - owner endpoints for pairing, device config, telemetry, findings, NFC tags
//     and geofences, authenticated with identity-provider bearer tokens
//   - device endpoints (bootstrap, heartbeat, telemetry ingestion, tag
//     verification), authenticated by serial number and derived secret
//   - a WebSocket hub pushing findings to the owners of the device
//   - middleware (request ID, logging, recovery, CORS, body limit)
//
// # Security
//
// User routes require "Authorization: Bearer <token>". The token subject is
// mapped to an internal user, created on first sight. WebSocket connections
// use single-use tickets obtained from POST /auth/ws-ticket so tokens never
// appear in URLs.
//
// Device routes read the serial number from the X-Device-Serial header or
// the serial_number field of the JSON body and apply the bootstrap gates:
// the device exists, is paired, and its derived secret matches the stored hash.
package api
