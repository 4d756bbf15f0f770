// Package auth holds the credential primitives for both device and user
// identities.
//
// Devices authenticate with a per-device secret derived from the factory
// master key and the serial number:
//
//	secret = hex(HMAC-SHA256(master, serial))
//
// Only an Argon2id hash of that secret is stored. Legacy bcrypt hashes
// ($2a$/$2b$) written by earlier provisioning tools are still accepted on
// verification.
//
// Users arrive with a bearer token issued by the external identity
// provider. TokenVerifier validates it (HS256, optional issuer and
// audience) and yields the subject, which Users maps to an internal user
// row, creating one on first sight.
package auth
