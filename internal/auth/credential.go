package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters for device secrets. The input is a 256-bit HMAC
// output, not a password, and is verified on every device request.
const (
	argonTime    = 1    // iterations
	argonMemory  = 1024 // 1 MiB
	argonThreads = 1    // parallelism
	argonKeyLen  = 32   // output hash length
	argonSaltLen = 16   // salt length

	// argonMaxMemory bounds the cost a stored hash may ask for.
	argonMaxMemory = 64 * 1024
)

// HashSecret hashes a device secret using Argon2id and returns it in PHC
// string format: $argon2id$v=19$m=1024,t=1,p=1$<salt>$<hash>
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifySecret checks secret against a stored hash. Argon2id PHC strings and
// bcrypt hashes are both understood. Any mismatch or undecodable hash yields
// ErrInvalidCredential.
func VerifySecret(secret, encodedHash string) error {
	if isBcrypt(encodedHash) {
		if err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(secret)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrInvalidCredential
			}
			return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return nil
	}

	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	candidate := argon2.IDKey([]byte(secret), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	if subtle.ConstantTimeCompare(hash, candidate) != 1 {
		return ErrInvalidCredential
	}
	return nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string format into its components.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if params.memory > argonMaxMemory || params.time == 0 || params.threads == 0 {
		return nil, nil, params, fmt.Errorf("unsupported parameters: %s", parts[3])
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}

	return salt, hash, params, nil
}

// Credentials ties secret derivation to hashing under one master key.
type Credentials struct {
	masterKey string
}

// NewCredentials returns a Credentials bound to masterKey.
func NewCredentials(masterKey string) *Credentials {
	return &Credentials{masterKey: masterKey}
}

// Secret derives the device secret for serial.
func (c *Credentials) Secret(serial string) (string, error) {
	return DeriveSecret(c.masterKey, serial)
}

// HashFor derives the secret for serial and returns its one-way hash.
// The raw secret never leaves this call.
func (c *Credentials) HashFor(serial string) (string, error) {
	secret, err := c.Secret(serial)
	if err != nil {
		return "", err
	}
	return HashSecret(secret)
}

// Verify recomputes the secret for serial and checks it against storedHash.
func (c *Credentials) Verify(serial, storedHash string) error {
	secret, err := c.Secret(serial)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return VerifySecret(secret, storedHash)
}
