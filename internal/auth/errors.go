package auth

import "errors"

// Domain errors returned by the auth package.
var (
	// ErrInvalidCredential is returned when a device secret does not match
	// the stored hash, or the hash cannot be decoded.
	ErrInvalidCredential = errors.New("auth: invalid credential")

	// ErrTokenInvalid is returned when a bearer token fails signature,
	// expiry, issuer or audience checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrUserNotFound is returned when a user row does not exist.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrEmptySecret is returned when deriving from an empty master key or serial.
	ErrEmptySecret = errors.New("auth: master key and serial are required")
)
