package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeriveSecret returns the device secret for serial under the factory
// master key: lowercase hex of HMAC-SHA256(masterKey, serial).
//
// The same inputs always yield the same secret, so a device can be
// re-flashed without a database lookup.
func DeriveSecret(masterKey, serial string) (string, error) {
	if masterKey == "" || serial == "" {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, []byte(masterKey))
	mac.Write([]byte(serial))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
