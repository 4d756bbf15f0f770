package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// phc encodes an argon2id hash of secret with explicit parameters.
func phc(secret string, memory, time uint32) string {
	salt := []byte("0123456789abcdef")
	hash := argon2.IDKey([]byte(secret), salt, time, memory, 1, 32)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=1$%s$%s", argon2.Version, memory, time,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func TestHashSecret_Format(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("hash = %q, want argon2id PHC prefix", hash)
	}

	other, _ := HashSecret("s3cret")
	if hash == other {
		t.Error("two hashes of the same secret should differ by salt")
	}
}

func TestVerifySecret(t *testing.T) {
	argonHash, err := HashSecret("right")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}

	tests := []struct {
		name    string
		secret  string
		hash    string
		wantErr bool
	}{
		{"argon2id match", "right", argonHash, false},
		{"argon2id mismatch", "wrong", argonHash, true},
		{"bcrypt match", "right", string(bcryptHash), false},
		{"bcrypt mismatch", "wrong", string(bcryptHash), true},
		{"malformed hash", "right", "not-a-hash", true},
		{"unknown algorithm", "right", "$scrypt$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA", true},
		{"empty hash", "right", "", true},
		{"older 64 MiB hash", "right", phc("right", 64*1024, 3), false},
		{"memory above bound", "right", "$argon2id$v=19$m=131072,t=1,p=1$c2FsdA$aGFzaA", true},
		{"zero iterations", "right", "$argon2id$v=19$m=1024,t=0,p=1$c2FsdA$aGFzaA", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySecret(tt.secret, tt.hash)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredential) {
					t.Errorf("VerifySecret() error = %v, want ErrInvalidCredential", err)
				}
				return
			}
			if err != nil {
				t.Errorf("VerifySecret() error = %v", err)
			}
		})
	}
}

func TestCredentials_HashForAndVerify(t *testing.T) {
	creds := NewCredentials(testMasterKey)

	hash, err := creds.HashFor("GI-42")
	if err != nil {
		t.Fatalf("HashFor() error = %v", err)
	}
	secret, _ := creds.Secret("GI-42")
	if strings.Contains(hash, secret) {
		t.Fatal("stored hash must not contain the raw secret")
	}

	if err := creds.Verify("GI-42", hash); err != nil {
		t.Errorf("Verify(own serial) error = %v", err)
	}
	if err := creds.Verify("GI-43", hash); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify(other serial) error = %v, want ErrInvalidCredential", err)
	}
	if err := NewCredentials("another-master-key-0123456789abcd").Verify("GI-42", hash); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify(other key) error = %v, want ErrInvalidCredential", err)
	}
}

func BenchmarkCredentials_Verify(b *testing.B) {
	creds := NewCredentials(testMasterKey)
	hash, err := creds.HashFor("GI-42")
	if err != nil {
		b.Fatalf("HashFor() error = %v", err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if err := creds.Verify("GI-42", hash); err != nil {
			b.Fatalf("Verify() error = %v", err)
		}
	}
}
