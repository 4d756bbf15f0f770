package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims read from an identity-provider token.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Identity is the verified caller behind a bearer token.
type Identity struct {
	UID   string
	Email string
}

// TokenVerifier validates HS256 bearer tokens issued by the identity provider.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// clockSkew tolerates small clock differences with the identity provider.
const clockSkew = 30 * time.Second

// NewTokenVerifier creates a verifier. Empty issuer or audience disables that check.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   clockSkew,
	}
}

// Verify validates tokenString and returns the identity it carries.
func (v *TokenVerifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Identity{UID: claims.Subject, Email: claims.Email}, nil
}

// IssueToken signs an identity token. The identity provider normally issues
// these; the server uses it for tooling and tests.
func IssueToken(secret, uid, email, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}
