// Package auth implements the HTTP frontend's pluggable authentication
// validators, configured via the Builder's AuthJwt/AuthApiKey
// options: bearer JWT verification and header-based API-key verification.
package auth

import (
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/mcpbridge/mcpbridge/internal/secret"
)

// ErrMissingCredential is returned when the Authorization header is absent
// or malformed.
var ErrMissingCredential = errors.New("auth: missing bearer credential")

// ErrInvalidCredential is returned when a presented credential fails
// verification (bad signature, expired, wrong issuer/audience).
var ErrInvalidCredential = errors.New("auth: invalid bearer credential")

// JwtValidator verifies bearer JWTs against a shared secret plus optional
// issuer/audience constraints.
type JwtValidator struct {
	key      []byte
	issuer   string
	audience string
}

// NewJwtValidator builds a JwtValidator from a JwtConfig's fields directly,
// so callers in internal/config don't need to import this package's config
// type (avoiding an import cycle between config and auth).
func NewJwtValidator(sharedSecret secret.String, issuer, audience string) *JwtValidator {
	return &JwtValidator{
		key:      []byte(sharedSecret.Reveal()),
		issuer:   issuer,
		audience: audience,
	}
}

// Validate parses and verifies token, returning the subject claim on
// success.
func (v *JwtValidator) Validate(token string) (subject string, err error) {
	if token == "" {
		return "", ErrMissingCredential
	}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var claims jwt.Claims
	if err := parsed.Claims(v.key, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	expected := jwt.Expected{Time: time.Now()}
	if v.issuer != "" {
		expected.Issuer = v.issuer
	}
	if v.audience != "" {
		expected.AnyAudience = jwt.Audience{v.audience}
	}
	if err := claims.Validate(expected); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	return claims.Subject, nil
}
