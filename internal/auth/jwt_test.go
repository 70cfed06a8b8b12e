package auth

import (
	"errors"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/mcpbridge/mcpbridge/internal/secret"
)

func signTestToken(t *testing.T, key []byte, claims jwt.Claims) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		t.Fatalf("jose.NewSigner() error = %v", err)
	}
	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		t.Fatalf("jwt.Signed().Serialize() error = %v", err)
	}
	return token
}

func TestJwtValidator_Validate(t *testing.T) {
	key := []byte("a-shared-secret-at-least-this-long")
	now := time.Now()

	tests := []struct {
		name     string
		issuer   string
		audience string
		claims   jwt.Claims
		signKey  []byte
		wantErr  error
		wantSub  string
	}{
		{
			name: "valid token returns subject",
			claims: jwt.Claims{
				Subject:   "user-1",
				Expiry:    jwt.NewNumericDate(now.Add(time.Hour)),
				NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			},
			signKey: key,
			wantSub: "user-1",
		},
		{
			name:     "matching issuer and audience",
			issuer:   "mcpbridge",
			audience: "clients",
			claims: jwt.Claims{
				Subject:  "user-2",
				Issuer:   "mcpbridge",
				Audience: jwt.Audience{"clients"},
				Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
			},
			signKey: key,
			wantSub: "user-2",
		},
		{
			name:   "wrong issuer rejected",
			issuer: "mcpbridge",
			claims: jwt.Claims{
				Subject: "user-3",
				Issuer:  "someone-else",
				Expiry:  jwt.NewNumericDate(now.Add(time.Hour)),
			},
			signKey: key,
			wantErr: ErrInvalidCredential,
		},
		{
			name:     "wrong audience rejected",
			audience: "clients",
			claims: jwt.Claims{
				Subject:  "user-4",
				Audience: jwt.Audience{"someone-else"},
				Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
			},
			signKey: key,
			wantErr: ErrInvalidCredential,
		},
		{
			name: "expired token rejected",
			claims: jwt.Claims{
				Subject: "user-5",
				Expiry:  jwt.NewNumericDate(now.Add(-time.Hour)),
			},
			signKey: key,
			wantErr: ErrInvalidCredential,
		},
		{
			name: "wrong signing key rejected",
			claims: jwt.Claims{
				Subject: "user-6",
				Expiry:  jwt.NewNumericDate(now.Add(time.Hour)),
			},
			signKey: []byte("a-completely-different-secret-key"),
			wantErr: ErrInvalidCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewJwtValidator(secret.New(string(key)), tt.issuer, tt.audience)
			token := signTestToken(t, tt.signKey, tt.claims)

			subject, err := v.Validate(token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
			if subject != tt.wantSub {
				t.Errorf("Validate() subject = %q, want %q", subject, tt.wantSub)
			}
		})
	}
}

func TestJwtValidator_ValidateEmptyToken(t *testing.T) {
	v := NewJwtValidator(secret.New("some-secret"), "", "")
	_, err := v.Validate("")
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Validate(\"\") error = %v, want %v", err, ErrMissingCredential)
	}
}

func TestJwtValidator_ValidateMalformedToken(t *testing.T) {
	v := NewJwtValidator(secret.New("some-secret"), "", "")
	_, err := v.Validate("not-a-jwt")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Validate(malformed) error = %v, want %v", err, ErrInvalidCredential)
	}
}
