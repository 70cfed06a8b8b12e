package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ApiKeyValidator checks a presented key against a fixed set of stored
// hashes, supporting both Argon2id (PHC format) and legacy bare/prefixed
// SHA-256 hex.
type ApiKeyValidator struct {
	headerName string
	hashes     []string
}

// NewApiKeyValidator builds a validator for the given header name and set
// of stored hashes.
func NewApiKeyValidator(headerName string, hashes []string) *ApiKeyValidator {
	if headerName == "" {
		headerName = "X-API-Key"
	}
	return &ApiKeyValidator{headerName: headerName, hashes: hashes}
}

// HeaderName returns the HTTP header this validator reads the key from.
func (v *ApiKeyValidator) HeaderName() string {
	return v.headerName
}

// Validate reports whether rawKey matches any configured hash.
func (v *ApiKeyValidator) Validate(rawKey string) bool {
	if rawKey == "" {
		return false
	}
	for _, stored := range v.hashes {
		if verifyKey(rawKey, stored) {
			return true
		}
	}
	return false
}

func verifyKey(rawKey, storedHash string) bool {
	switch detectHashType(storedHash) {
	case "argon2id":
		match, err := safeArgon2idCompare(rawKey, storedHash)
		return err == nil && match
	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := hashSHA256(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
	default:
		return false
	}
}

func hashSHA256(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// HashApiKey produces an Argon2id hash suitable for storing in
// ApiKeyConfig.KeyHashes, using OWASP-minimum parameters.
func HashApiKey(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, &argon2id.Params{
		Memory:      47 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func detectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
