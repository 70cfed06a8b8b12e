// Package secret provides SecretString, a small wrapper that keeps
// credentials (API keys, bearer tokens, passwords) out of logs and out of
// accidental JSON encoding.
package secret

import (
	"encoding/json"
	"log/slog"
)

const redacted = "<redacted>"

// String holds a sensitive value. Its zero value is an empty secret. The
// underlying bytes are held as a []byte so Zero can overwrite them in
// place; a Go string cannot be mutated after creation.
type String struct {
	value []byte
}

// New wraps s as a secret. The caller's copy of s is not modified; use
// Zero to scrub the String's own backing storage once it is no longer
// needed.
func New(s string) String {
	return String{value: []byte(s)}
}

// Reveal returns the underlying plaintext. Callers must not retain or log
// the result; it exists only to hand the value to a transport (e.g. an
// Authorization header) at the point of use.
func (s String) Reveal() string {
	return string(s.value)
}

// Empty reports whether the secret holds no value.
func (s String) Empty() bool {
	return len(s.value) == 0
}

// Zero overwrites the secret's backing bytes with zeroes. Go's garbage
// collector may have already copied the string during prior operations, so
// this reduces but does not eliminate the plaintext's lifetime in memory.
func (s *String) Zero() {
	for i := range s.value {
		s.value[i] = 0
	}
	s.value = nil
}

// String implements fmt.Stringer, so %v/%s formatting never prints the
// plaintext.
func (s String) String() string {
	return redacted
}

// MarshalJSON implements json.Marshaler, so a SecretString embedded in a
// struct never serializes its plaintext even when the struct is logged or
// dumped as JSON by accident.
func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// UnmarshalJSON implements json.Unmarshaler so secrets can still be loaded
// from config files.
func (s *String) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.value = []byte(v)
	return nil
}

// LogValue implements slog.LogValuer so a SecretString passed directly to
// a structured logging call renders as the redacted placeholder instead of
// its plaintext.
func (s String) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
