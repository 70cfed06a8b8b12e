package secret

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringNeverPrintsPlaintext(t *testing.T) {
	s := New("s3cr3t-value")
	assert.Equal(t, "<redacted>", s.String())
	assert.Equal(t, "<redacted>", fmt.Sprintf("%v", s))
	assert.Equal(t, "s3cr3t-value", s.Reveal())
}

func TestStringMarshalJSONRedacts(t *testing.T) {
	s := New("s3cr3t-value")
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"<redacted>"`, string(out))
}

func TestStringUnmarshalJSONLoadsPlaintext(t *testing.T) {
	var s String
	require.NoError(t, json.Unmarshal([]byte(`"hunter2"`), &s))
	assert.Equal(t, "hunter2", s.Reveal())
}

func TestZeroScrubsBackingBytes(t *testing.T) {
	s := New("hunter2")
	s.Zero()
	assert.Equal(t, "", s.Reveal())
	assert.True(t, s.Empty())
}
