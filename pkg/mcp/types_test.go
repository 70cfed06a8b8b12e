package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDDistinguishesStringAndInt(t *testing.T) {
	intID := NewRequestID(json.RawMessage(`0`))
	strID := NewRequestID(json.RawMessage(`"0"`))

	assert.NotEqual(t, intID.Key(), strID.Key())
	assert.False(t, intID.IsString())
	assert.True(t, strID.IsString())
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, raw := range []string{`42`, `"abc"`, `"0"`, `0`} {
		id := NewRequestID(json.RawMessage(raw))
		out, err := id.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
	}
}

func TestNilRequestIDIsNotification(t *testing.T) {
	assert.True(t, NilRequestID.IsNil())
	assert.Equal(t, "", NilRequestID.Key())
}

func TestDecodeRequestAndResponse(t *testing.T) {
	req, err := Decode([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NoError(t, err)
	r, ok := req.(*Request)
	require.True(t, ok)
	assert.Equal(t, "ping", r.Method)
	assert.False(t, r.IsNotification())

	resp, err := Decode([]byte(`{"jsonrpc":"2.0","id":7,"result":{"pong":true}}`))
	require.NoError(t, err)
	rr, ok := resp.(*Response)
	require.True(t, ok)
	assert.JSONEq(t, `{"pong":true}`, string(rr.Result))
}

func TestDecodeNotification(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	r := msg.(*Request)
	assert.True(t, r.IsNotification())
}

func TestDecodeRejectsNonJSONRPC(t *testing.T) {
	_, err := Decode([]byte(`{"foo":"bar"}`))
	assert.ErrorIs(t, err, ErrNotJSONRPC)
}

func TestEncodeRewritesIDInPlace(t *testing.T) {
	resp := &Response{JSONRPC: "2.0", ID: NewRequestID(json.RawMessage(`"p-1"`)), Result: json.RawMessage(`{"pong":true}`)}
	resp.ID = NewRequestID(json.RawMessage(`7`))
	out, err := Encode(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{"pong":true}}`, string(out))
}

func TestEncodeNotificationOmitsIDMember(t *testing.T) {
	req := &Request{JSONRPC: "2.0", Method: "notifications/initialized"}
	out, err := Encode(req)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &raw))
	_, present := raw["id"]
	assert.False(t, present, "notification must not carry an id member at all, got %q", out)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(out))
}

func TestEncodeRequestKeepsIDMember(t *testing.T) {
	req := &Request{JSONRPC: "2.0", ID: IntID(7), Method: "ping"}
	out, err := Encode(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"ping"}`, string(out))
}

func TestWrapMessagePreservesRawOnDecodeFailure(t *testing.T) {
	raw := []byte(`not json`)
	msg, err := WrapMessage(raw, ClientToServer)
	require.Error(t, err)
	assert.Equal(t, raw, msg.Raw)
	assert.Nil(t, msg.Decoded)
}
