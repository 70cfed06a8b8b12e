package mcp

import (
	"encoding/json"
	"time"
)

// Direction indicates which way a message is flowing through the proxy.
type Direction int

const (
	// ClientToServer indicates a message flowing from the frontend client
	// toward the backend MCP server.
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from the backend MCP
	// server back toward the frontend client.
	ServerToClient
)

// String returns the human-readable direction name, used in log fields.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps one decoded JSON-RPC message with proxy metadata. Raw is
// kept alongside Decoded so that well-formed-but-uninteresting messages can
// be forwarded byte-for-byte without a re-encode round trip.
type Message struct {
	// Raw holds the exact bytes received from the transport, without the
	// frame delimiter (trailing newline or SSE "data:" prefix already
	// stripped by the adapter).
	Raw []byte

	// Direction records which way this message is travelling.
	Direction Direction

	// Decoded is either *Request or *Response, or nil if decoding failed
	// (the raw bytes are still forwarded — see the framing-integrity
	// invariant).
	Decoded any

	// Timestamp records when the adapter produced this message.
	Timestamp time.Time

	// ParsedParams caches the decoded params object of a Request, set by
	// ParseParams on first use.
	ParsedParams map[string]any
}

// IsRequest reports whether this is a JSON-RPC request (a Notification is
// a Request with a nil ID; see Request.IsNotification).
func (m *Message) IsRequest() bool {
	_, ok := m.Decoded.(*Request)
	return ok
}

// IsResponse reports whether this is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	_, ok := m.Decoded.(*Response)
	return ok
}

// IsNotification reports whether this is a request carrying no id.
func (m *Message) IsNotification() bool {
	req, ok := m.Decoded.(*Request)
	return ok && req.IsNotification()
}

// Request returns the underlying *Request, or nil if this isn't one.
func (m *Message) Request() *Request {
	req, _ := m.Decoded.(*Request)
	return req
}

// Response returns the underlying *Response, or nil if this isn't one.
func (m *Message) Response() *Response {
	resp, _ := m.Decoded.(*Response)
	return resp
}

// Method returns the method name of a request, or "" otherwise.
func (m *Message) Method() string {
	req := m.Request()
	if req == nil {
		return ""
	}
	return req.Method
}

// ID returns the message's id (nil for notifications and for anything
// that failed to decode).
func (m *Message) ID() RequestID {
	if req := m.Request(); req != nil {
		return req.ID
	}
	if resp := m.Response(); resp != nil {
		return resp.ID
	}
	return NilRequestID
}

// ParseParams decodes a request's params into a generic map, caching the
// result. Safe to call repeatedly; returns nil if this isn't a request with
// object-shaped params.
func (m *Message) ParseParams() map[string]any {
	if m.ParsedParams != nil {
		return m.ParsedParams
	}
	req := m.Request()
	if req == nil || len(req.Params) == 0 {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil
	}
	m.ParsedParams = params
	return params
}

// RawID extracts the "id" field straight from Raw, bypassing Decoded. This
// is the mechanism used to reply to a message that failed structural
// decoding (e.g. to emit a parse-error response) while still preserving
// whatever id shape the client sent.
func (m *Message) RawID() json.RawMessage {
	if len(m.Raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &fields); err != nil {
		return nil
	}
	return fields["id"]
}

// Size returns the encoded length of the message in bytes, used by the
// request/response size guard.
func (m *Message) Size() int {
	return len(m.Raw)
}

// WrapMessage decodes raw bytes and wraps them with direction/timestamp
// metadata. If decoding fails, the error is returned but Raw is still
// useful to the caller for framing-error diagnostics.
func WrapMessage(raw []byte, dir Direction) (*Message, error) {
	msg := &Message{
		Raw:       append([]byte(nil), raw...),
		Direction: dir,
		Timestamp: time.Now(),
	}
	decoded, err := Decode(raw)
	if err != nil {
		return msg, err
	}
	msg.Decoded = decoded
	return msg, nil
}
