// Package mcp provides JSON-RPC 2.0 wire types and a message envelope used
// by every transport adapter and the proxy core to carry MCP traffic.
package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes, plus the proxy-specific codes used
// for request-too-large and request-timeout responses.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRequestTimeout = -32000
)

// RequestID is an opaque JSON-RPC id that is either a string or an integer.
// It is carried as the exact original bytes so that re-encoding never loses
// information and a client's "0" (string) is never confused with 0 (number).
type RequestID struct {
	raw json.RawMessage
}

// NilRequestID is the zero value: an absent id (i.e. a notification).
var NilRequestID = RequestID{}

// NewRequestID wraps the raw JSON bytes of an id field (e.g. `7`, `"abc"`).
func NewRequestID(raw json.RawMessage) RequestID {
	if len(bytes.TrimSpace(raw)) == 0 {
		return NilRequestID
	}
	return RequestID{raw: append(json.RawMessage(nil), raw...)}
}

// StringID builds a string-typed RequestID.
func StringID(s string) RequestID {
	b, _ := json.Marshal(s)
	return RequestID{raw: b}
}

// IntID builds an integer-typed RequestID.
func IntID(n int64) RequestID {
	return RequestID{raw: []byte(fmt.Sprintf("%d", n))}
}

// IsNil reports whether this id is absent (a notification carries no id).
func (id RequestID) IsNil() bool {
	return len(id.raw) == 0
}

// IsString reports whether the id is string-typed on the wire.
func (id RequestID) IsString() bool {
	return len(id.raw) > 0 && id.raw[0] == '"'
}

// Raw returns the exact original JSON bytes of the id.
func (id RequestID) Raw() json.RawMessage {
	return append(json.RawMessage(nil), id.raw...)
}

// Key returns a comparable, type-distinguishing string suitable for use as
// a map key. Integer 0 and string "0" map to distinct keys.
func (id RequestID) Key() string {
	if id.IsNil() {
		return ""
	}
	if id.IsString() {
		return "s:" + string(id.raw)
	}
	return "n:" + string(id.raw)
}

// String renders the id for logging.
func (id RequestID) String() string {
	if id.IsNil() {
		return "<nil>"
	}
	return string(id.raw)
}

// MarshalJSON implements json.Marshaler, round-tripping the exact bytes.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "null" {
		*id = NilRequestID
		return nil
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Request is a JSON-RPC 2.0 request. A Request with a nil ID is a
// Notification per the JSON-RPC spec.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID.IsNil()
}

// requestWire is Request's wire shape for encoding only. ID is a pointer so
// the zero RequestID (a notification) is dropped by omitempty: the struct
// kind of RequestID itself is never considered empty by encoding/json, so
// putting omitempty directly on a RequestID-typed field is a no-op and a
// notification would otherwise encode as "id":null instead of omitting the
// member, which a strict JSON-RPC peer would read back as a request.
type requestWire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON implements json.Marshaler, omitting the id member entirely
// for a notification rather than encoding it as null.
func (r *Request) MarshalJSON() ([]byte, error) {
	w := requestWire{JSONRPC: r.JSONRPC, Method: r.Method, Params: r.Params}
	if !r.ID.IsNil() {
		id := r.ID
		w.ID = &id
	}
	return json.Marshal(w)
}

// Response is a JSON-RPC 2.0 response, carrying exactly one of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// ErrNotJSONRPC is returned by Decode when the payload isn't a JSON-RPC 2.0
// request or response object.
var ErrNotJSONRPC = errors.New("mcp: not a valid JSON-RPC 2.0 message")

// envelope is used only to sniff whether a payload is a request or response.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Decode parses raw bytes into either a *Request or a *Response.
// It returns ErrNotJSONRPC if the payload is syntactically valid JSON but
// is not shaped like a JSON-RPC 2.0 message.
func Decode(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("mcp: decode: %w", err)
	}
	if env.JSONRPC != "2.0" {
		return nil, ErrNotJSONRPC
	}
	switch {
	case env.Method != "":
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("mcp: decode request: %w", err)
		}
		return &req, nil
	case env.Result != nil || env.Error != nil || env.ID != nil:
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("mcp: decode response: %w", err)
		}
		return &resp, nil
	default:
		return nil, ErrNotJSONRPC
	}
}

// Encode serializes a *Request or *Response to its wire form.
func Encode(v any) ([]byte, error) {
	switch m := v.(type) {
	case *Request:
		if m.JSONRPC == "" {
			m.JSONRPC = "2.0"
		}
		return json.Marshal(m)
	case *Response:
		if m.JSONRPC == "" {
			m.JSONRPC = "2.0"
		}
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("mcp: encode: unsupported type %T", v)
	}
}

// NewResultResponse builds a successful Response.
func NewResultResponse(id RequestID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error Response.
func NewErrorResponse(id RequestID, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}
