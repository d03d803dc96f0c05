// Package protocol implements the chatwire wire format: a length-prefixed
// frame carrying a JSON-encoded Request, Response, or Push envelope.
package protocol

import (
	"github.com/segmentio/encoding/json"
)

// MessageType discriminates the three envelope shapes carried in a Frame.
type MessageType uint8

const (
	// Request is sent client -> server and expects a matching Response.
	Request MessageType = 0
	// Response answers a prior Request, correlated by id.
	Response MessageType = 1
	// Push is sent server -> client with no corresponding request.
	Push MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case Request:
		return "request"
	case Response:
		return "response"
	case Push:
		return "push"
	default:
		return "unknown"
	}
}

// RPCError is the {code,message} object carried in an error Response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is the superset of fields across Request/Response/Push bodies.
// Callers decode into the fields relevant to the MessageType the frame
// carried; irrelevant fields are left at their zero value.
type Envelope struct {
	ID        uint32          `json:"id"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *RPCError       `json:"error,omitempty"`
	Push      json.RawMessage `json:"push,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Error-code constants, grounded in the original Router's error builders.
const (
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeHandlerError    = -32000
	CodeJSONShapeError  = -32001
	CodeClientDisposed  = -32099
)

// MakeRequest builds a Request envelope with the given id/method/params.
func MakeRequest(id uint32, method string, params json.RawMessage, now func() int64) Envelope {
	return Envelope{ID: id, Method: method, Params: params, Timestamp: now()}
}

// MakeResponse builds a success Response envelope correlated by id.
func MakeResponse(id uint32, result json.RawMessage, now func() int64) Envelope {
	return Envelope{ID: id, Result: result, Timestamp: now()}
}

// MakeError builds an error Response envelope correlated by id.
func MakeError(id uint32, code int, message string, now func() int64) Envelope {
	return Envelope{ID: id, Error: &RPCError{Code: code, Message: message}, Timestamp: now()}
}

// MakePush builds a Push envelope. Push envelopes always carry id 0.
func MakePush(push json.RawMessage, now func() int64) Envelope {
	return Envelope{ID: 0, Push: push, Timestamp: now()}
}

// Marshal serializes the envelope body to JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEnvelope parses a frame body into an Envelope.
func UnmarshalEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, &DecodeError{Reason: "schema_violation", Err: err}
	}
	return e, nil
}
