// Package jsonrpc defines the wire-level JSON-RPC 2.0 message types shared
// by every transport and by the protocol engine. Request ids are the
// string-or-integer union the wire format requires, preserved exactly
// across a decode/encode round trip.
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Version is the only JSON-RPC version this package speaks.
const Version = "2.0"

// RequestID is a string-or-integer identifier, unique per sender within a
// session, used to correlate a Response/ErrorResponse back to its Request.
type RequestID struct {
	str      string
	num      int64
	isString bool
	isSet    bool
}

// NewStringID builds a string-valued RequestID.
func NewStringID(s string) RequestID { return RequestID{str: s, isString: true, isSet: true} }

// NewNumberID builds an integer-valued RequestID.
func NewNumberID(n int64) RequestID { return RequestID{num: n, isSet: true} }

// IsZero reports whether the id was never set (a notification has no id).
func (id RequestID) IsZero() bool { return !id.isSet }

// IsString reports whether the id is string-typed.
func (id RequestID) IsString() bool { return id.isString }

// String returns a canonical representation suitable for use as a map key.
func (id RequestID) String() string {
	if !id.isSet {
		return ""
	}
	if id.isString {
		return "s:" + id.str
	}
	return fmt.Sprintf("n:%d", id.num)
}

// Int64 returns the numeric value (0 if the id is string-typed).
func (id RequestID) Int64() int64 { return id.num }

// Raw returns the id's bare value (string or int64) for JSON marshaling.
func (id RequestID) Raw() interface{} {
	if id.isString {
		return id.str
	}
	return id.num
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *RequestID) UnmarshalJSON(b []byte) error {
	var asNum int64
	if err := json.Unmarshal(b, &asNum); err == nil {
		*id = NewNumberID(asNum)
		return nil
	}
	var asFloat float64
	if err := json.Unmarshal(b, &asFloat); err == nil {
		*id = NewNumberID(int64(asFloat))
		return nil
	}
	var asStr string
	if err := json.Unmarshal(b, &asStr); err == nil {
		*id = NewStringID(asStr)
		return nil
	}
	return fmt.Errorf("jsonrpc: id must be a string or number, got %s", string(b))
}

// RelatedTaskMetaKey is the reserved _meta key associating a message with a task.
const RelatedTaskMetaKey = "mcp/relatedTask"

// Request is an outgoing or incoming JSON-RPC call expecting a Response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way message with no id and no response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a successful reply to a Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// ErrorObject carries the standard JSON-RPC error triple.
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a failed reply to a Request.
type ErrorResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      RequestID   `json:"id"`
	Error   ErrorObject `json:"error"`
}

// MessageKind tags which variant a decoded Message holds.
type MessageKind int

const (
	KindRequest MessageKind = iota
	KindNotification
	KindResponse
	KindErrorResponse
)

// Message is the tagged union of the four JSON-RPC value kinds: exactly
// one of the typed fields below is populated, selected by Kind.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Notification *Notification
	Response     *Response
	Error        *ErrorResponse
}

// Decode classifies and parses a single raw JSON-RPC value. Transports are
// trusted to deliver exactly one value per call.
func Decode(raw []byte) (*Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("jsonrpc: invalid JSON")
	}
	hasID := gjson.GetBytes(raw, "id").Exists()
	hasMethod := gjson.GetBytes(raw, "method").Exists()
	hasError := gjson.GetBytes(raw, "error").Exists()

	switch {
	case hasID && hasMethod:
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("jsonrpc: decoding request: %w", err)
		}
		return &Message{Kind: KindRequest, Request: &req}, nil
	case hasID && hasError:
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil {
			return nil, fmt.Errorf("jsonrpc: decoding error response: %w", err)
		}
		return &Message{Kind: KindErrorResponse, Error: &errResp}, nil
	case hasID:
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("jsonrpc: decoding response: %w", err)
		}
		return &Message{Kind: KindResponse, Response: &resp}, nil
	case hasMethod:
		var notif Notification
		if err := json.Unmarshal(raw, &notif); err != nil {
			return nil, fmt.Errorf("jsonrpc: decoding notification: %w", err)
		}
		return &Message{Kind: KindNotification, Notification: &notif}, nil
	default:
		return nil, fmt.Errorf("jsonrpc: message has neither id nor method")
	}
}

// Encode marshals whichever variant is set on msg.
func Encode(msg *Message) ([]byte, error) {
	switch msg.Kind {
	case KindRequest:
		return json.Marshal(msg.Request)
	case KindNotification:
		return json.Marshal(msg.Notification)
	case KindResponse:
		return json.Marshal(msg.Response)
	case KindErrorResponse:
		return json.Marshal(msg.Error)
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message kind %d", msg.Kind)
	}
}
