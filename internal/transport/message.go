package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type discriminators on the wire.
const (
	TypeRequest  = "request"
	TypeCancel   = "cancel"
	TypeNext     = "next"
	TypeComplete = "complete"
	TypeError    = "error"
)

// Error kind discriminators on the wire.
const (
	KindUnknownEndpoint = "unknownEndpoint"
	KindInternalError   = "internalError"
	KindBadRequest      = "badRequest"
	KindServiceError    = "serviceError"
)

// overloadedValue is the ServiceError value the store uses for backpressure.
const overloadedValue = "overloaded"

// Outgoing is a message sent from the client to the store:
// Request or Cancel.
type Outgoing interface {
	outgoing()
}

// Request opens a logical request stream.
type Request struct {
	RequestID RequestID
	ServiceID string
	Payload   json.RawMessage
}

// Cancel aborts an open request stream.
type Cancel struct {
	RequestID RequestID
}

func (Request) outgoing() {}
func (Cancel) outgoing()  {}

// Incoming is a message sent from the store to the client:
// Next, Complete or Error.
type Incoming interface {
	incoming()
	ID() RequestID
}

// Next carries one response payload.
type Next struct {
	RequestID RequestID
	Payload   json.RawMessage
}

// Complete ends a request stream successfully.
type Complete struct {
	RequestID RequestID
}

// Error ends a request stream with a failure.
type Error struct {
	RequestID RequestID
	Kind      ErrorKind
}

func (Next) incoming()     {}
func (Complete) incoming() {}
func (Error) incoming()    {}

// ID returns the correlation id.
func (m Next) ID() RequestID { return m.RequestID }

// ID returns the correlation id.
func (m Complete) ID() RequestID { return m.RequestID }

// ID returns the correlation id.
func (m Error) ID() RequestID { return m.RequestID }

// ErrorKind describes why the store failed a request:
// UnknownEndpoint, InternalError, BadRequest or ServiceError.
type ErrorKind interface {
	kind() string
	String() string
}

// UnknownEndpoint means the service id is not served by the store.
type UnknownEndpoint struct {
	Endpoint       string
	ValidEndpoints []string
}

// InternalError means the store failed on its own.
type InternalError struct{}

// BadRequest means the payload was rejected.
type BadRequest struct {
	Message string
}

// ServiceError carries a service-specific error value.
type ServiceError struct {
	Value json.RawMessage
}

func (UnknownEndpoint) kind() string { return KindUnknownEndpoint }
func (InternalError) kind() string   { return KindInternalError }
func (BadRequest) kind() string      { return KindBadRequest }
func (ServiceError) kind() string    { return KindServiceError }

func (k UnknownEndpoint) String() string {
	return fmt.Sprintf("unknown endpoint %q (valid: %v)", k.Endpoint, k.ValidEndpoints)
}

func (InternalError) String() string { return "internal error" }

func (k BadRequest) String() string { return "bad request: " + k.Message }

func (k ServiceError) String() string { return "service error: " + string(k.Value) }

// Overloaded reports whether the service error signals backpressure.
func (k ServiceError) Overloaded() bool {
	var s string
	return json.Unmarshal(k.Value, &s) == nil && s == overloadedValue
}

// wireMessage is the flat JSON shape shared by all message types.
type wireMessage struct {
	Type      string          `json:"type"`
	RequestID RequestID       `json:"requestId"`
	ServiceID string          `json:"serviceId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Kind      *wireKind       `json:"kind,omitempty"`
}

type wireKind struct {
	Type           string          `json:"type"`
	Endpoint       string          `json:"endpoint,omitempty"`
	ValidEndpoints []string        `json:"validEndpoints,omitempty"`
	Message        string          `json:"message,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
}

var errMissingType = errors.New("message has no type")

// EncodeOutgoing serializes a client message.
func EncodeOutgoing(m Outgoing) ([]byte, error) {
	switch m := m.(type) {
	case Request:
		payload := m.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		return json.Marshal(wireMessage{Type: TypeRequest, RequestID: m.RequestID, ServiceID: m.ServiceID, Payload: payload})
	case Cancel:
		return json.Marshal(wireMessage{Type: TypeCancel, RequestID: m.RequestID})
	default:
		return nil, fmt.Errorf("unsupported outgoing message %T", m)
	}
}

// DecodeOutgoing parses a client message. Used by store-side code and
// test servers.
func DecodeOutgoing(data []byte) (Outgoing, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch w.Type {
	case TypeRequest:
		return Request{RequestID: w.RequestID, ServiceID: w.ServiceID, Payload: w.Payload}, nil
	case TypeCancel:
		return Cancel{RequestID: w.RequestID}, nil
	case "":
		return nil, errMissingType
	default:
		return nil, fmt.Errorf("unknown outgoing message type %q", w.Type)
	}
}

// EncodeIncoming serializes a store message.
func EncodeIncoming(m Incoming) ([]byte, error) {
	switch m := m.(type) {
	case Next:
		payload := m.Payload
		if len(payload) == 0 {
			payload = json.RawMessage("[]")
		}
		return json.Marshal(wireMessage{Type: TypeNext, RequestID: m.RequestID, Payload: payload})
	case Complete:
		return json.Marshal(wireMessage{Type: TypeComplete, RequestID: m.RequestID})
	case Error:
		k, err := encodeKind(m.Kind)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireMessage{Type: TypeError, RequestID: m.RequestID, Kind: k})
	default:
		return nil, fmt.Errorf("unsupported incoming message %T", m)
	}
}

// DecodeIncoming parses a store message into its typed variant.
func DecodeIncoming(data []byte) (Incoming, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch w.Type {
	case TypeNext:
		return Next{RequestID: w.RequestID, Payload: w.Payload}, nil
	case TypeComplete:
		return Complete{RequestID: w.RequestID}, nil
	case TypeError:
		if w.Kind == nil {
			return nil, fmt.Errorf("error message %d has no kind", w.RequestID)
		}
		k, err := decodeKind(*w.Kind)
		if err != nil {
			return nil, err
		}
		return Error{RequestID: w.RequestID, Kind: k}, nil
	case "":
		return nil, errMissingType
	default:
		return nil, fmt.Errorf("unknown incoming message type %q", w.Type)
	}
}

func encodeKind(k ErrorKind) (*wireKind, error) {
	switch k := k.(type) {
	case UnknownEndpoint:
		return &wireKind{Type: KindUnknownEndpoint, Endpoint: k.Endpoint, ValidEndpoints: k.ValidEndpoints}, nil
	case InternalError:
		return &wireKind{Type: KindInternalError}, nil
	case BadRequest:
		return &wireKind{Type: KindBadRequest, Message: k.Message}, nil
	case ServiceError:
		return &wireKind{Type: KindServiceError, Value: k.Value}, nil
	default:
		return nil, fmt.Errorf("unsupported error kind %T", k)
	}
}

func decodeKind(w wireKind) (ErrorKind, error) {
	switch w.Type {
	case KindUnknownEndpoint:
		return UnknownEndpoint{Endpoint: w.Endpoint, ValidEndpoints: w.ValidEndpoints}, nil
	case KindInternalError:
		return InternalError{}, nil
	case KindBadRequest:
		return BadRequest{Message: w.Message}, nil
	case KindServiceError:
		return ServiceError{Value: w.Value}, nil
	default:
		return nil, fmt.Errorf("unknown error kind %q", w.Type)
	}
}
