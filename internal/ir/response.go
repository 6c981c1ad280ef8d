package ir

import (
	"encoding/json"
	"fmt"
)

// Response is one record of a store response batch. It is a closed sum
// type; the concrete variants are EventResponse, OffsetsResponse,
// DiagnosticResponse and TimeTravelResponse.
type Response interface {
	responseType() string
}

// Response type discriminators as they appear on the wire.
const (
	ResponseTypeEvent      = "event"
	ResponseTypeOffsets    = "offsets"
	ResponseTypeDiagnostic = "diagnostic"
	ResponseTypeTimeTravel = "timeTravel"
)

// EventResponse carries one event. CaughtUp is only set by stores that
// report catch-up status per event (server-assisted monotonic streams).
type EventResponse struct {
	Event
	CaughtUp *bool
}

// OffsetsResponse marks the point where a stream has delivered everything
// up to Offsets. Subscriptions send it once when the backlog is drained.
type OffsetsResponse struct {
	Offsets OffsetMap `json:"offsets"`
}

// DiagnosticResponse carries a store-side warning or error that does not
// terminate the stream.
type DiagnosticResponse struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// TimeTravelResponse is sent by server-assisted monotonic subscriptions
// when the resumption point became invalid.
type TimeTravelResponse struct {
	NewStart EventKey `json:"newStart"`
}

func (EventResponse) responseType() string      { return ResponseTypeEvent }
func (OffsetsResponse) responseType() string    { return ResponseTypeOffsets }
func (DiagnosticResponse) responseType() string { return ResponseTypeDiagnostic }
func (TimeTravelResponse) responseType() string { return ResponseTypeTimeTravel }

type eventResponseWire struct {
	Type string `json:"type"`
	Event
	CaughtUp *bool `json:"caughtUp,omitempty"`
}

// MarshalJSON encodes the event flat, next to its type discriminator.
func (r EventResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventResponseWire{Type: ResponseTypeEvent, Event: r.Event, CaughtUp: r.CaughtUp})
}

// MarshalJSON adds the type discriminator.
func (r OffsetsResponse) MarshalJSON() ([]byte, error) {
	type plain OffsetsResponse
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{ResponseTypeOffsets, plain(r)})
}

// MarshalJSON adds the type discriminator.
func (r DiagnosticResponse) MarshalJSON() ([]byte, error) {
	type plain DiagnosticResponse
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{ResponseTypeDiagnostic, plain(r)})
}

// MarshalJSON adds the type discriminator.
func (r TimeTravelResponse) MarshalJSON() ([]byte, error) {
	type plain TimeTravelResponse
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{ResponseTypeTimeTravel, plain(r)})
}

// DecodeResponse decodes a single record by its "type" field.
func DecodeResponse(data []byte) (Response, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch head.Type {
	case ResponseTypeEvent:
		var w eventResponseWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode event response: %w", err)
		}
		return EventResponse{Event: w.Event, CaughtUp: w.CaughtUp}, nil
	case ResponseTypeOffsets:
		var r OffsetsResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode offsets response: %w", err)
		}
		if r.Offsets == nil {
			r.Offsets = OffsetMap{}
		}
		return r, nil
	case ResponseTypeDiagnostic:
		var r DiagnosticResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode diagnostic response: %w", err)
		}
		return r, nil
	case ResponseTypeTimeTravel:
		var r TimeTravelResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode time travel response: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("decode response: unknown type %q", head.Type)
	}
}

// DecodeResponses decodes a batch payload, which is a JSON array of
// records. A single object is accepted as a batch of one.
func DecodeResponses(payload json.RawMessage) ([]Response, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		one, oneErr := DecodeResponse(payload)
		if oneErr != nil {
			return nil, fmt.Errorf("decode response batch: %w", err)
		}
		return []Response{one}, nil
	}

	out := make([]Response, 0, len(raws))
	for i, raw := range raws {
		r, err := DecodeResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// EncodeResponses encodes a batch as a JSON array.
func EncodeResponses(rs []Response) (json.RawMessage, error) {
	if rs == nil {
		rs = []Response{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("encode response batch: %w", err)
	}
	return data, nil
}

// EventsOf returns the events contained in a batch, in batch order.
func EventsOf(rs []Response) []Event {
	var events []Event
	for _, r := range rs {
		if er, ok := r.(EventResponse); ok {
			events = append(events, er.Event)
		}
	}
	return events
}
