package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponses_AllVariants(t *testing.T) {
	payload := json.RawMessage(`[
		{"type":"event","lamport":7,"stream":"s1","offset":3,"timestamp":1000,"tags":["a"],"appId":"app","payload":{"n":1}},
		{"type":"event","lamport":8,"stream":"s1","offset":4,"timestamp":1001,"tags":[],"appId":"app","payload":null,"caughtUp":true},
		{"type":"offsets","offsets":{"s1":4}},
		{"type":"diagnostic","severity":"warning","message":"slow"},
		{"type":"timeTravel","newStart":{"lamport":2,"stream":"s2","offset":0}}
	]`)

	rs, err := DecodeResponses(payload)
	require.NoError(t, err)
	require.Len(t, rs, 5)

	ev, ok := rs[0].(EventResponse)
	require.True(t, ok)
	assert.Equal(t, EventKey{Lamport: 7, Stream: "s1", Offset: 3}, ev.Key())
	assert.Equal(t, []string{"a"}, ev.Tags)
	assert.JSONEq(t, `{"n":1}`, string(ev.Payload))
	assert.Nil(t, ev.CaughtUp)

	ev2 := rs[1].(EventResponse)
	require.NotNil(t, ev2.CaughtUp)
	assert.True(t, *ev2.CaughtUp)

	assert.Equal(t, OffsetsResponse{Offsets: OffsetMap{"s1": 4}}, rs[2])
	assert.Equal(t, DiagnosticResponse{Severity: "warning", Message: "slow"}, rs[3])
	assert.Equal(t, TimeTravelResponse{NewStart: EventKey{Lamport: 2, Stream: "s2"}}, rs[4])

	assert.Len(t, EventsOf(rs), 2)
}

func TestDecodeResponses_UnknownType(t *testing.T) {
	_, err := DecodeResponses(json.RawMessage(`[{"type":"bogus"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")
	assert.Contains(t, err.Error(), `unknown type "bogus"`)
}

func TestDecodeResponses_SingleObject(t *testing.T) {
	rs, err := DecodeResponses(json.RawMessage(`{"type":"offsets","offsets":{}}`))
	require.NoError(t, err)
	assert.Equal(t, []Response{OffsetsResponse{Offsets: OffsetMap{}}}, rs)
}

func TestEncodeResponses_RoundTripsThroughDecode(t *testing.T) {
	in := []Response{
		EventResponse{Event: Event{Lamport: 1, Stream: "a", Offset: 0, Tags: []string{"t"}, Payload: json.RawMessage(`1`)}},
		OffsetsResponse{Offsets: OffsetMap{"a": 0}},
	}

	payload, err := EncodeResponses(in)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"type":"event"`)
	assert.Contains(t, string(payload), `"type":"offsets"`)

	out, err := DecodeResponses(payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
