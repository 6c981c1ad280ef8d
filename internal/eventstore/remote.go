package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/transport"
)

// Service ids served by the store.
const (
	ServiceOffsets            = "offsets"
	ServiceQuery              = "query"
	ServiceSubscribe          = "subscribe"
	ServiceSubscribeMonotonic = "subscribe_monotonic"
	ServicePublish            = "publish"
)

// PayloadStream is one logical response stream of raw payloads.
// *transport.ResponseStream implements it.
type PayloadStream interface {
	Recv(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// Requester opens logical request streams.
type Requester interface {
	Request(ctx context.Context, serviceID string, payload any) (PayloadStream, error)
}

// FromMultiplexer adapts a multiplexer to Requester.
func FromMultiplexer(m *transport.Multiplexer) Requester {
	return muxRequester{m: m}
}

type muxRequester struct {
	m *transport.Multiplexer
}

func (r muxRequester) Request(ctx context.Context, serviceID string, payload any) (PayloadStream, error) {
	s, err := r.m.Request(ctx, serviceID, payload)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Remote is the EventStore served over the wire protocol.
type Remote struct {
	req    Requester
	appID  string
	logger *slog.Logger
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithAppID sets the app id stamped on events returned by Persist.
func WithAppID(appID string) RemoteOption {
	return func(r *Remote) { r.appID = appID }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RemoteOption {
	return func(r *Remote) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRemote creates a remote store client.
func NewRemote(req Requester, opts ...RemoteOption) *Remote {
	r := &Remote{
		req:    req,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ EventStore          = (*Remote)(nil)
	_ MonotonicSubscriber = (*Remote)(nil)
)

type queryRequest struct {
	LowerBound ir.OffsetMap `json:"lowerBound"`
	UpperBound ir.OffsetMap `json:"upperBound"`
	Query      string       `json:"query"`
	Order      string       `json:"order"`
}

type subscribeRequest struct {
	LowerBound ir.OffsetMap `json:"lowerBound"`
	Query      string       `json:"query"`
}

type subscribeMonotonicRequest struct {
	Session        string       `json:"session"`
	Query          string       `json:"query"`
	LowerBound     ir.OffsetMap `json:"lowerBound"`
	LatestEventKey *ir.EventKey `json:"latestEventKey,omitempty"`
	Horizon        *ir.EventKey `json:"horizon,omitempty"`
}

type publishRequest struct {
	Data []ir.EventDraft `json:"data"`
}

type publishResponse struct {
	Data []struct {
		Lamport   ir.Lamport   `json:"lamport"`
		Offset    ir.Offset    `json:"offset"`
		Stream    ir.StreamID  `json:"stream"`
		Timestamp ir.Timestamp `json:"timestamp"`
	} `json:"data"`
}

// Offsets implements EventStore.
func (r *Remote) Offsets(ctx context.Context) (ir.Offsets, error) {
	var out ir.Offsets
	if err := r.unary(ctx, ServiceOffsets, nil, &out); err != nil {
		return ir.Offsets{}, err
	}
	if out.Present == nil {
		out.Present = ir.OffsetMap{}
	}
	return out, nil
}

// Query implements EventStore.
func (r *Remote) Query(ctx context.Context, lower, upper ir.OffsetMap, where ir.Where, order ir.Order) (Stream, error) {
	return r.open(ctx, ServiceQuery, queryRequest{
		LowerBound: lower.Copy(),
		UpperBound: upper.Copy(),
		Query:      where.String(),
		Order:      order.String(),
	})
}

// Subscribe implements EventStore.
func (r *Remote) Subscribe(ctx context.Context, lower ir.OffsetMap, where ir.Where) (Stream, error) {
	return r.open(ctx, ServiceSubscribe, subscribeRequest{
		LowerBound: lower.Copy(),
		Query:      where.String(),
	})
}

// SubscribeMonotonic implements MonotonicSubscriber.
func (r *Remote) SubscribeMonotonic(ctx context.Context, session string, start *ir.FixedStart, where ir.Where) (Stream, error) {
	req := subscribeMonotonicRequest{
		Session:    session,
		Query:      where.String(),
		LowerBound: ir.OffsetMap{},
	}
	if start != nil {
		key := start.LatestEventKey
		req.LowerBound = start.From.Copy()
		req.LatestEventKey = &key
		req.Horizon = start.Horizon
	}
	return r.open(ctx, ServiceSubscribeMonotonic, req)
}

// Persist implements EventStore.
func (r *Remote) Persist(ctx context.Context, drafts []ir.EventDraft) ([]ir.Event, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	var resp publishResponse
	if err := r.unary(ctx, ServicePublish, publishRequest{Data: drafts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(drafts) {
		return nil, fmt.Errorf("publish: store acknowledged %d of %d events", len(resp.Data), len(drafts))
	}

	events := make([]ir.Event, len(drafts))
	for i, meta := range resp.Data {
		events[i] = ir.Event{
			Stream:    meta.Stream,
			Offset:    meta.Offset,
			Lamport:   meta.Lamport,
			Timestamp: meta.Timestamp,
			Tags:      drafts[i].Tags,
			AppID:     r.appID,
			Payload:   drafts[i].Payload,
		}
	}
	r.logger.Debug("events persisted", "count", len(events))
	return events, nil
}

func (r *Remote) open(ctx context.Context, serviceID string, payload any) (Stream, error) {
	ps, err := r.req.Request(ctx, serviceID, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceID, err)
	}
	r.logger.Debug("stream opened", "service", serviceID)
	return &remoteStream{ps: ps, serviceID: serviceID}, nil
}

// unary sends a request whose first payload is the whole answer and waits
// for the stream to complete.
func (r *Remote) unary(ctx context.Context, serviceID string, payload, out any) error {
	ps, err := r.req.Request(ctx, serviceID, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", serviceID, err)
	}
	defer ps.Close()

	raw, err := ps.Recv(ctx)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: store completed without a response", serviceID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", serviceID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", serviceID, err)
	}

	for {
		_, err := ps.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", serviceID, err)
		}
	}
}

type remoteStream struct {
	ps        PayloadStream
	serviceID string
}

func (s *remoteStream) Recv(ctx context.Context) ([]ir.Response, error) {
	raw, err := s.ps.Recv(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := ir.DecodeResponses(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.serviceID, err)
	}
	return rs, nil
}

func (s *remoteStream) Close() error {
	return s.ps.Close()
}
