// Package transport multiplexes many logical request/response streams over
// one duplex connection to the event store.
//
// Every logical request gets a correlation id. Requests issued while the
// connection is down are parked in a FIFO queue and replayed, in order,
// once a new connection is up. Queued requests that wait longer than
// 1.5 × RedialInterval fail with ErrDisconnected. Redials are paced so that
// two dial attempts are never closer than RedialInterval apart.
//
// Requests that were already on the wire when the connection dropped fail
// with ErrConnectionLost: replaying them could deliver payloads twice.
//
// The only error retried automatically is the store's "overloaded" service
// error, and only before the first Next of the request has been seen.
package transport
