// Package subscription implements monotonic subscriptions.
//
// A monotonic subscription delivers events from a resumption point
// forward and never goes backward. When newly learned history contradicts
// what the subscriber has already seen (an event sorts before the latest
// delivered key), the subscription does not reorder. It emits one terminal
// TimeTravel message and stops; the subscriber must re-derive its state
// from a fresh start.
//
// States:
//
//	Validating ──valid──▶ Live ──key < latest──▶ TimeTravel
//	     │
//	     └──invalid──▶ TimeTravel
//
// Validation asks the store for the earliest event between the asserted
// start and the store's present. If that event sorts before the start's
// LatestEventKey, the start is invalid.
//
// A cached snapshot, when available and valid, replaces replay from zero:
// the subscription emits State and continues live after it. An invalid
// snapshot is reported for invalidation and ignored.
package subscription
