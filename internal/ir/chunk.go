package ir

import "fmt"

// Chunk is a batch of events together with the exact causal boundary
// of the events inside it.
//
// For ascending delivery LowerBound is exclusive and UpperBound inclusive;
// for descending delivery UpperBound is exclusive and LowerBound entries
// sit one below the lowest delivered offset of each stream.
type Chunk struct {
	LowerBound OffsetMap `json:"lowerBound"`
	UpperBound OffsetMap `json:"upperBound"`
	Events     []Event   `json:"events"`
}

// IsEmpty reports whether the chunk carries no events. Empty chunks are
// used purely for bookkeeping (for example to propagate "caught up").
func (c Chunk) IsEmpty() bool {
	return len(c.Events) == 0
}

// FixedStart is a caller-asserted resumption point.
type FixedStart struct {
	// From is the exclusive lower bound to resume from.
	From OffsetMap `json:"from"`

	// LatestEventKey is the highest key the caller has already consumed.
	LatestEventKey EventKey `json:"latestEventKey"`

	// Horizon optionally truncates replay: events below it are irrelevant.
	Horizon *EventKey `json:"horizon,omitempty"`
}

// BelowHorizon reports whether the key lies below the optional horizon.
func (s FixedStart) BelowHorizon(k EventKey) bool {
	return s.Horizon != nil && k.Less(*s.Horizon)
}

// Order selects the delivery order of a finite query.
type Order int

const (
	// OrderAsc delivers events by ascending EventKey.
	OrderAsc Order = iota
	// OrderDesc delivers events by descending EventKey.
	OrderDesc
	// OrderStreamAsc delivers each stream in ascending offset order with no
	// ordering guarantee across streams.
	OrderStreamAsc
)

// String returns the wire name of the order.
func (o Order) String() string {
	switch o {
	case OrderAsc:
		return "asc"
	case OrderDesc:
		return "desc"
	case OrderStreamAsc:
		return "stream-asc"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseOrder parses a wire order name.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "asc", "":
		return OrderAsc, nil
	case "desc":
		return OrderDesc, nil
	case "stream-asc":
		return OrderStreamAsc, nil
	default:
		return 0, fmt.Errorf("unknown order %q", s)
	}
}
