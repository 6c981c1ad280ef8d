package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// SessionGenerator creates session ids for monotonic subscriptions.
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Sessions generates time-sortable UUIDv7 session ids.
//
// Stateless and safe for concurrent use.
type UUIDv7Sessions struct{}

// Generate returns a hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Sessions) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSession returns a fresh UUIDv7 session id.
func NewSession() string {
	return UUIDv7Sessions{}.Generate()
}

// FixedSessions returns predetermined session ids in order, for tests
// and golden traces.
type FixedSessions struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedSessions creates a generator that returns ids in order.
func NewFixedSessions(ids ...string) *FixedSessions {
	return &FixedSessions{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics once all ids have been consumed, to catch a test creating more
// subscriptions than it declared.
func (g *FixedSessions) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedSessions: all session ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
