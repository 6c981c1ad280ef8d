package testutil

import (
	"sync"

	"github.com/roach88/evsync/internal/ir"
)

// LamportClock provides a thread-safe lamport clock for tests.
//
// Unlike a store's clock, LamportClock can be reset for test reuse.
// This enables the same scenario to run multiple times with identical
// lamport values.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type LamportClock struct {
	mu      sync.Mutex
	lamport ir.Lamport
}

// NewLamportClock creates a new clock starting at 0.
//
// The first call to Next() returns 1.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// Next increments and returns the next lamport value.
func (c *LamportClock) Next() ir.Lamport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lamport++
	return c.lamport
}

// Current returns the current lamport value without incrementing.
func (c *LamportClock) Current() ir.Lamport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lamport
}

// Observe merges a lamport value learned from another node: the clock
// never falls behind it.
func (c *LamportClock) Observe(l ir.Lamport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l > c.lamport {
		c.lamport = l
	}
}

// Reset resets the clock to 0.
//
// After Reset(), the next call to Next() returns 1.
func (c *LamportClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lamport = 0
}
