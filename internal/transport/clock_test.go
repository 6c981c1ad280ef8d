package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, RequestID(0), c.Current())
	assert.Equal(t, RequestID(1), c.Next())
	assert.Equal(t, RequestID(2), c.Next())
	assert.Equal(t, RequestID(2), c.Current())

	c = NewClockAt(41)
	assert.Equal(t, RequestID(42), c.Next())
}

func TestClock_ConcurrentIDsAreUnique(t *testing.T) {
	c := NewClock()
	var mu sync.Mutex
	seen := make(map[RequestID]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := c.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
