package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[string]()
	for _, s := range []string{"A", "B", "C"} {
		require.True(t, q.Push(s))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		got, ok, closed := q.Poll()
		require.True(t, ok)
		assert.False(t, closed)
		assert.Equal(t, want, got)
	}

	_, ok, closed := q.Poll()
	assert.False(t, ok)
	assert.False(t, closed)
}

func TestQueue_CloseKeepsQueuedItems(t *testing.T) {
	q := newQueue[int]()
	q.Push(1)
	q.Close()
	q.Close()

	assert.False(t, q.Push(2), "push after close is rejected")

	v, ok, _ := q.Poll()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok, closed := q.Poll()
	assert.False(t, ok)
	assert.True(t, closed)

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait must fire once closed")
	}
}

func TestQueue_WaitWakesConsumer(t *testing.T) {
	q := newQueue[int]()
	got := make(chan int, 1)

	go func() {
		for {
			if v, ok, _ := q.Poll(); ok {
				got <- v
				return
			}
			<-q.Wait()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := newQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(p*100 + i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, q.Len())
}
