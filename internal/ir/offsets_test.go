package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetMap_CopyIsIndependent(t *testing.T) {
	orig := OffsetMap{"a": 1}
	cp := orig.Copy()
	cp["a"] = 5
	cp["b"] = 0

	assert.Equal(t, OffsetMap{"a": 1}, orig)
	assert.NotNil(t, OffsetMap(nil).Copy())
}

func TestOffsetMap_ContainsAndAfter(t *testing.T) {
	bound := OffsetMap{"a": 2}

	assert.True(t, bound.Contains(Event{Stream: "a", Offset: 2}))
	assert.False(t, bound.Contains(Event{Stream: "a", Offset: 3}))
	assert.False(t, bound.Contains(Event{Stream: "b", Offset: 0}), "missing stream is excluded from upper bounds")

	assert.False(t, bound.After(Event{Stream: "a", Offset: 2}))
	assert.True(t, bound.After(Event{Stream: "a", Offset: 3}))
	assert.True(t, bound.After(Event{Stream: "b", Offset: 0}), "missing stream means nothing consumed")
}

func TestOffsetMap_MergeTakesMax(t *testing.T) {
	a := OffsetMap{"x": 3, "y": 1}
	b := OffsetMap{"x": 2, "y": 4, "z": 0}

	assert.Equal(t, OffsetMap{"x": 3, "y": 4, "z": 0}, a.Merge(b))
	assert.Equal(t, OffsetMap{"x": 3, "y": 1}, a, "merge must not mutate the receiver")
}

func TestOffsetMap_EqualAndStreams(t *testing.T) {
	assert.True(t, OffsetMap(nil).Equal(OffsetMap{}))
	assert.False(t, OffsetMap{"a": 1}.Equal(OffsetMap{"a": 2}))
	assert.Equal(t, []StreamID{"a", "b", "c"}, OffsetMap{"c": 0, "a": 1, "b": 2}.Streams())
}
