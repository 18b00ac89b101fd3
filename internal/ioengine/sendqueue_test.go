package ioengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEngine builds an Engine without starting its worker loop, for
// tests that only need direct access to methods like checkWarn; cleans up
// the poller fd, control pipe, and spare fd New opens.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{EventBufferSize: 16})
	require.NoError(t, err)
	t.Cleanup(func() {
		e.pollr.close()
		e.ctrl.close()
		closeFDSilently(e.spareFD)
	})
	return e
}

func TestWbList_PushPopFIFO(t *testing.T) {
	var l wbList
	assert.True(t, l.empty())

	a := &writeBuffer{buffer: []byte("a"), ptr: []byte("a")}
	b := &writeBuffer{buffer: []byte("b"), ptr: []byte("b")}
	l.push(a)
	l.push(b)

	assert.Same(t, a, l.popFront())
	assert.Same(t, b, l.popFront())
	assert.Nil(t, l.popFront())
	assert.True(t, l.empty())
}

func TestWbList_PushFrontSplicesAheadOfQueued(t *testing.T) {
	var l wbList
	tail := &writeBuffer{buffer: []byte("tail"), ptr: []byte("tail")}
	l.push(tail)

	stashed := &writeBuffer{buffer: []byte("stashed"), ptr: []byte("stashed")}
	l.pushFront(stashed)

	assert.Same(t, stashed, l.popFront())
	assert.Same(t, tail, l.popFront())
	assert.Nil(t, l.popFront())

	var empty wbList
	empty.pushFront(&writeBuffer{buffer: []byte("x"), ptr: []byte("x")})
	assert.False(t, empty.empty())
	assert.Same(t, empty.head, empty.tail)
}

func TestWbList_UncompleteDetectsPartialHead(t *testing.T) {
	var l wbList
	full := []byte("hello")
	l.push(&writeBuffer{buffer: full, ptr: full})
	assert.False(t, l.uncomplete())

	var partial wbList
	partial.push(&writeBuffer{buffer: full, ptr: full[2:]})
	assert.True(t, partial.uncomplete())
}

func TestCheckWarn_EmitsOncePerDoubling(t *testing.T) {
	e := newTestEngine(t)

	s := &socket{}
	s.opaque.Store(42)

	s.wbSize = warningSize + 1
	e.checkWarn(s, 7)

	ev := <-e.events
	assert.Equal(t, EventWarning, ev.Type)
	assert.EqualValues(t, 7, ev.ID)
	assert.EqualValues(t, 42, ev.Opaque)
	assert.Equal(t, int32((warningSize+1+1023)/1024), ev.UD)
	assert.Equal(t, int64(warningSize*2), s.warnSize)

	select {
	case ev := <-e.events:
		t.Fatalf("unexpected second warning: %+v", ev)
	default:
	}
}

func TestCheckWarn_SingleEnqueueCrossingMultipleThresholds(t *testing.T) {
	e := newTestEngine(t)

	s := &socket{}
	s.wbSize = warningSize*4 + 1
	e.checkWarn(s, 1)

	count := 0
	for {
		select {
		case <-e.events:
			count++
		default:
			assert.Equal(t, 3, count, "crossing warningSize, 2x and 4x must emit three warnings")
			return
		}
	}
}

func TestCheckWarn_BelowThresholdEmitsNothing(t *testing.T) {
	e := newTestEngine(t)

	s := &socket{}
	s.wbSize = warningSize - 1
	e.checkWarn(s, 1)

	select {
	case ev := <-e.events:
		t.Fatalf("unexpected warning below threshold: %+v", ev)
	default:
	}
}
