package ioengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ForceCloseSuppressesDuplicateClosedAfterHalfCloseRead(t *testing.T) {
	e := newTestEngine(t)

	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, -1, ProtocolTCP, 7, true)
	s.storeType(TypeConnected)

	e.closeRead(s, id)
	ev := <-e.events
	require.Equal(t, EventClosed, ev.Type)
	assert.Equal(t, TypeHalfCloseRead, s.loadType())

	e.requestClose(s, id, true)
	select {
	case ev := <-e.events:
		t.Fatalf("unexpected second event closing an already half-read-closed socket: %+v", ev)
	default:
	}
	assert.Equal(t, TypeInvalid, s.loadType())
}

func TestEngine_RequestCloseDeferredKeepsHalfCloseReadType(t *testing.T) {
	e := newTestEngine(t)

	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, -1, ProtocolTCP, 7, true)
	s.storeType(TypeConnected)

	e.closeRead(s, id)
	<-e.events // EventClosed from the read-side EOF

	s.high.push(&writeBuffer{buffer: []byte("x"), ptr: []byte("x")})
	e.requestClose(s, id, false)

	assert.Equal(t, TypeHalfCloseRead, s.loadType(), "deferred close must not destroy the half-close-read marker")
	assert.True(t, s.closing)
}

func TestEngine_ForceCloseReportsRSTAfterHalfCloseRead(t *testing.T) {
	e := newTestEngine(t)

	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, -1, ProtocolTCP, 7, true)
	s.storeType(TypeConnected)

	e.closeRead(s, id)
	<-e.events // EventClosed

	e.forceClose(s, id, closeReasonError, assert.AnError)
	ev := <-e.events
	assert.Equal(t, EventRST, ev.Type)
	assert.Equal(t, assert.AnError, ev.Err)
}

func TestEngine_WriteFailureWithoutHalfCloseReadIsError(t *testing.T) {
	e := newTestEngine(t)

	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, -1, ProtocolTCP, 7, true)
	s.storeType(TypeConnected)

	e.forceClose(s, id, closeReasonError, assert.AnError)
	ev := <-e.events
	assert.Equal(t, EventError, ev.Type, "a write error with no prior half-close-read is a plain error, not RST")
}
