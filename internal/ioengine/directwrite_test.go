package ioengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestEngine_DirectWritePartialWriteStashesAndSplices forces a partial
// write on the direct-write fast path (a tiny SO_SNDBUF against a large
// payload) and checks the remainder is stashed in dw_buffer and a
// ctrlEnableWrite frame queued, rather than handed back to the caller to
// enqueue at the tail.
func TestEngine_DirectWritePartialWriteStashesAndSplices(t *testing.T) {
	e := newTestEngine(t)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetsockoptInt(fds[0], unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, fds[0], ProtocolTCP, 0, false)
	s.storeType(TypeConnected)
	require.NoError(t, e.pollr.add(fds[0], s))
	defer e.pollr.del(fds[0])

	big := make([]byte, 1<<20) // far larger than any buffer the 4096 SNDBUF allows through in one write
	handled, rest := directWrite(e, s, id, big)
	assert.True(t, handled)
	assert.Nil(t, rest)

	s.dwLock.lock()
	stashedLen := len(s.dwBuffer)
	s.dwLock.unlock()
	require.Greater(t, stashedLen, 0, "a write this much larger than SO_SNDBUF must leave a stashed remainder")

	req, ok := e.ctrl.poll()
	require.True(t, ok)
	assert.Equal(t, ctrlEnableWrite, req.kind)
	assert.Equal(t, id, req.id)

	e.dispatchCtrl(req)
	assert.Nil(t, s.dwBuffer)
	assert.Zero(t, s.dwOffset)
}

func TestEligibleForDirectWrite_RejectsWhileStashPending(t *testing.T) {
	tbl := newTable()
	id := tbl.reserveID()
	s := tbl.newFD(id, -1, ProtocolTCP, 0, false)
	s.storeType(TypeConnected)

	assert.True(t, eligibleForDirectWrite(s, id))

	s.dwBuffer = []byte("pending")
	assert.False(t, eligibleForDirectWrite(s, id), "a socket with an unspliced dw stash must not take another direct write")
}
