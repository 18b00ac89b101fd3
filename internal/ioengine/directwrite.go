package ioengine

import (
	"golang.org/x/sys/unix"
)

// directWrite is a fast path where a producer thread calling Send on an
// already-CONNECTED, idle TCP socket may attempt the write() itself instead
// of handing the buffer to the I/O worker, provided it wins the per-socket
// spinlock on the first try and the post-lock recheck of {id matches, no
// pending data, type == CONNECTED, udpconnecting == 0} still holds. Losing
// the race or a non-empty queue fall back to enqueueing onto the worker's
// queue via the control pipe. UDP never takes this path — the fast path and
// its sending refcount are TCP-only.
//
// A partial write is not handed back to the caller to enqueue: the remainder
// is stashed in dw_buffer/dw_offset under dwLock and a ctrlEnableWrite frame
// wakes the worker, which splices dw_* onto the head of the high queue.
// Stashing here rather than returning the remainder keeps a write that is
// already in flight ahead of anything a racing producer enqueues next.
//
// Returns true if the write was fully absorbed here — either written
// outright or stashed for the worker to pick up — false if the caller must
// still enqueue buf itself via the control pipe.
func directWrite(e *Engine, s *socket, id int32, buf []byte) (handled bool, remaining []byte) {
	if s.protocol != ProtocolTCP {
		return false, buf
	}
	if !eligibleForDirectWrite(s, id) {
		return false, buf
	}
	if !s.dwLock.tryLock() {
		return false, buf
	}

	if !eligibleForDirectWrite(s, id) {
		s.dwLock.unlock()
		return false, buf
	}

	fd := s.loadFD()
	if fd < 0 {
		s.dwLock.unlock()
		return false, buf
	}

	n, err := unix.Write(fd, buf)
	if err != nil {
		s.dwLock.unlock()
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return false, buf
		}
		// A hard write error here is reported through the normal queued
		// path so the worker can run its single error-reporting code path.
		return false, buf
	}
	if n >= len(buf) {
		s.dwLock.unlock()
		return true, nil
	}

	s.dwBuffer = append([]byte(nil), buf[n:]...)
	s.dwOffset = 0
	s.dwLock.unlock()
	e.sendCtrl(ctrlRequest{kind: ctrlEnableWrite, id: id})
	return true, nil
}

// eligibleForDirectWrite is the direct-write precondition, checked once
// before the try_lock and again after winning it (the worker may have
// spliced dw_* into high and changed state in between the two checks).
func eligibleForDirectWrite(s *socket, id int32) bool {
	return !s.invalid(id) &&
		s.sendBufferEmpty() &&
		s.dwBuffer == nil &&
		s.loadType() == TypeConnected &&
		s.udpConnecting.Load() == 0
}
