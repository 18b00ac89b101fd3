package ioengine

import "golang.org/x/sys/unix"

// closeReason distinguishes why a socket is being torn down, purely for the
// Event delivered to the caller.
type closeReason int

const (
	closeReasonRemote closeReason = iota // peer shut down / reset
	closeReasonLocal                     // caller-requested close, queue now drained
	closeReasonError                     // read/write syscall failure
)

// closeRead handles a TCP read() returning EOF: the peer has performed its
// half of an orderly shutdown. If our own write side
// is already gone, this is the second half and the slot is released; else
// the socket survives as half-close-read so any already-queued outbound
// data still drains.
func (e *Engine) closeRead(s *socket, id int32) {
	if s.invalid(id) {
		return
	}
	if s.loadType() == TypeHalfCloseWrite {
		e.forceClose(s, id, closeReasonRemote, nil)
		return
	}
	s.storeType(TypeHalfCloseRead)
	s.reading = false
	_ = e.pollr.enable(s.loadFD(), s, false, s.writing)
	e.emit(Event{Type: EventClosed, ID: id, Opaque: s.opaque.Load()})
}

// requestClose handles an application-initiated close (ctrlClose). A
// graceful close with data still queued defers the actual fd close until
// the queue drains — close waits for pending writes unless shutdown is
// forced; nomoreSendingData is rechecked after every subsequent successful
// flush in flushQueued.
func (e *Engine) requestClose(s *socket, id int32, force bool) {
	if s.invalid(id) {
		return
	}
	if force || s.nomoreSendingData() {
		e.forceClose(s, id, closeReasonLocal, nil)
		return
	}
	// A socket already HalfCloseRead keeps that type rather than being
	// overwritten to HalfCloseWrite: forceClose needs it intact to tell
	// whether EventClosed already fired for this id once the queue drains.
	if s.loadType() != TypeHalfCloseRead {
		s.storeType(TypeHalfCloseWrite)
	}
	s.reading = false
	s.closing = true
	_ = e.pollr.enable(s.loadFD(), s, false, true)
}

// forceClose releases the slot unconditionally: drops both write queues
// (freeing user objects via the object interface), closes the fd, removes
// it from the poller, and reports the outcome. Queued user objects are
// always freed, even on a forced close that throws their bytes away.
func (e *Engine) forceClose(s *socket, id int32, reason closeReason, cause error) {
	fd := s.loadFD()
	if fd >= 0 {
		_ = e.pollr.del(fd)
		_ = unix.Close(fd)
	}

	s.dwLock.lock()
	freeList(e.soi, &s.high)
	freeList(e.soi, &s.low)
	s.dwBuffer = nil
	s.dwOffset = 0
	s.dwObject = nil
	s.dwLock.unlock()

	if ip, ok := e.ipByID.LoadAndDelete(id); ok {
		e.connLimiter.release(ip.(string))
	}

	opaque := s.opaque.Load()
	wasHalfCloseRead := s.loadType() == TypeHalfCloseRead
	s.storeType(TypeInvalid)
	s.setFD(-1)
	s.reading = false
	s.writing = false
	s.closing = false

	switch {
	case reason == closeReasonError && wasHalfCloseRead:
		// The read side already hit EOF; a write failing on top of that is
		// a reset, not a fresh error.
		e.emit(Event{Type: EventRST, ID: id, Opaque: opaque, Err: cause})
	case reason == closeReasonError:
		e.emit(Event{Type: EventError, ID: id, Opaque: opaque, Err: cause})
	case wasHalfCloseRead:
		// EventClosed already fired when the read side hit EOF; this close
		// only releases the slot, it does not re-raise it.
	default:
		e.emit(Event{Type: EventClosed, ID: id, Opaque: opaque, Err: cause})
	}
}
