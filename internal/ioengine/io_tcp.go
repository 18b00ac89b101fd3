package ioengine

import (
	"io"

	"golang.org/x/sys/unix"
)

// readTCP services a read-ready event on a connected TCP socket (component
// F). The read buffer doubles (up to 256 KiB) when a read fills it and
// halves (down to MinReadBuffer) when a read uses less than half of it,
// adaptive sizing meant to avoid either a
// syscall storm on bulk transfers or a permanently oversized per-socket
// buffer.
func (e *Engine) readTCP(s *socket, id int32) {
	buf := make([]byte, s.readSize)
	n, err := unix.Read(s.loadFD(), buf)
	switch {
	case n > 0:
		if n == len(buf) && s.readSize < 256*1024 {
			s.readSize *= 2
		} else if n < len(buf)/2 && s.readSize > MinReadBuffer {
			s.readSize /= 2
		}
		s.stat.Read += uint64(n)
		e.emit(Event{Type: EventData, ID: id, Opaque: s.opaque.Load(), UD: int32(n), Data: buf[:n]})
		return
	case n == 0 || err == io.EOF:
		e.closeRead(s, id)
		return
	default:
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		e.forceClose(s, id, closeReasonError, err)
	}
}

// flushQueued drains as much of a socket's high- then low-priority write
// queues as the fd will currently accept (component F/G). Called both from
// the write-ready event path and immediately after a control-pipe send
// enqueues data the direct-write fast path couldn't absorb.
func (e *Engine) flushQueued(s *socket, id int32) {
	fd := s.loadFD()
	if fd < 0 {
		return
	}
	for _, list := range [...]*wbList{&s.high, &s.low} {
		for !list.empty() {
			head := list.head
			n, err := unix.Write(fd, head.ptr)
			if n > 0 {
				s.stat.Write += uint64(n)
				s.wbSize -= int64(n)
				head.ptr = head.ptr[n:]
			}
			if err != nil {
				if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
					e.armWrite(s)
					return
				}
				e.forceClose(s, id, closeReasonError, err)
				return
			}
			if len(head.ptr) > 0 {
				// Partial write: the low queue must never be left in this
				// state, so promote it to the (now-empty) high queue
				// before yielding back to the poller.
				if list == &s.low {
					raiseUncomplete(s)
				}
				e.armWrite(s)
				return
			}
			list.popFront()
			freeChunk(e.soi, head)
		}
	}

	if s.closing && s.nomoreSendingData() {
		e.forceClose(s, id, closeReasonLocal, nil)
		return
	}
	if s.writing {
		s.writing = false
		_ = e.pollr.enable(fd, s, s.reading, false)
	}
}

// armWrite ensures write-readiness is being watched once a queue has
// anything left in it.
func (e *Engine) armWrite(s *socket) {
	if s.writing {
		return
	}
	s.writing = true
	_ = e.pollr.enable(s.loadFD(), s, s.reading, true)
}

// enqueueWrite appends buf (or the remainder of a partially direct-written
// buf) to the requested priority queue and adds its length to wbSize. It
// does not touch write-readiness; callers arm that separately (armWrite).
func enqueueWrite(s *socket, buf []byte, userObj any, priority Priority, udpAddr *[udpAddressSize]byte) {
	w := &writeBuffer{buffer: buf, ptr: buf, userObj: userObj}
	if udpAddr != nil {
		w.isUDP = true
		w.udpAddr = *udpAddr
	}
	s.wbSize += int64(len(buf))
	if priority == PriorityHigh {
		s.high.push(w)
	} else {
		s.low.push(w)
	}
}
