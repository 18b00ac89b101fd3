package ioengine

import (
	"sync/atomic"
)

// SocketStat is the monotonic per-socket counters (component J).
type SocketStat struct {
	Read  uint64
	Write uint64
	RTime int64 // not set by the read path; always 0
	WTime int64 // not set by the write paths; always 0
}

// socket is one of the fixed MaxSocket slots in the table. Only the I/O
// worker mutates fd, type transitions, the write queues, stat,
// reading/writing/closing and poller registration; producer threads touch
// only sending, udpConnecting and the dw_* fields, the last under dwLock.
type socket struct {
	id       int32 // atomic: id currently occupying the slot
	fd       int32 // -1 when none
	typ      atomic.Int32
	protocol Protocol
	opaque   atomic.Uint64

	high wbList
	low  wbList

	wbSize   int64 // total queued bytes across high+low
	warnSize int64 // next warning threshold, 0 until checkWarn first runs

	reading bool
	writing bool
	closing bool

	sending       atomic.Uint32 // (generation16<<16)|refcount16, TCP only
	udpConnecting atomic.Int32

	readSize int               // TCP read-buffer size hint (grows/shrinks)
	udpAddr  [udpAddressSize]byte // destination of a bare Send on a UDP socket, set by SetUDPDefaultPeer

	dwLock   spinlock
	dwBuffer []byte
	dwOffset int
	dwObject any

	stat SocketStat
}

func (s *socket) currentID() int32 {
	return atomic.LoadInt32(&s.id)
}

func (s *socket) setID(id int32) {
	atomic.StoreInt32(&s.id, id)
}

func (s *socket) loadType() SocketType {
	return SocketType(s.typ.Load())
}

func (s *socket) storeType(t SocketType) {
	s.typ.Store(int32(t))
}

func (s *socket) casType(from, to SocketType) bool {
	return s.typ.CompareAndSwap(int32(from), int32(to))
}

func (s *socket) loadFD() int {
	return int(atomic.LoadInt32(&s.fd))
}

func (s *socket) setFD(fd int) {
	atomic.StoreInt32(&s.fd, int32(fd))
}

// invalid reports whether s no longer refers to id — either the slot was
// recycled (generation mismatch) or the type has been retired.
func (s *socket) invalid(id int32) bool {
	return s.currentID() != id || s.loadType() == TypeInvalid
}

func (s *socket) sendBufferEmpty() bool {
	return s.high.empty() && s.low.empty()
}

// acquireSendRef implements the producer-side CAS for the sending refcount:
// a send against id only registers against sending if id's generation tag
// still matches the slot's current occupant, so a request aimed at a
// since-recycled socket is silently refused rather than corrupting the new
// occupant's refcount. A ref16 already at 0xffff busy-waits for the worker
// to make room; see DESIGN.md's "Busy-wait on sending overflow" note.
func (s *socket) acquireSendRef(id int32) bool {
	gen := idTag16(id)
	for {
		cur := s.sending.Load()
		if uint16(cur>>16) != gen {
			return false
		}
		ref := uint16(cur)
		if ref == 0xffff {
			continue
		}
		next := uint32(gen)<<16 | uint32(ref+1)
		if s.sending.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// releaseSendRef is called by the worker once it dequeues the D/P request a
// matching acquireSendRef was issued for. A generation mismatch means the
// slot was recycled since the ref was acquired — sending already belongs
// to a different socket's bookkeeping, so this is a silent no-op rather
// than decrementing someone else's refcount.
func (s *socket) releaseSendRef(id int32) {
	gen := idTag16(id)
	for {
		cur := s.sending.Load()
		if uint16(cur>>16) != gen {
			return
		}
		ref := uint16(cur)
		if ref == 0 {
			return
		}
		next := uint32(gen)<<16 | uint32(ref-1)
		if s.sending.CompareAndSwap(cur, next) {
			return
		}
	}
}

// nomoreSendingData is the close-eligibility predicate: no queued bytes,
// no in-flight direct-write buffer, and no outstanding producer-side send
// references against the current generation. A socket in HalfCloseWrite
// always qualifies, whatever is still queued or in flight.
func (s *socket) nomoreSendingData() bool {
	if s.loadType() == TypeHalfCloseWrite {
		return true
	}
	return s.sendBufferEmpty() && s.dwBuffer == nil && (s.sending.Load()&0xffff) == 0
}

// Table is the fixed-capacity socket table and id allocator (component D).
// Slots are allocated in-place; there is no heap churn per socket.
type Table struct {
	slots   [MaxSocket]socket
	allocID atomic.Uint32
}

func newTable() *Table {
	t := &Table{}
	for i := range t.slots {
		t.slots[i].storeType(TypeInvalid)
		t.slots[i].fd = -1
	}
	return t
}

func (t *Table) slot(id int32) *socket {
	return &t.slots[hashID(id)]
}

// reserveID allocates a fresh id and flips its slot from INVALID to
// RESERVE: a monotonic counter that wraps back into the 31-bit positive
// range. Up to MaxSocket ids are tried while their slots are occupied
// before giving up; losing the CAS to another allocator does not use up an
// attempt.
func (t *Table) reserveID() int32 {
	for i := 0; i < MaxSocket; i++ {
		raw := t.allocID.Add(1)
		if int32(raw) < 0 {
			raw = t.allocID.And(0x7fffffff) & 0x7fffffff
		}
		id := int32(raw)
		s := t.slot(id)
		if s.loadType() == TypeInvalid {
			if s.casType(TypeInvalid, TypeReserve) {
				s.setID(id)
				s.protocol = ProtocolUnknown
				s.udpConnecting.Store(0)
				s.fd = -1
				return id
			}
			i-- // lost the CAS to another allocator; this try does not count
		}
	}
	return -1
}

// newFD promotes a RESERVE slot to a live socket bound to fd and resets its
// per-connection state. reading records whether the caller leaves read
// interest on when it registers fd; poller registration is the caller's job.
func (t *Table) newFD(id int32, fd int, protocol Protocol, opaque uint64, reading bool) *socket {
	s := t.slot(id)
	s.setFD(fd)
	s.reading = reading
	s.writing = false
	s.closing = false
	gen := idTag16(id)
	s.sending.Store(uint32(gen) << 16)
	s.protocol = protocol
	s.readSize = MinReadBuffer
	s.udpAddr = [udpAddressSize]byte{}
	s.opaque.Store(opaque)
	s.wbSize = 0
	s.warnSize = 0
	s.high = wbList{}
	s.low = wbList{}
	s.dwBuffer = nil
	s.dwOffset = 0
	s.dwObject = nil
	s.stat = SocketStat{}
	return s
}
