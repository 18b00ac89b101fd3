package ioengine

// writeBuffer is one queued chunk of outbound data. ptr is the suffix still
// to be written after a partial write; buffer keeps the whole original
// slice. A non-nil userObj is released exactly once through
// ObjectInterface.Free (see freeChunk). A UDP chunk additionally carries
// its destination address (see udpaddr.go).
type writeBuffer struct {
	next      *writeBuffer
	buffer    []byte // whole original slice; ptr shorter than it marks a partial write
	ptr       []byte // remaining unwritten suffix of buffer
	userObj   any    // non-nil when ObjectInterface.Free is called for this chunk
	udpAddr   [udpAddressSize]byte
	isUDP     bool
}

func (w *writeBuffer) size() int {
	return len(w.ptr)
}

// wbList is a singly-linked FIFO of pending write chunks for one priority.
type wbList struct {
	head, tail *writeBuffer
}

func (l *wbList) empty() bool {
	return l.head == nil
}

func (l *wbList) push(w *writeBuffer) {
	w.next = nil
	if l.head == nil {
		l.head = w
		l.tail = w
		return
	}
	l.tail.next = w
	l.tail = w
}

// pushFront splices w onto the head of the list, ahead of anything already
// queued — used to put a stashed direct-write remainder back in front of a
// racing producer's newly-enqueued data, preserving byte order.
func (l *wbList) pushFront(w *writeBuffer) {
	w.next = l.head
	if l.head == nil {
		l.tail = w
	}
	l.head = w
}

// popFront removes and returns the head chunk; the caller is responsible
// for freeing it via the object interface or letting it be GC'd.
func (l *wbList) popFront() *writeBuffer {
	w := l.head
	if w == nil {
		return nil
	}
	l.head = w.next
	if l.head == nil {
		l.tail = nil
	}
	w.next = nil
	return w
}

// uncomplete reports whether the head chunk has already been partially
// written (ptr no longer starts at buffer's first byte) — the low queue
// must never be left in this state; raiseUncomplete exists to fix it.
func (l *wbList) uncomplete() bool {
	if l.head == nil {
		return false
	}
	return len(l.head.ptr) != len(l.head.buffer)
}

// raiseUncomplete promotes a partially-sent low-priority head chunk to the
// (must be empty) high queue as its sole element, so the partial remainder
// drains before any newly-enqueued high-priority data.
func raiseUncomplete(s *socket) {
	tmp := s.low.popFront()
	if tmp == nil {
		return
	}
	s.high.head = tmp
	s.high.tail = tmp
}

// checkWarn implements the outbound-queue backpressure signal: the warning
// threshold starts at warningSize (1 MiB) and doubles every time wbSize
// crosses it, emitting one EventWarning per doubling even if a single
// enqueue jumps across several thresholds at once.
func (e *Engine) checkWarn(s *socket, id int32) {
	threshold := s.warnSize
	if threshold == 0 {
		threshold = warningSize
	}
	for s.wbSize >= threshold {
		kb := (s.wbSize + 1023) / 1024
		e.emit(Event{Type: EventWarning, ID: id, Opaque: s.opaque.Load(), UD: int32(kb)})
		threshold *= 2
	}
	s.warnSize = threshold
}

// freeList drops every chunk in the list, invoking the object interface's
// free callback for user objects. Used by forceClose so queued user
// objects are always freed, even when their bytes are discarded.
func freeList(soi *ObjectInterface, l *wbList) {
	for w := l.popFront(); w != nil; w = l.popFront() {
		freeChunk(soi, w)
	}
}

func freeChunk(soi *ObjectInterface, w *writeBuffer) {
	if w.userObj != nil && soi != nil && soi.Free != nil {
		soi.Free(w.userObj)
	}
}

// ObjectInterface holds callbacks for "user objects" carried by queued
// chunks. Only Free is called, once per chunk whose userObj is non-nil,
// when the chunk is written out or dropped; Buffer is never called, and
// Send takes a plain []byte with no object. Optional — nil skips Free.
type ObjectInterface struct {
	Buffer func(obj any) []byte
	Free   func(obj any)
}
