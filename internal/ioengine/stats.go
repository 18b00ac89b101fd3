package ioengine

// Stat is a point-in-time snapshot of one socket's counters, safe to read
// concurrently with the I/O worker mutating the live socket (component J).
type Stat struct {
	ID       int32
	Opaque   uint64
	Type     SocketType
	Protocol Protocol
	Read     uint64
	Write    uint64
	RTime    int64
	WTime    int64
	QueuedBytes int64
}

// Stat reads a best-effort, torn-safe snapshot of socket id. The id is
// checked both before and after copying the counters; a mismatch (the slot
// was recycled mid-read by the worker goroutine) reports ok=false rather
// than a snapshot that mixes two unrelated sockets' fields, mirroring the
// original's query_info re-check.
func (t *Table) Stat(id int32) (Stat, bool) {
	s := t.slot(id)
	if s.invalid(id) {
		return Stat{}, false
	}
	st := Stat{
		ID:          id,
		Opaque:      s.opaque.Load(),
		Type:        s.loadType(),
		Protocol:    s.protocol,
		Read:        s.stat.Read,
		Write:       s.stat.Write,
		RTime:       s.stat.RTime,
		WTime:       s.stat.WTime,
		QueuedBytes: s.wbSize,
	}
	if s.invalid(id) {
		return Stat{}, false
	}
	return st, true
}

// All returns a snapshot of every currently-live socket. Intended for the
// admin/observability surface, not the hot path — it walks the whole
// fixed-size table.
func (t *Table) All() []Stat {
	out := make([]Stat, 0, 64)
	for i := range t.slots {
		s := &t.slots[i]
		if s.loadType() == TypeInvalid {
			continue
		}
		id := s.currentID()
		if st, ok := t.Stat(id); ok {
			out = append(out, st)
		}
	}
	return out
}
