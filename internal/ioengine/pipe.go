package ioengine

import (
	"os"

	"golang.org/x/sys/unix"
)

// ctrlKind is the one-byte frame type tag for a control-pipe request.
type ctrlKind byte

const (
	ctrlResume       ctrlKind = 'R'
	ctrlPause        ctrlKind = 'S'
	ctrlBind         ctrlKind = 'B'
	ctrlListen       ctrlKind = 'L'
	ctrlClose        ctrlKind = 'K'
	ctrlOpen         ctrlKind = 'O'
	ctrlExit         ctrlKind = 'X'
	ctrlEnableWrite  ctrlKind = 'W'
	ctrlSendHigh     ctrlKind = 'D'
	ctrlSendLow      ctrlKind = 'P'
	ctrlSendUDP      ctrlKind = 'A'
	ctrlSetUDPPeer   ctrlKind = 'C'
	ctrlDialUDP      ctrlKind = 'N'
	ctrlSetOpt       ctrlKind = 'T'
	ctrlAttachUDP    ctrlKind = 'U'
)

// ctrlRequest is a control-pipe frame. Only the fields relevant to Kind are
// populated; every payload here is well under the 256-byte cap assumed for
// atomic pipe writes — except Data, whose bytes never actually cross the
// OS pipe (see ctrlPipe doc comment).
type ctrlRequest struct {
	kind     ctrlKind
	id       int32
	opaque   uint64
	shutdown bool
	fd       int
	host     string
	port     int
	protocol Protocol
	data     []byte
	object   any
	udpAddr  [udpAddressSize]byte
	priority Priority
	nodelay  bool
	maxConns int
	immediate bool
}

// ctrlPipe is the single-producer-per-call channel from arbitrary producer
// threads to the one I/O worker (component E). It is modeled as a byte
// pipe framed `[type:1][len:1][payload:len]`; this implementation keeps
// the real OS pipe, registered with the poller so the worker's blocking
// wait can be interrupted, but carries the actual typed request through a
// buffered Go channel rather than re-serializing it into pipe bytes, since
// producer and worker share one address space and a channel already gives
// the FIFO, single-frame-at-a-time delivery the byte pipe exists to
// provide. See DESIGN.md for the rationale.
type ctrlPipe struct {
	reqs   chan ctrlRequest
	wakeR  *os.File
	wakeW  *os.File
}

func newCtrlPipe(capacity int) (*ctrlPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	if err := unix.SetNonblock(int(w.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	return &ctrlPipe{
		reqs:  make(chan ctrlRequest, capacity),
		wakeR: r,
		wakeW: w,
	}, nil
}

// send enqueues a request and wakes the worker if it is blocked in
// poller.wait. Safe for concurrent use by any number of producers.
func (p *ctrlPipe) send(req ctrlRequest) {
	p.reqs <- req
	// Best-effort: a full wakeup byte buffer just means the worker is
	// already about to check the channel; losing a byte here is fine,
	// EAGAIN is the expected outcome once the pipe's small buffer fills.
	_, _ = p.wakeW.Write([]byte{0})
}

// drainWake discards pending wakeup bytes after the worker has observed
// readiness on the pipe's read end.
func (p *ctrlPipe) drainWake() {
	var buf [64]byte
	for {
		n, err := p.wakeR.Read(buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// poll returns the next queued request without blocking, or ok=false if
// the queue is currently empty.
func (p *ctrlPipe) poll() (ctrlRequest, bool) {
	select {
	case req := <-p.reqs:
		return req, true
	default:
		return ctrlRequest{}, false
	}
}

func (p *ctrlPipe) readFD() int {
	return int(p.wakeR.Fd())
}

func (p *ctrlPipe) close() {
	close(p.reqs)
	p.wakeR.Close()
	p.wakeW.Close()
}
