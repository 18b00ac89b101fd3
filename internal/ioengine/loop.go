package ioengine

import (
	"golang.org/x/sys/unix"
)

// loop is the single I/O worker goroutine (component I). Every call into
// the poller, every socket-table mutation outside of id allocation, and
// every read/write syscall happens here and only here; every other
// goroutine only ever reaches the engine through Send's direct-write
// fast path or a ctrlRequest on the control pipe.
func (e *Engine) loop() {
	events := make([]pollEvent, MaxEvent)
	stopping := false
	for {
		for {
			req, ok := e.ctrl.poll()
			if !ok {
				break
			}
			if req.kind == ctrlExit {
				stopping = true
				continue
			}
			e.dispatchCtrl(req)
		}
		if stopping {
			e.pollr.close()
			e.ctrl.close()
			close(e.done)
			return
		}

		n, err := e.pollr.wait(events)
		e.monitor.tick()
		if err != nil {
			e.log.Error("ioengine poller wait failed", "error", err)
			continue
		}
		for i := 0; i < n; i++ {
			e.dispatchEvent(events[i])
		}
	}
}

func (e *Engine) dispatchCtrl(req ctrlRequest) {
	switch req.kind {
	case ctrlListen:
		e.completeListen(req)
	case ctrlOpen:
		e.completeOpen(req)
	case ctrlAttachUDP:
		e.completeAttachUDP(req)
	case ctrlDialUDP:
		e.completeAttachUDP(req)
	case ctrlClose:
		s := e.table.slot(req.id)
		e.requestClose(s, req.id, req.shutdown)
	case ctrlSendHigh, ctrlSendLow:
		e.completeSend(req)
	case ctrlSendUDP:
		e.completeSendUDP(req)
	case ctrlSetUDPPeer:
		s := e.table.slot(req.id)
		if !s.invalid(req.id) {
			s.udpAddr = req.udpAddr
		}
	case ctrlResume:
		s := e.table.slot(req.id)
		if !s.invalid(req.id) && s.loadFD() >= 0 {
			switch s.loadType() {
			case TypePAccept:
				s.storeType(TypeConnected)
				s.reading = true
				_ = e.pollr.enable(s.loadFD(), s, true, s.writing)
			case TypePListen:
				s.storeType(TypeListen)
				s.reading = true
				_ = e.pollr.enable(s.loadFD(), s, true, false)
			case TypeHalfCloseRead:
				// reads are permanently retired once the peer's half
				// closed; Resume only re-arms the write side for those.
				_ = e.pollr.enable(s.loadFD(), s, false, s.writing)
			default:
				s.reading = true
				_ = e.pollr.enable(s.loadFD(), s, true, s.writing)
			}
		}
	case ctrlPause:
		s := e.table.slot(req.id)
		if !s.invalid(req.id) && s.loadFD() >= 0 {
			s.reading = false
			_ = e.pollr.enable(s.loadFD(), s, false, s.writing)
		}
	case ctrlEnableWrite:
		s := e.table.slot(req.id)
		if !s.invalid(req.id) {
			s.dwLock.lock()
			if s.dwBuffer != nil {
				rest := s.dwBuffer[s.dwOffset:]
				s.high.pushFront(&writeBuffer{buffer: s.dwBuffer, ptr: rest, userObj: s.dwObject})
				s.wbSize += int64(len(rest))
				s.dwBuffer = nil
				s.dwOffset = 0
				s.dwObject = nil
			}
			s.dwLock.unlock()
			e.armWrite(s)
			e.flushQueued(s, req.id)
		}
	case ctrlSetOpt:
		s := e.table.slot(req.id)
		if !s.invalid(req.id) && s.loadFD() >= 0 {
			_ = unix.SetsockoptInt(s.loadFD(), unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(req.nodelay))
		}
	case ctrlBind:
		e.completeBind(req)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// completeListen registers a freshly-bound listener as PLISTEN: accept
// readiness stays disabled until the owner calls Resume, same as an
// accepted connection starts PACCEPT until its owner resumes it.
func (e *Engine) completeListen(req ctrlRequest) {
	s := e.table.newFD(req.id, req.fd, ProtocolTCP, req.opaque, false)
	s.storeType(TypePListen)
	if err := e.pollr.add(req.fd, s); err != nil {
		closeFDSilently(req.fd)
		s.storeType(TypeInvalid)
		e.emit(Event{Type: EventError, ID: req.id, Opaque: req.opaque, Err: err})
		return
	}
	_ = e.pollr.enable(req.fd, s, false, false)
	e.emit(Event{Type: EventConnect, ID: req.id, Opaque: req.opaque,
		Addr: localAddrString(req.fd), UD: int32(localBindPort(req.fd))})
}

func (e *Engine) completeOpen(req ctrlRequest) {
	typ := TypeConnecting
	if req.immediate {
		typ = TypeConnected
	}
	s := e.table.newFD(req.id, req.fd, ProtocolTCP, req.opaque, false)
	s.storeType(typ)
	watchWrite := !req.immediate
	if err := e.pollr.add(req.fd, s); err != nil {
		closeFDSilently(req.fd)
		s.storeType(TypeInvalid)
		e.emit(Event{Type: EventError, ID: req.id, Opaque: req.opaque, Err: err})
		return
	}
	s.reading = true
	s.writing = watchWrite
	_ = e.pollr.enable(req.fd, s, true, watchWrite)
	if req.immediate {
		e.emit(Event{Type: EventConnect, ID: req.id, Opaque: req.opaque, Addr: peerAddrString(req.fd)})
	}
}

func (e *Engine) completeAttachUDP(req ctrlRequest) {
	s := e.table.newFD(req.id, req.fd, req.protocol, req.opaque, true)
	s.storeType(TypeConnected)
	if err := e.pollr.add(req.fd, s); err != nil {
		closeFDSilently(req.fd)
		s.storeType(TypeInvalid)
		e.emit(Event{Type: EventError, ID: req.id, Opaque: req.opaque, Err: err})
		return
	}
	e.emit(Event{Type: EventConnect, ID: req.id, Opaque: req.opaque, Addr: localAddrString(req.fd)})
}

func (e *Engine) completeBind(req ctrlRequest) {
	s := e.table.newFD(req.id, req.fd, ProtocolTCP, req.opaque, true)
	s.storeType(TypeBind)
	if err := e.pollr.add(req.fd, s); err != nil {
		closeFDSilently(req.fd)
		s.storeType(TypeInvalid)
		e.emit(Event{Type: EventError, ID: req.id, Opaque: req.opaque, Err: err})
		return
	}
	e.emit(Event{Type: EventConnect, ID: req.id, Opaque: req.opaque})
}

func (e *Engine) completeSend(req ctrlRequest) {
	s := e.table.slot(req.id)
	// The worker decrements the producer-side sending refcount as soon as
	// it dequeues the request the ref was acquired for, regardless of
	// whether the slot is still valid (releaseSendRef is a no-op if the
	// generation no longer matches).
	if s.protocol == ProtocolTCP {
		s.releaseSendRef(req.id)
	}
	if s.invalid(req.id) || len(req.data) == 0 {
		return
	}
	enqueueWrite(s, req.data, req.object, req.priority, nil)
	e.checkWarn(s, req.id)
	e.armWrite(s)
	if s.protocol == ProtocolTCP {
		e.flushQueued(s, req.id)
	} else {
		e.flushQueuedUDP(s, req.id)
	}
}

func (e *Engine) completeSendUDP(req ctrlRequest) {
	s := e.table.slot(req.id)
	if s.invalid(req.id) || len(req.data) == 0 {
		return
	}
	enqueueWrite(s, req.data, req.object, PriorityHigh, &req.udpAddr)
	e.armWrite(s)
	e.flushQueuedUDP(s, req.id)
}

func (e *Engine) dispatchEvent(ev pollEvent) {
	if ev.tag == nil {
		e.ctrl.drainWake()
		return
	}
	s := ev.tag
	id := s.currentID()
	if s.loadType() == TypeInvalid {
		return
	}

	switch s.loadType() {
	case TypeListen, TypePListen:
		if ev.readReady {
			e.acceptReady(s, id)
		}
	case TypeConnecting:
		if ev.writeReady || ev.errReady {
			e.completeConnect(s, id)
		}
	case TypeConnected, TypeHalfCloseRead, TypeBind:
		if ev.readReady {
			if s.protocol == ProtocolTCP {
				e.readTCP(s, id)
			} else {
				e.readUDP(s, id)
			}
		}
		if ev.writeReady && !s.invalid(id) {
			if s.protocol == ProtocolTCP {
				e.flushQueued(s, id)
			} else {
				e.flushQueuedUDP(s, id)
			}
		}
	case TypeHalfCloseWrite:
		if ev.writeReady {
			if s.protocol == ProtocolTCP {
				e.flushQueued(s, id)
			} else {
				e.flushQueuedUDP(s, id)
			}
		}
	}
}

func (e *Engine) completeConnect(s *socket, id int32) {
	fd := s.loadFD()
	if err := getSockError(fd); err != nil {
		e.forceClose(s, id, closeReasonError, err)
		return
	}
	s.storeType(TypeConnected)
	s.writing = false
	_ = e.pollr.enable(fd, s, true, false)
	e.emit(Event{Type: EventConnect, ID: id, Opaque: s.opaque.Load(), Addr: peerAddrString(fd)})
}

// acceptReady drains every pending connection on a readable listener
// (component F). FD exhaustion (EMFILE/ENFILE) is handled by sacrificing
// the engine's one pre-reserved spare fd: closing it frees one slot in the
// process's fd table, just enough to accept-then-immediately-close the
// connection that triggered the error, which is what keeps it from
// sitting at the head of the kernel's listen backlog forever. The listener
// itself is never torn down for this — only a diagnostic EventError is
// reported, as a non-fatal policy-level error.
func (e *Engine) acceptReady(listener *socket, listenID int32) {
	for {
		fd, sa, err := acceptOne(listener.loadFD())
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				e.handleAcceptFDExhaustion(listener, listenID, err)
				return
			}
			return
		}
		e.finishAccept(listener, listenID, fd, sa)
	}
}

func (e *Engine) handleAcceptFDExhaustion(listener *socket, listenID int32, cause error) {
	e.spareFDMu.Lock()
	defer e.spareFDMu.Unlock()
	if e.spareFD >= 0 {
		unix.Close(e.spareFD)
		e.spareFD = -1
	}
	if fd, _, err := acceptOne(listener.loadFD()); err == nil {
		closeFDSilently(fd)
	}
	if spare, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0); err == nil {
		e.spareFD = spare
	}
	e.log.Warn("ioengine accept hit fd exhaustion", "listen_id", listenID, "error", cause)
	e.emit(Event{Type: EventError, ID: listenID, Opaque: listener.opaque.Load(), Err: cause})
}

func (e *Engine) finishAccept(listener *socket, listenID int32, fd int, sa unix.Sockaddr) {
	ip := sockaddrIP(sa)
	if !e.connLimiter.tryAcquire(ip) {
		closeFDSilently(fd)
		return
	}
	id := e.table.reserveID()
	if id < 0 {
		e.connLimiter.release(ip)
		closeFDSilently(fd)
		return
	}
	s := e.table.newFD(id, fd, ProtocolTCP, listener.opaque.Load(), false)
	s.storeType(TypePAccept)
	if err := e.pollr.add(fd, s); err != nil {
		s.storeType(TypeInvalid)
		e.connLimiter.release(ip)
		closeFDSilently(fd)
		return
	}
	_ = e.pollr.enable(fd, s, false, false)
	e.ipByID.Store(id, ip)
	e.emit(Event{Type: EventAccept, ID: listenID, Opaque: listener.opaque.Load(), UD: id, Addr: sockaddrString(sa)})
}
