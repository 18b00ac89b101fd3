package ioengine

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

// readUDP services a read-ready event on a UDP socket (component F):
// one recvfrom per call, datagram plus source address forwarded verbatim
// as an EventUDP. Oversized reads are silently truncated to maxUDPPacket
// like the kernel itself would.
func (e *Engine) readUDP(s *socket, id int32) {
	buf := make([]byte, maxUDPPacket)
	n, from, err := unix.Recvfrom(s.loadFD(), buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return
		}
		e.forceClose(s, id, closeReasonError, err)
		return
	}
	udpAddr := udpFrameFromSockaddr(from, s.protocol)
	addr, _ := toUDPAddr(udpAddr, ProtocolUnknown)
	if addr != nil {
		if ap, ok := netip.AddrFromSlice(addr.IP); ok && !e.udpGuard.allow(ap) {
			return
		}
	}
	s.stat.Read += uint64(n)
	e.emit(Event{Type: EventUDP, ID: id, Opaque: s.opaque.Load(), UD: int32(n), Data: buf[:n], UDPAddr: addr})
}

// flushQueuedUDP drains a UDP socket's queues one datagram at a time:
// unlike TCP there is no partial-write carry-over, a short sendto just
// means the packet is dropped (matching kernel UDP semantics) and the
// chunk is discarded either way.
func (e *Engine) flushQueuedUDP(s *socket, id int32) {
	fd := s.loadFD()
	if fd < 0 {
		return
	}
	for _, list := range [...]*wbList{&s.high, &s.low} {
		for !list.empty() {
			head := list.popFront()
			frame := head.udpAddr
			if !head.isUDP {
				frame = s.udpAddr // bare Send: the SetUDPDefaultPeer destination
			}
			sa, err := sockaddrFromUDPFrame(frame)
			if err == nil {
				err = unix.Sendto(fd, head.ptr, 0, sa)
			} else if !head.isUDP {
				_, err = unix.Write(fd, head.ptr) // no default peer: the DialUDP peer
			}
			if err == nil {
				s.stat.Write += uint64(len(head.ptr))
			}
			freeChunk(e.soi, head)
		}
	}
	if s.writing {
		s.writing = false
		_ = e.pollr.enable(fd, s, s.reading, false)
	}
}

func udpFrameFromSockaddr(sa unix.Sockaddr, fallback Protocol) [udpAddressSize]byte {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		frame, _ := encodeUDPAddress(ProtocolUDP, uint16(a.Port), a.Addr[:])
		return frame
	case *unix.SockaddrInet6:
		frame, _ := encodeUDPAddress(ProtocolUDPv6, uint16(a.Port), a.Addr[:])
		return frame
	default:
		var frame [udpAddressSize]byte
		frame[0] = byte(fallback)
		return frame
	}
}
