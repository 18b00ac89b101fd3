package ioengine

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrUDPAddressFamily is returned when a decoded frame's family does not
// match the socket's own protocol: caller sees an error, the frame is
// dropped.
var ErrUDPAddressFamily = errors.New("ioengine: udp address family mismatch")

// encodeUDPAddress packs family/port/ip into the wire layout: byte 0 is
// the protocol tag, bytes 1-2 are the port in network byte order,
// followed by 4 (IPv4) or 16 (IPv6) address bytes.
func encodeUDPAddress(protocol Protocol, port uint16, ip net.IP) ([udpAddressSize]byte, int) {
	var out [udpAddressSize]byte
	out[0] = byte(protocol)
	binary.BigEndian.PutUint16(out[1:3], port)
	switch protocol {
	case ProtocolUDP:
		v4 := ip.To4()
		copy(out[3:7], v4)
		return out, 7
	case ProtocolUDPv6:
		v6 := ip.To16()
		copy(out[3:19], v6)
		return out, 19
	default:
		return out, 1
	}
}

// decodeUDPAddress unpacks an encoded address frame. expected, if not
// ProtocolUnknown, must match the encoded family or ErrUDPAddressFamily is
// returned.
func decodeUDPAddress(frame [udpAddressSize]byte, expected Protocol) (Protocol, uint16, net.IP, error) {
	family := Protocol(frame[0])
	if expected != ProtocolUnknown && family != expected {
		return family, 0, nil, ErrUDPAddressFamily
	}
	port := binary.BigEndian.Uint16(frame[1:3])
	switch family {
	case ProtocolUDP:
		ip := make(net.IP, 4)
		copy(ip, frame[3:7])
		return family, port, ip, nil
	case ProtocolUDPv6:
		ip := make(net.IP, 16)
		copy(ip, frame[3:19])
		return family, port, ip, nil
	default:
		return family, 0, nil, ErrUDPAddressFamily
	}
}

// udpAddrFromAddrPort builds the on-wire frame for a netip.AddrPort,
// resolving the protocol tag from the address family.
func udpAddrFromAddrPort(ap netip.AddrPort) [udpAddressSize]byte {
	addr := ap.Addr()
	if addr.Is4() || addr.Is4In6() {
		a4 := addr.As4()
		frame, _ := encodeUDPAddress(ProtocolUDP, ap.Port(), a4[:])
		return frame
	}
	frame, _ := encodeUDPAddress(ProtocolUDPv6, ap.Port(), addr.AsSlice())
	return frame
}

// toUDPAddr converts a decoded frame into a *net.UDPAddr suitable for
// WriteToUDP/sendto.
func toUDPAddr(frame [udpAddressSize]byte, expected Protocol) (*net.UDPAddr, error) {
	_, port, ip, err := decodeUDPAddress(frame, expected)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

// sockaddrFromUDPFrame converts an encoded wire frame directly into a
// unix.Sockaddr for sendto in flushQueuedUDP, without building a
// net.UDPAddr on the way.
func sockaddrFromUDPFrame(frame [udpAddressSize]byte) (unix.Sockaddr, error) {
	family, port, ip, err := decodeUDPAddress(frame, ProtocolUnknown)
	if err != nil {
		return nil, err
	}
	switch family {
	case ProtocolUDP:
		sa := &unix.SockaddrInet4{Port: int(port)}
		copy(sa.Addr[:], ip.To4())
		return sa, nil
	case ProtocolUDPv6:
		sa := &unix.SockaddrInet6{Port: int(port)}
		copy(sa.Addr[:], ip.To16())
		return sa, nil
	default:
		return nil, ErrUDPAddressFamily
	}
}
