package ioengine

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// resolveSockaddr turns a "host:port" string into a unix.Sockaddr plus the
// Protocol it resolved to, preferring whatever family net.ResolveIPAddr
// hands back first.
func resolveSockaddr(network, addr string) (unix.Sockaddr, Protocol, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, ProtocolUnknown, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, ProtocolUnknown, fmt.Errorf("ioengine: bad port %q: %w", portStr, err)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	ip, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, ProtocolUnknown, err
	}
	if v4 := ip.IP.To4(); v4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], v4)
		if network == "udp" {
			return sa, ProtocolUDP, nil
		}
		return sa, ProtocolTCP, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.IP.To16())
	return sa, ProtocolUDPv6, nil
}

// bindListenTCP creates a nonblocking TCP listening socket bound to addr,
// optionally with SO_REUSEPORT for one-listener-per-worker scale-out.
func bindListenTCP(addr string, reusePort bool, backlog int) (fd int, err error) {
	sa, proto, err := resolveSockaddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	domain := unix.AF_INET
	if proto == ProtocolUDPv6 {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := prepareListenSocket(fd, sa, reusePort); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if backlog <= 0 {
		backlog = 256
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func prepareListenSocket(fd int, sa unix.Sockaddr, reusePort bool) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if reusePort {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}
	return unix.Bind(fd, sa)
}

// dialTCP starts a nonblocking connect, returning the fd immediately;
// inProgress is true when the connect is still pending (EINPROGRESS), in
// which case the caller must watch write-readiness and check SO_ERROR.
func dialTCP(addr string) (fd int, inProgress bool, err error) {
	sa, proto, err := resolveSockaddr("tcp", addr)
	if err != nil {
		return -1, false, err
	}
	domain := unix.AF_INET
	if proto == ProtocolUDPv6 {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, false, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, false, err
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, nil
	}
	unix.Close(fd)
	return -1, false, err
}

// bindUDP opens a nonblocking UDP socket bound to addr (or an ephemeral
// port if addr's port is 0), for both pure listeners and outbound sockets
// that want a fixed local port.
func bindUDP(addr string) (fd int, protocol Protocol, err error) {
	sa, proto, err := resolveSockaddr("udp", addr)
	if err != nil {
		return -1, ProtocolUnknown, err
	}
	domain := unix.AF_INET
	if proto == ProtocolUDPv6 {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, ProtocolUnknown, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, ProtocolUnknown, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, ProtocolUnknown, err
	}
	return fd, proto, nil
}

// dialUDP opens a UDP socket and connects it to addr, fixing that address
// as the socket's default peer: after this, plain writes with no explicit
// destination go to addr, and datagrams from any other source are
// rejected by the kernel before the engine sees them.
func dialUDP(addr string) (fd int, protocol Protocol, err error) {
	sa, proto, err := resolveSockaddr("udp", addr)
	if err != nil {
		return -1, ProtocolUnknown, err
	}
	domain := unix.AF_INET
	if proto == ProtocolUDPv6 {
		domain = unix.AF_INET6
	}
	fd, err = unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, ProtocolUnknown, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, ProtocolUnknown, err
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, ProtocolUnknown, err
	}
	return fd, proto, nil
}

// acceptOne accepts a single pending connection from a listening fd,
// returning (-1, ...) with no error when nothing is pending.
func acceptOne(listenFD int) (fd int, sa unix.Sockaddr, err error) {
	fd, sa, err = unix.Accept(listenFD)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, sa, nil
}

// sockaddrIP renders a unix.Sockaddr's address as a bare IP string, for
// admission-control bookkeeping.
func sockaddrIP(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String()
	default:
		return ""
	}
}

// sockaddrString renders a unix.Sockaddr as a "host:port" string, for
// EventConnect/EventAccept events that carry a peer or bind address.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), itoa(a.Port))
	default:
		return ""
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// localBindPort returns the port a listening or bound fd ended up on,
// resolving an ephemeral (port 0) bind to the kernel-assigned value.
func localBindPort(fd int) int {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	default:
		return 0
	}
}

// peerAddrString resolves the remote address of a connected fd, for the
// OPEN event's Addr field on a successful outbound connect.
func peerAddrString(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

// localAddrString resolves the local bind address of fd, for the LISTEN
// socket's OPEN event.
func localAddrString(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

// getSockError reads and clears SO_ERROR, used to discover whether a
// nonblocking connect finished successfully once the fd turns writable.
func getSockError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
