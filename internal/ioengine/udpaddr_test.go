package ioengine

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUDPAddress_IPv4RoundTrip(t *testing.T) {
	ip := net.IPv4(192, 168, 1, 42)
	frame, n := encodeUDPAddress(ProtocolUDP, 5300, ip)
	assert.Equal(t, 7, n)

	family, port, decoded, err := decodeUDPAddress(frame, ProtocolUDP)
	require.NoError(t, err)
	assert.Equal(t, ProtocolUDP, family)
	assert.EqualValues(t, 5300, port)
	assert.True(t, decoded.Equal(ip.To4()))
}

func TestEncodeDecodeUDPAddress_IPv6RoundTrip(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	frame, n := encodeUDPAddress(ProtocolUDPv6, 53, ip)
	assert.Equal(t, 19, n)

	family, port, decoded, err := decodeUDPAddress(frame, ProtocolUDPv6)
	require.NoError(t, err)
	assert.Equal(t, ProtocolUDPv6, family)
	assert.EqualValues(t, 53, port)
	assert.True(t, decoded.Equal(ip))
}

func TestDecodeUDPAddress_FamilyMismatch(t *testing.T) {
	frame, _ := encodeUDPAddress(ProtocolUDP, 53, net.IPv4(1, 2, 3, 4))
	_, _, _, err := decodeUDPAddress(frame, ProtocolUDPv6)
	assert.ErrorIs(t, err, ErrUDPAddressFamily)
}

func TestUDPAddrFromAddrPort_AndBack(t *testing.T) {
	frame := udpAddrFromAddrPort(netip.MustParseAddrPort("10.0.0.1:9999"))
	assert.Equal(t, mustEncode(t, ProtocolUDP, 9999, net.IPv4(10, 0, 0, 1)), frame)
	addr, err := toUDPAddr(frame, ProtocolUnknown)
	require.NoError(t, err)
	assert.Equal(t, 9999, addr.Port)
	assert.True(t, addr.IP.Equal(net.IPv4(10, 0, 0, 1)))
}

func mustEncode(t *testing.T, p Protocol, port uint16, ip net.IP) [udpAddressSize]byte {
	t.Helper()
	frame, _ := encodeUDPAddress(p, port, ip)
	return frame
}
