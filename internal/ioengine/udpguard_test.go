package ioengine

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUDPGuard_NilAlwaysAllows(t *testing.T) {
	var g *udpGuard
	assert.True(t, g.allow(netip.MustParseAddr("1.2.3.4")))
}

func TestUDPGuard_PerIPBurstThenDeny(t *testing.T) {
	g := newUDPGuard(UDPGuardConfig{
		GlobalPPS: 1000, GlobalBurst: 1000,
		PrefixPPS: 1000, PrefixBurst: 1000,
		IPPPS: 1, IPBurst: 2,
		MaxPrefixEntries: 16, MaxIPEntries: 16,
	})
	addr := netip.MustParseAddr("203.0.113.5")

	assert.True(t, g.allow(addr))
	assert.True(t, g.allow(addr))
	assert.False(t, g.allow(addr), "burst of 2 should be exhausted on the 3rd packet")
}

func TestUDPGuard_DisabledTierAlwaysAllows(t *testing.T) {
	g := newUDPGuard(UDPGuardConfig{})
	addr := netip.MustParseAddr("198.51.100.1")
	for i := 0; i < 10; i++ {
		assert.True(t, g.allow(addr))
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	b := newTokenBucket(1000, 1, time.Minute, 16)
	assert.True(t, b.allow("k"))
	assert.False(t, b.allow("k"))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.allow("k"))
}
