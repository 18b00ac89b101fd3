package ioengine

import (
	"math"
	"net/netip"
	"sync"
	"time"
)

// udpGuard is a three-tier token bucket admission check for inbound UDP
// datagrams: a request must pass a global bucket, then a bucket keyed by
// network prefix (/24 IPv4, /64 IPv6), then a bucket keyed by the exact
// source IP. It is applied from readUDP, before an EventUDP is ever
// emitted.
type udpGuard struct {
	global *tokenBucket
	prefix *tokenBucket
	ip     *tokenBucket
}

// UDPGuardConfig mirrors the three tiers' rate/burst knobs.
type UDPGuardConfig struct {
	GlobalPPS, GlobalBurst float64
	PrefixPPS, PrefixBurst float64
	IPPPS, IPBurst         float64
	CleanupInterval        time.Duration
	MaxPrefixEntries       int
	MaxIPEntries           int
}

func newUDPGuard(cfg UDPGuardConfig) *udpGuard {
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 60 * time.Second
	}
	return &udpGuard{
		global: newTokenBucket(cfg.GlobalPPS, cfg.GlobalBurst, cleanup, 1),
		prefix: newTokenBucket(cfg.PrefixPPS, cfg.PrefixBurst, cleanup, max1(cfg.MaxPrefixEntries)),
		ip:     newTokenBucket(cfg.IPPPS, cfg.IPBurst, cleanup, max1(cfg.MaxIPEntries)),
	}
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// allow reports whether a datagram from src should be admitted. A nil
// guard (no limits configured) always allows.
func (g *udpGuard) allow(src netip.Addr) bool {
	if g == nil {
		return true
	}
	if !g.global.allow("*") {
		return false
	}
	if !g.prefix.allow(prefixKeyFromAddr(src)) {
		return false
	}
	return g.ip.allow(src.String())
}

func prefixKeyFromAddr(ip netip.Addr) string {
	if ip.Is4() || ip.Is4In6() {
		p, _ := ip.Prefix(24)
		return "v4:" + p.String()
	}
	p, _ := ip.Prefix(64)
	return "v6:" + p.String()
}

// tokenBucket is a map-of-buckets token bucket limiter keyed by an
// arbitrary string (an IP, a prefix, or "*" for a single global bucket).
type tokenBucket struct {
	rate  float64
	burst float64

	cleanupInterval time.Duration
	maxEntries      int

	mu          sync.Mutex
	lastCleanup time.Time
	lastUpdate  map[string]time.Time
	tokens      map[string]float64
}

func newTokenBucket(rate, burst float64, cleanup time.Duration, maxEntries int) *tokenBucket {
	return &tokenBucket{
		rate:            rate,
		burst:           burst,
		cleanupInterval: cleanup,
		maxEntries:      maxEntries,
		lastCleanup:     time.Now(),
		lastUpdate:      map[string]time.Time{},
		tokens:          map[string]float64{},
	}
}

func (b *tokenBucket) allow(key string) bool {
	if b == nil || b.rate <= 0 || b.burst <= 0 {
		return true
	}
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastCleanup) > b.cleanupInterval {
		b.cleanupLocked(now)
	}

	last, exists := b.lastUpdate[key]
	if !exists {
		if len(b.lastUpdate) >= b.maxEntries {
			b.cleanupLocked(now)
			if len(b.lastUpdate) >= b.maxEntries {
				return false
			}
		}
		b.lastUpdate[key] = now
		b.tokens[key] = b.burst - 1
		return true
	}

	elapsed := now.Sub(last).Seconds()
	b.lastUpdate[key] = now
	tokens := b.tokens[key]
	if elapsed > 0 {
		tokens = math.Min(b.burst, tokens+elapsed*b.rate)
	}
	if tokens >= 1 {
		b.tokens[key] = tokens - 1
		return true
	}
	b.tokens[key] = tokens
	return false
}

func (b *tokenBucket) cleanupLocked(now time.Time) {
	staleBefore := now.Add(-b.cleanupInterval)
	for k, last := range b.lastUpdate {
		if !last.After(staleBefore) {
			delete(b.lastUpdate, k)
			delete(b.tokens, k)
		}
	}
	b.lastCleanup = now
}
