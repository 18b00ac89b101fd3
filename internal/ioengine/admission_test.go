package ioengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnLimiter_CapEnforced(t *testing.T) {
	l := newConnLimiter(2)
	assert.True(t, l.tryAcquire("10.0.0.1"))
	assert.True(t, l.tryAcquire("10.0.0.1"))
	assert.False(t, l.tryAcquire("10.0.0.1"))

	l.release("10.0.0.1")
	assert.True(t, l.tryAcquire("10.0.0.1"))
}

func TestConnLimiter_DisabledWhenZero(t *testing.T) {
	l := newConnLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.tryAcquire("10.0.0.2"))
	}
}

func TestConnLimiter_TracksIndependentIPs(t *testing.T) {
	l := newConnLimiter(1)
	assert.True(t, l.tryAcquire("10.0.0.1"))
	assert.True(t, l.tryAcquire("10.0.0.2"))
	assert.False(t, l.tryAcquire("10.0.0.1"))
}
