package ioengine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T, cfg Config) (*Engine, func()) {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(ctx)
	}()
	return e, func() {
		cancel()
		<-done
	}
}

func waitForEvent(t *testing.T, ch <-chan Event, want EventType, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed waiting for %v", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event type %v", want)
		}
	}
}

func TestEngine_ConnectSendEchoLoopback(t *testing.T) {
	e, stop := startEngine(t, Config{})
	defer stop()

	listenID, err := e.Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	_ = waitForEvent(t, e.Events(), EventConnect, time.Second)

	// The engine's listener only has to be live in the table here; the echo
	// peer below is a stdlib listener, so this test does not go through the
	// engine's accept path (TestEngine_AcceptDeferredUntilResume does).
	stat, ok := e.Stat(listenID)
	require.True(t, ok)
	_ = stat

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(buf[:n])
		conn.Close()
	}()
	defer ln.Close()

	connID, err := e.Connect(addr, 2)
	require.NoError(t, err)

	_ = waitForEvent(t, e.Events(), EventConnect, time.Second)
	require.NoError(t, e.Send(connID, []byte("ping"), PriorityHigh))

	ev := waitForEvent(t, e.Events(), EventData, time.Second)
	assert.Equal(t, "ping", string(ev.Data))
}

func TestEngine_EventsEmittedCounts(t *testing.T) {
	e, stop := startEngine(t, Config{})
	defer stop()

	before := e.EventsEmitted()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	_, err = e.Connect(ln.Addr().String(), 9)
	require.NoError(t, err)
	_ = waitForEvent(t, e.Events(), EventConnect, time.Second)

	assert.Greater(t, e.EventsEmitted(), before)
	assert.GreaterOrEqual(t, e.MonitorStalls(), uint64(0))
}

func TestEngine_SendToInvalidSocketErrors(t *testing.T) {
	e, stop := startEngine(t, Config{})
	defer stop()

	err := e.Send(12345, []byte("x"), PriorityHigh)
	assert.Error(t, err)
}

func TestEngine_CloseReleasesSlotForReuse(t *testing.T) {
	e, stop := startEngine(t, Config{})
	defer stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	id, err := e.Connect(ln.Addr().String(), 5)
	require.NoError(t, err)
	_ = waitForEvent(t, e.Events(), EventConnect, time.Second)

	e.Close(id, 5, true)
	_ = waitForEvent(t, e.Events(), EventClosed, time.Second)

	_, ok := e.Stat(id)
	assert.False(t, ok)
}

// TestEngine_AcceptDeferredUntilResume exercises the engine's own
// listen/accept path end to end (rather than a stdlib net.Listen peer) to
// confirm an accepted connection's reader stays disabled until the owner
// calls Resume.
func TestEngine_AcceptDeferredUntilResume(t *testing.T) {
	e, stop := startEngine(t, Config{})
	defer stop()

	listenID, err := e.Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	listenEv := waitForEvent(t, e.Events(), EventConnect, time.Second)
	require.Equal(t, listenID, listenEv.ID)
	// A new listener starts in PLISTEN and accepts nothing until resumed.
	e.Resume(listenID, 1)

	connID, err := e.Connect(listenEv.Addr, 2)
	require.NoError(t, err)

	var acceptedID int32
	gotConnect, gotAccept := false, false
	deadline := time.After(2 * time.Second)
	for !gotConnect || !gotAccept {
		select {
		case ev := <-e.Events():
			switch {
			case ev.Type == EventConnect && ev.ID == connID:
				gotConnect = true
			case ev.Type == EventAccept:
				acceptedID = ev.UD
				gotAccept = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for connect+accept")
		}
	}

	require.NoError(t, e.Send(connID, []byte("hello"), PriorityHigh))

	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %v delivered before Resume", ev.Type)
	case <-time.After(200 * time.Millisecond):
	}

	e.Resume(acceptedID, 3)
	dataEv := waitForEvent(t, e.Events(), EventData, time.Second)
	assert.Equal(t, "hello", string(dataEv.Data))
}
