package ioengine

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Config collects every engine-wide knob.
type Config struct {
	// EventBufferSize bounds the channel Events() returns: once full, the
	// worker blocks delivering further events, which is the engine's one
	// source of backpressure propagating back to I/O.
	EventBufferSize int
	// CtrlQueueDepth bounds the control-request channel (component E).
	CtrlQueueDepth int
	// ListenBacklog is the backlog passed to listen(2) for TCP listeners.
	ListenBacklog int
	// ReusePort enables SO_REUSEPORT on TCP listeners opened via Listen.
	ReusePort bool
	// MaxConnsPerIP caps concurrently accepted TCP connections from one
	// source address; 0 disables the cap.
	MaxConnsPerIP int
	// UDPGuard configures the three-tier datagram admission limiter; a
	// zero-value UDPGuardConfig (rate/burst 0) disables it.
	UDPGuard UDPGuardConfig
	// MonitorInterval is how often the watchdog checks for a stalled
	// worker; 0 selects a 5s default.
	MonitorInterval time.Duration
	// ObjectInterface supplies the Free callback run for a queued chunk's
	// user object. Send and SendUDP take plain []byte and attach no user
	// object, so no public call reaches it. Optional.
	ObjectInterface *ObjectInterface
	Logger          *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = 4096
	}
	if c.CtrlQueueDepth <= 0 {
		c.CtrlQueueDepth = 4096
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Engine is the socket-table I/O core: one dedicated worker goroutine owns
// every fd registered with it, all other goroutines communicate through
// Send/Close/Listen/Connect, which internally go through the direct-write
// fast path or the control pipe.
type Engine struct {
	cfg   Config
	table *Table
	pollr poller
	ctrl  *ctrlPipe
	soi   *ObjectInterface
	log   *slog.Logger

	connLimiter *connLimiter
	udpGuard    *udpGuard
	monitor     *Monitor

	events        chan Event
	done          chan struct{}
	wg            sync.WaitGroup
	stopped       atomic.Bool
	eventsEmitted atomic.Uint64

	ipByID sync.Map // int32 -> string, remote ip of each live accepted connection, for connLimiter release

	// spareFD is a pre-opened, otherwise-unused socket held in reserve so
	// acceptReady can free one fd on EMFILE/ENFILE without having to close
	// a live connection.
	spareFDMu sync.Mutex
	spareFD   int
}

// New constructs an Engine and registers its control pipe with a fresh
// poller, but does not yet start the worker goroutine; call Serve for that.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	pollr, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("ioengine: create poller: %w", err)
	}
	ctrl, err := newCtrlPipe(cfg.CtrlQueueDepth)
	if err != nil {
		pollr.close()
		return nil, fmt.Errorf("ioengine: create control pipe: %w", err)
	}
	if err := pollr.add(ctrl.readFD(), nil); err != nil {
		pollr.close()
		ctrl.close()
		return nil, fmt.Errorf("ioengine: register control pipe: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		table:       newTable(),
		pollr:       pollr,
		ctrl:        ctrl,
		soi:         cfg.ObjectInterface,
		log:         cfg.Logger,
		connLimiter: newConnLimiter(cfg.MaxConnsPerIP),
		udpGuard:    newUDPGuard(cfg.UDPGuard),
		monitor:     NewMonitor(cfg.Logger, cfg.MonitorInterval),
		events:      make(chan Event, cfg.EventBufferSize),
		done:        make(chan struct{}),
		spareFD:     -1,
	}
	if spare, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0); err == nil {
		e.spareFD = spare
	}
	return e, nil
}

// Serve starts the I/O worker and watchdog goroutines and blocks until ctx
// is cancelled, then tears both down and closes the Events channel.
func (e *Engine) Serve(ctx context.Context) error {
	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.monitor.run(monCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop()
	}()

	<-ctx.Done()
	e.stopped.Store(true)
	e.ctrl.send(ctrlRequest{kind: ctrlExit})
	e.wg.Wait()
	e.spareFDMu.Lock()
	closeFDSilently(e.spareFD)
	e.spareFD = -1
	e.spareFDMu.Unlock()
	close(e.events)
	return ctx.Err()
}

// Events returns the channel every Event is delivered on. Must be drained
// promptly: once full, the worker goroutine blocks (see Config.EventBufferSize).
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
		e.eventsEmitted.Add(1)
	case <-e.done:
	}
}

// EventsEmitted returns the cumulative count of events delivered on the
// Events channel, for the stats-history snapshot's events_emitted column.
func (e *Engine) EventsEmitted() uint64 {
	return e.eventsEmitted.Load()
}

// sendCtrl enqueues a non-exit control request, dropping it once Serve has
// begun shutting down rather than risk a send on the control pipe after
// loop has closed it.
func (e *Engine) sendCtrl(req ctrlRequest) {
	if e.stopped.Load() {
		return
	}
	e.ctrl.send(req)
}

// Listen opens a TCP listening socket on addr and registers it under a
// freshly reserved id, returning that id immediately; success/failure of
// the underlying bind/listen is synchronous since it happens before the
// socket ever reaches the worker.
func (e *Engine) Listen(addr string, opaque uint64) (int32, error) {
	id := e.table.reserveID()
	if id < 0 {
		return -1, fmt.Errorf("ioengine: socket table exhausted")
	}
	fd, err := bindListenTCP(addr, e.cfg.ReusePort, e.cfg.ListenBacklog)
	if err != nil {
		e.table.slot(id).storeType(TypeInvalid)
		return -1, err
	}
	e.sendCtrl(ctrlRequest{kind: ctrlListen, id: id, fd: fd, opaque: opaque})
	return id, nil
}

// Connect starts a nonblocking outbound TCP connection, returning the
// reserved id immediately; completion (success or failure) is reported
// asynchronously as EventConnect or EventError.
func (e *Engine) Connect(addr string, opaque uint64) (int32, error) {
	id := e.table.reserveID()
	if id < 0 {
		return -1, fmt.Errorf("ioengine: socket table exhausted")
	}
	fd, inProgress, err := dialTCP(addr)
	if err != nil {
		e.table.slot(id).storeType(TypeInvalid)
		return -1, err
	}
	e.sendCtrl(ctrlRequest{kind: ctrlOpen, id: id, fd: fd, opaque: opaque, immediate: !inProgress})
	return id, nil
}

// ListenUDP opens a bound UDP socket (possibly a pure listener, possibly
// one a caller will also Send from) and returns its id.
func (e *Engine) ListenUDP(addr string, opaque uint64) (int32, error) {
	id := e.table.reserveID()
	if id < 0 {
		return -1, fmt.Errorf("ioengine: socket table exhausted")
	}
	fd, protocol, err := bindUDP(addr)
	if err != nil {
		e.table.slot(id).storeType(TypeInvalid)
		return -1, err
	}
	e.sendCtrl(ctrlRequest{kind: ctrlAttachUDP, id: id, fd: fd, opaque: opaque, protocol: protocol})
	return id, nil
}

// DialUDP opens a UDP socket pre-connected to addr as its default peer, so
// later Send calls need not pass a destination.
func (e *Engine) DialUDP(addr string, opaque uint64) (int32, error) {
	id := e.table.reserveID()
	if id < 0 {
		return -1, fmt.Errorf("ioengine: socket table exhausted")
	}
	fd, protocol, err := dialUDP(addr)
	if err != nil {
		e.table.slot(id).storeType(TypeInvalid)
		return -1, err
	}
	e.sendCtrl(ctrlRequest{kind: ctrlDialUDP, id: id, fd: fd, opaque: opaque, protocol: protocol})
	return id, nil
}

// Close requests a socket be torn down. If force is false and the socket
// still has queued outbound data, the close is deferred until that data
// drains; force always closes immediately, discarding any queue.
func (e *Engine) Close(id int32, opaque uint64, force bool) {
	e.sendCtrl(ctrlRequest{kind: ctrlClose, id: id, opaque: opaque, shutdown: force})
}

// Pause stops delivering EventData/EventUDP for id until Resume is called,
// without affecting the write side.
func (e *Engine) Pause(id int32, opaque uint64) {
	e.sendCtrl(ctrlRequest{kind: ctrlPause, id: id, opaque: opaque})
}

// Resume promotes a freshly accepted connection (PACCEPT) or a new
// listener (PLISTEN) to CONNECTED/LISTEN and turns on read-readiness for
// it, or re-arms read-readiness for a socket stopped by Pause. BIND sockets
// are read from as soon as they are attached and need no Resume.
func (e *Engine) Resume(id int32, opaque uint64) {
	e.sendCtrl(ctrlRequest{kind: ctrlResume, id: id, opaque: opaque})
}

// Send queues data for a TCP socket at the given priority, attempting the
// direct-write fast path first (component G) before falling back to the
// control pipe for whatever the fast path couldn't absorb.
func (e *Engine) Send(id int32, data []byte, priority Priority) error {
	s := e.table.slot(id)
	if s.invalid(id) {
		return fmt.Errorf("ioengine: send to invalid socket %d", id)
	}
	if handled, rest := directWrite(e, s, id, data); handled {
		return nil
	} else if len(rest) == 0 {
		return nil
	} else {
		data = rest
	}
	if s.protocol == ProtocolTCP && !s.acquireSendRef(id) {
		return fmt.Errorf("ioengine: send to recycled socket %d", id)
	}
	kind := ctrlSendLow
	if priority == PriorityHigh {
		kind = ctrlSendHigh
	}
	e.sendCtrl(ctrlRequest{kind: kind, id: id, data: data, priority: priority})
	return nil
}

// SendUDP sends one datagram to addr from socket id, which need not be
// connected — the destination travels with each send.
func (e *Engine) SendUDP(id int32, data []byte, addr netip.AddrPort) error {
	s := e.table.slot(id)
	if s.invalid(id) {
		return fmt.Errorf("ioengine: send to invalid socket %d", id)
	}
	// The direct-write fast path and the sending refcount it depends on are
	// both TCP-only; UDP sends always go through the control pipe.
	frame := udpAddrFromAddrPort(addr)
	e.sendCtrl(ctrlRequest{kind: ctrlSendUDP, id: id, data: data, udpAddr: frame})
	return nil
}

// SetNoDelay toggles TCP_NODELAY on a connected socket.
func (e *Engine) SetNoDelay(id int32, opaque uint64, nodelay bool) {
	e.sendCtrl(ctrlRequest{kind: ctrlSetOpt, id: id, opaque: opaque, nodelay: nodelay})
}

// SetUDPDefaultPeer changes the implicit destination a bare Send (with no
// explicit address) writes a UDP socket's datagrams to.
func (e *Engine) SetUDPDefaultPeer(id int32, opaque uint64, addr netip.AddrPort) {
	e.sendCtrl(ctrlRequest{kind: ctrlSetUDPPeer, id: id, opaque: opaque, udpAddr: udpAddrFromAddrPort(addr)})
}

// Bind attaches an already-open, caller-owned fd (e.g. an inherited stdin,
// or a socket opened by code outside the engine) as a BIND-type socket.
// The engine takes ownership of fd's lifecycle from this point on.
func (e *Engine) Bind(fd int, opaque uint64) int32 {
	id := e.table.reserveID()
	if id < 0 {
		return -1
	}
	e.sendCtrl(ctrlRequest{kind: ctrlBind, id: id, fd: fd, opaque: opaque})
	return id
}

// Stat returns a point-in-time snapshot of one socket's counters.
func (e *Engine) Stat(id int32) (Stat, bool) {
	return e.table.Stat(id)
}

// AllStats returns a snapshot of every currently live socket.
func (e *Engine) AllStats() []Stat {
	return e.table.All()
}

// MonitorStalls returns the watchdog's cumulative stall count, surfaced via
// the /monitor endpoint and the stats-history snapshots.
func (e *Engine) MonitorStalls() uint64 {
	return e.monitor.Stalls()
}

func closeFDSilently(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}
