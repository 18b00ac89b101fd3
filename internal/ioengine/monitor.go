package ioengine

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Monitor is a watchdog on the single I/O worker goroutine, grounded on
// skynet_monitor.c: the worker bumps a version counter once per poll-loop
// iteration, and a separate goroutine periodically checks that the counter
// has actually moved. A stuck worker (a poller backend wedged in a
// syscall, a Send callback looping forever) shows up as a version that
// never changes between checks.
type Monitor struct {
	version atomic.Uint64
	seen    uint64
	stalls  atomic.Uint64
	log     *slog.Logger
	proc    *process.Process
	interval time.Duration
}

// NewMonitor builds a watchdog that logs at interval if the worker's
// version counter stalls. proc is resolved once from the running process
// so checkStall can enrich a stall warning with RSS/CPU via gopsutil.
func NewMonitor(log *slog.Logger, interval time.Duration) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &Monitor{log: log, proc: proc, interval: interval}
}

// tick is called by the worker once per poll-loop iteration.
func (m *Monitor) tick() {
	m.version.Add(1)
}

// run blocks checking for stalls until ctx is cancelled.
func (m *Monitor) run(ctx context.Context) {
	if m.interval <= 0 {
		m.interval = 5 * time.Second
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.checkStall()
		}
	}
}

// Stalls returns how many times the watchdog has observed the worker's
// version counter fail to advance between checks, for the admin /monitor
// endpoint and stats-history snapshots.
func (m *Monitor) Stalls() uint64 {
	return m.stalls.Load()
}

func (m *Monitor) checkStall() {
	cur := m.version.Load()
	if cur != m.seen {
		m.seen = cur
		return
	}
	m.stalls.Add(1)
	fields := []any{"interval", m.interval}
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			fields = append(fields, "cpu_percent", cpu)
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			fields = append(fields, "rss_bytes", mem.RSS)
		}
	}
	m.log.Warn("ioengine worker has not advanced since last check", fields...)
}
