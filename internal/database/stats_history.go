package database

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is one row of stats_history: an aggregate view of the engine's
// socket table plus watchdog health at a point in time.
type Snapshot struct {
	CapturedAt    time.Time
	SocketCount   int
	BytesRead     uint64
	BytesWritten  uint64
	EventsEmitted uint64
	MonitorStalls uint64
}

// InsertSnapshot records one Snapshot.
func (db *DB) InsertSnapshot(s Snapshot) error {
	_, err := db.conn.Exec(
		`INSERT INTO stats_history (captured_at, socket_count, bytes_read, bytes_written, events_emitted, monitor_stalls)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.CapturedAt.Unix(), s.SocketCount, s.BytesRead, s.BytesWritten, s.EventsEmitted, s.MonitorStalls,
	)
	if err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}
	return nil
}

// SnapshotsSince returns every snapshot captured at or after since, oldest
// first, for the /stats/history?since= admin endpoint.
func (db *DB) SnapshotsSince(since time.Time) ([]Snapshot, error) {
	rows, err := db.conn.Query(
		`SELECT captured_at, socket_count, bytes_read, bytes_written, events_emitted, monitor_stalls
		 FROM stats_history WHERE captured_at >= ? ORDER BY captured_at ASC`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query stats history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var capturedAt int64
		if err := rows.Scan(&capturedAt, &s.SocketCount, &s.BytesRead, &s.BytesWritten, &s.EventsEmitted, &s.MonitorStalls); err != nil {
			return nil, fmt.Errorf("scan stats history row: %w", err)
		}
		s.CapturedAt = time.Unix(capturedAt, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Recorder periodically snapshots an engine's aggregate stats into the
// stats_history table.
type Recorder struct {
	db       *DB
	interval time.Duration
	collect  func() Snapshot
}

// NewRecorder builds a Recorder that calls collect on each tick to build
// the Snapshot to persist; the caller supplies collect so this package
// stays decoupled from ioengine's concrete Stat type.
func NewRecorder(db *DB, interval time.Duration, collect func() Snapshot) *Recorder {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Recorder{db: db, interval: interval, collect: collect}
}

// Run blocks taking snapshots until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = r.db.InsertSnapshot(r.collect())
		}
	}
}
