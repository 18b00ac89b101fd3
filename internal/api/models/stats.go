package models

import "time"

// CPUStats contains system CPU statistics.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats contains system memory statistics.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// SocketStat mirrors one ioengine.Stat entry for the wire.
type SocketStat struct {
	ID          int32  `json:"id"`
	Opaque      uint64 `json:"opaque"`
	Type        string `json:"type"`
	Protocol    string `json:"protocol"`
	Read        uint64 `json:"read"`
	Write       uint64 `json:"write"`
	QueuedBytes int64  `json:"queued_bytes"`
}

// ServerStatsResponse contains server and engine runtime statistics, as
// returned by GET /stats.
type ServerStatsResponse struct {
	Uptime        string       `json:"uptime"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     time.Time    `json:"start_time"`
	CPU           CPUStats     `json:"cpu"`
	Memory        MemoryStats  `json:"memory"`
	SocketCount   int          `json:"socket_count"`
	BytesRead     uint64       `json:"bytes_read"`
	BytesWritten  uint64       `json:"bytes_written"`
	EventsEmitted uint64       `json:"events_emitted"`
	MonitorStalls uint64       `json:"monitor_stalls"`
	Sockets       []SocketStat `json:"sockets"`
}

// StatsHistoryPoint is one stats_history row on the wire, as returned by
// GET /stats/history.
type StatsHistoryPoint struct {
	CapturedAt    time.Time `json:"captured_at"`
	SocketCount   int       `json:"socket_count"`
	BytesRead     uint64    `json:"bytes_read"`
	BytesWritten  uint64    `json:"bytes_written"`
	EventsEmitted uint64    `json:"events_emitted"`
	MonitorStalls uint64    `json:"monitor_stalls"`
}

// StatsHistoryResponse wraps a time-ordered slice of history points.
type StatsHistoryResponse struct {
	Points []StatsHistoryPoint `json:"points"`
}

// MonitorResponse reports the I/O worker watchdog's health, as returned by
// GET /monitor.
type MonitorResponse struct {
	Stalls uint64 `json:"stalls"`
}
