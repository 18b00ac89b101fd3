// Package config provides configuration loading for the engine host using
// Viper. Configuration is loaded from YAML files with automatic environment
// variable binding.
//
// Environment variables use the IOENGINE prefix and underscore-separated
// keys:
//   - IOENGINE_ENGINE_LISTEN -> engine.listen
//   - IOENGINE_ENGINE_MAX_CONNS_PER_IP -> engine.max_conns_per_ip
//   - IOENGINE_API_ENABLED -> api.enabled
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode is the parsed form of the engine.workers setting.
type WorkersMode int

const (
	// WorkersAuto is the "auto" setting (also the fallback for bad input).
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// EngineConfig controls the socket-table I/O core itself: the engine's own
// Config, plus its admission-control knobs.
type EngineConfig struct {
	// Listen is the address the engine's primary TCP listener binds.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ListenUDP is the address a UDP listener is opened on; empty disables it.
	ListenUDP string `yaml:"listen_udp" mapstructure:"listen_udp"`
	// Workers is parsed from engine.workers but nothing in ioengined or the
	// engine reads it; the I/O worker is always exactly one goroutine per
	// engine.
	WorkersRaw string        `yaml:"workers" mapstructure:"workers"`
	Workers    WorkerSetting `yaml:"-"       mapstructure:"-"`

	EventBufferSize int  `yaml:"event_buffer_size" mapstructure:"event_buffer_size"`
	CtrlQueueDepth  int  `yaml:"ctrl_queue_depth"  mapstructure:"ctrl_queue_depth"`
	ListenBacklog   int  `yaml:"listen_backlog"    mapstructure:"listen_backlog"`
	ReusePort       bool `yaml:"reuse_port"        mapstructure:"reuse_port"`

	// MaxConnsPerIP caps concurrent accepted TCP connections from one source
	// address; 0 disables the cap.
	MaxConnsPerIP int `yaml:"max_conns_per_ip" mapstructure:"max_conns_per_ip"`

	UDPGuard UDPGuardConfig `yaml:"udp_guard" mapstructure:"udp_guard"`

	// MonitorIntervalMS is how often the watchdog checks for a stalled
	// worker, in milliseconds; 0 selects the engine package's own default.
	MonitorIntervalMS int `yaml:"monitor_interval_ms" mapstructure:"monitor_interval_ms"`
}

// UDPGuardConfig mirrors ioengine.UDPGuardConfig's three rate-limit tiers,
// kept as a standalone struct here so config stays independent of the
// ioengine package's internals.
type UDPGuardConfig struct {
	GlobalPPS        float64 `yaml:"global_pps"         mapstructure:"global_pps"`
	GlobalBurst      float64 `yaml:"global_burst"       mapstructure:"global_burst"`
	PrefixPPS        float64 `yaml:"prefix_pps"         mapstructure:"prefix_pps"`
	PrefixBurst      float64 `yaml:"prefix_burst"       mapstructure:"prefix_burst"`
	IPPPS            float64 `yaml:"ip_pps"             mapstructure:"ip_pps"`
	IPBurst          float64 `yaml:"ip_burst"           mapstructure:"ip_burst"`
	CleanupSeconds   float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"`
	MaxPrefixEntries int     `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries"`
	MaxIPEntries     int     `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// APIConfig contains the admin/observability HTTP surface settings.
//
// Note: APIKey is intentionally treated as a secret and should not be
// returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// DatabaseConfig controls the stats-history store.
type DatabaseConfig struct {
	Path               string `yaml:"path"                 mapstructure:"path"`
	SnapshotIntervalMS int    `yaml:"snapshot_interval_ms" mapstructure:"snapshot_interval_ms"`
}

// Config is the root configuration structure.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"   mapstructure:"engine"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	API      APIConfig      `yaml:"api"      mapstructure:"api"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("IOENGINE_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (IOENGINE_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
