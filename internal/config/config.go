// Package config provides configuration loading and validation for the
// engine host.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/ioengined/main.go)
//  2. Environment variables (IOENGINE_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from IOENGINE_CATEGORY_SETTING format,
// e.g., IOENGINE_ENGINE_LISTEN maps to engine.listen in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding, IOENGINE_ENGINE_LISTEN -> engine.listen.
	v.SetEnvPrefix("IOENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New("failed to read config file: " + err.Error())
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.listen", "0.0.0.0:7000")
	v.SetDefault("engine.listen_udp", "")
	v.SetDefault("engine.workers", "auto")
	v.SetDefault("engine.event_buffer_size", 4096)
	v.SetDefault("engine.ctrl_queue_depth", 4096)
	v.SetDefault("engine.listen_backlog", 256)
	v.SetDefault("engine.reuse_port", false)
	v.SetDefault("engine.max_conns_per_ip", 1024)
	v.SetDefault("engine.monitor_interval_ms", 5000)

	v.SetDefault("engine.udp_guard.global_pps", 100000.0)
	v.SetDefault("engine.udp_guard.global_burst", 100000.0)
	v.SetDefault("engine.udp_guard.prefix_pps", 10000.0)
	v.SetDefault("engine.udp_guard.prefix_burst", 20000.0)
	v.SetDefault("engine.udp_guard.ip_pps", 5000.0)
	v.SetDefault("engine.udp_guard.ip_burst", 10000.0)
	v.SetDefault("engine.udp_guard.cleanup_seconds", 60.0)
	v.SetDefault("engine.udp_guard.max_prefix_entries", 16384)
	v.SetDefault("engine.udp_guard.max_ip_entries", 65536)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Admin API defaults to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")

	v.SetDefault("database.path", "stats.db")
	v.SetDefault("database.snapshot_interval_ms", 10000)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadEngineConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadDatabaseConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEngineConfig(v *viper.Viper, cfg *Config) {
	cfg.Engine.Listen = v.GetString("engine.listen")
	cfg.Engine.ListenUDP = v.GetString("engine.listen_udp")
	cfg.Engine.WorkersRaw = v.GetString("engine.workers")
	cfg.Engine.Workers = parseWorkers(cfg.Engine.WorkersRaw)
	cfg.Engine.EventBufferSize = v.GetInt("engine.event_buffer_size")
	cfg.Engine.CtrlQueueDepth = v.GetInt("engine.ctrl_queue_depth")
	cfg.Engine.ListenBacklog = v.GetInt("engine.listen_backlog")
	cfg.Engine.ReusePort = v.GetBool("engine.reuse_port")
	cfg.Engine.MaxConnsPerIP = v.GetInt("engine.max_conns_per_ip")
	cfg.Engine.MonitorIntervalMS = v.GetInt("engine.monitor_interval_ms")

	cfg.Engine.UDPGuard = UDPGuardConfig{
		GlobalPPS:        v.GetFloat64("engine.udp_guard.global_pps"),
		GlobalBurst:      v.GetFloat64("engine.udp_guard.global_burst"),
		PrefixPPS:        v.GetFloat64("engine.udp_guard.prefix_pps"),
		PrefixBurst:      v.GetFloat64("engine.udp_guard.prefix_burst"),
		IPPPS:            v.GetFloat64("engine.udp_guard.ip_pps"),
		IPBurst:          v.GetFloat64("engine.udp_guard.ip_burst"),
		CleanupSeconds:   v.GetFloat64("engine.udp_guard.cleanup_seconds"),
		MaxPrefixEntries: v.GetInt("engine.udp_guard.max_prefix_entries"),
		MaxIPEntries:     v.GetInt("engine.udp_guard.max_ip_entries"),
	}
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

func loadDatabaseConfig(v *viper.Viper, cfg *Config) {
	cfg.Database.Path = v.GetString("database.path")
	cfg.Database.SnapshotIntervalMS = v.GetInt("database.snapshot_interval_ms")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Engine.Listen == "" {
		return errors.New("engine.listen must not be empty")
	}
	if cfg.Engine.EventBufferSize <= 0 {
		cfg.Engine.EventBufferSize = 4096
	}
	if cfg.Engine.CtrlQueueDepth <= 0 {
		cfg.Engine.CtrlQueueDepth = 4096
	}
	if cfg.Engine.MonitorIntervalMS <= 0 {
		cfg.Engine.MonitorIntervalMS = 5000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "stats.db"
	}
	if cfg.Database.SnapshotIntervalMS <= 0 {
		cfg.Database.SnapshotIntervalMS = 10000
	}

	return nil
}
