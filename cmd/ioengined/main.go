// Command ioengined hosts a single ioengine.Engine: it binds the configured
// TCP/UDP listeners, drains the engine's event channel, runs the admin HTTP
// surface, and periodically snapshots socket-table stats into the
// stats-history database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arbourd/ioengine/internal/api"
	"github.com/arbourd/ioengine/internal/config"
	"github.com/arbourd/ioengine/internal/database"
	"github.com/arbourd/ioengine/internal/ioengine"
	"github.com/arbourd/ioengine/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath string
	listen     string
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.listen, "listen", "", "Override the engine's TCP listen address")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) {
	if f.listen != "" {
		cfg.Engine.Listen = f.listen
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(config.ResolveConfigPath(flags.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCLIOverrides(cfg, flags)

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("ioengined starting",
		"listen", cfg.Engine.Listen,
		"listen_udp", cfg.Engine.ListenUDP,
		"max_conns_per_ip", cfg.Engine.MaxConnsPerIP,
		"reuse_port", cfg.Engine.ReusePort,
	)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open stats database: %w", err)
	}
	defer db.Close()

	eng, err := ioengine.New(ioengine.Config{
		EventBufferSize: cfg.Engine.EventBufferSize,
		CtrlQueueDepth:  cfg.Engine.CtrlQueueDepth,
		ListenBacklog:   cfg.Engine.ListenBacklog,
		ReusePort:       cfg.Engine.ReusePort,
		MaxConnsPerIP:   cfg.Engine.MaxConnsPerIP,
		UDPGuard: ioengine.UDPGuardConfig{
			GlobalPPS:        cfg.Engine.UDPGuard.GlobalPPS,
			GlobalBurst:      cfg.Engine.UDPGuard.GlobalBurst,
			PrefixPPS:        cfg.Engine.UDPGuard.PrefixPPS,
			PrefixBurst:      cfg.Engine.UDPGuard.PrefixBurst,
			IPPPS:            cfg.Engine.UDPGuard.IPPPS,
			IPBurst:          cfg.Engine.UDPGuard.IPBurst,
			CleanupInterval:  time.Duration(cfg.Engine.UDPGuard.CleanupSeconds * float64(time.Second)),
			MaxPrefixEntries: cfg.Engine.UDPGuard.MaxPrefixEntries,
			MaxIPEntries:     cfg.Engine.UDPGuard.MaxIPEntries,
		},
		MonitorInterval: time.Duration(cfg.Engine.MonitorIntervalMS) * time.Millisecond,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = eng.Serve(ctx) }()
	go func() { defer wg.Done(); drainEvents(ctx, eng, logger) }()

	if _, err := eng.Listen(cfg.Engine.Listen, 0); err != nil {
		cancel()
		return fmt.Errorf("failed to bind %s: %w", cfg.Engine.Listen, err)
	}
	if cfg.Engine.ListenUDP != "" {
		if _, err := eng.ListenUDP(cfg.Engine.ListenUDP, 0); err != nil {
			logger.Error("failed to bind udp listener", "addr", cfg.Engine.ListenUDP, "err", err)
		}
	}

	recorder := database.NewRecorder(db, time.Duration(cfg.Database.SnapshotIntervalMS)*time.Millisecond, func() database.Snapshot {
		return snapshot(eng)
	})
	wg.Add(1)
	go func() { defer wg.Done(); recorder.Run(ctx) }()

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.New(cfg, logger, eng, db)
		logger.Info("admin API starting", "addr", apiSrv.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveErr := apiSrv.ListenAndServe()
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("admin API server error", "err", serveErr)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("admin API stopped")
	}

	wg.Wait()
	return nil
}

// drainEvents keeps the engine's event channel from blocking the worker
// (Config.EventBufferSize's backpressure contract): every event is logged
// at debug level and otherwise discarded, since ioengined has no
// application protocol of its own to dispatch to.
func drainEvents(ctx context.Context, eng *ioengine.Engine, logger *slog.Logger) {
	for ev := range eng.Events() {
		switch ev.Type {
		case ioengine.EventError:
			logger.Warn("socket error", "id", ev.ID, "opaque", ev.Opaque, "err", ev.Err)
		case ioengine.EventWarning:
			logger.Warn("socket backpressure", "id", ev.ID, "queued_kb", ev.UD)
		default:
			logger.Debug("socket event", "type", ev.Type, "id", ev.ID, "ud", ev.UD, "addr", ev.Addr)
		}
	}
}

func snapshot(eng *ioengine.Engine) database.Snapshot {
	stats := eng.AllStats()
	var read, written uint64
	for _, s := range stats {
		read += s.Read
		written += s.Write
	}
	return database.Snapshot{
		CapturedAt:    time.Now(),
		SocketCount:   len(stats),
		BytesRead:     read,
		BytesWritten:  written,
		EventsEmitted: eng.EventsEmitted(),
		MonitorStalls: eng.MonitorStalls(),
	}
}
