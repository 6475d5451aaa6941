package main

import (
	"fmt"
	"os"

	"github.com/abelbrown/refcheck/internal/config"
	"github.com/abelbrown/refcheck/internal/logging"
	"github.com/abelbrown/refcheck/internal/otel"
	"github.com/abelbrown/refcheck/internal/store"
	"github.com/abelbrown/refcheck/internal/transport"
)

// deps bundles what every verifying command needs.
type deps struct {
	cfg    *config.Config
	store  *store.Store
	client *transport.Client
	diag   *otel.Logger
	ring   *otel.RingBuffer

	eventLog *os.File
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDeps loads config, starts logging and diagnostics and opens the
// history store. Close releases everything in reverse order.
func openDeps(comp string) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.DataDir, cfg.Log.Level, version); err != nil {
		return nil, err
	}

	rt := &deps{cfg: cfg, ring: otel.NewRingBuffer(otel.DefaultRingSize)}

	f, err := os.OpenFile(cfg.EventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Warn("event log unavailable", "path", cfg.EventLogPath(), "err", err)
		rt.diag = otel.NewNullLogger()
	} else {
		rt.eventLog = f
		rt.diag = otel.NewLogger(f)
	}
	rt.diag.SetRingBuffer(rt.ring)
	rt.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: comp, Msg: version})

	rt.store, err = store.Open(cfg.DBPath())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	rt.client = transport.New(cfg.Transport())
	logging.Info("ready", "endpoint", rt.client.Endpoint(), "db", cfg.DBPath())
	return rt, nil
}

// Close flushes diagnostics and closes the store.
func (rt *deps) Close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			logging.Warn("close history", "err", err)
		}
	}
	rt.diag.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown})
	rt.diag.Close()
	if rt.eventLog != nil {
		rt.eventLog.Close()
	}
	logging.Close()
}

// pickModel resolves the --model flag against the configured models.
func (rt *deps) pickModel(flag string) (string, error) {
	if flag == "" {
		return rt.cfg.Models.Default, nil
	}
	if !rt.cfg.HasModel(flag) {
		return "", fmt.Errorf("unknown model %q (available: %v)", flag, rt.cfg.Models.Available)
	}
	return flag, nil
}
