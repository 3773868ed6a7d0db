package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/relaysched/orchestrator/internal/config"
	"github.com/relaysched/orchestrator/internal/queue"
	"github.com/relaysched/orchestrator/internal/store"
	"github.com/relaysched/orchestrator/internal/supervisor"
	"github.com/relaysched/orchestrator/internal/transport"
)

// loadConfig resolves cfgPath (the --config persistent flag) against
// config.Load, falling back to defaults when no path was given.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildSupervisor wires every component from cfg into a running Supervisor.
func buildSupervisor(ctx context.Context, cfg config.Config) (*supervisor.Supervisor, error) {
	s, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	dedup := store.NewDedupCache(cfg.DedupCacheRedisAddr)
	archiver, err := store.NewArchiver(ctx, cfg.ArchiveDSN, filepath.Join(cfg.StateDir, "archive"), cfg.MaxArchiveFiles)
	if err != nil {
		return nil, fmt.Errorf("opening archiver: %w", err)
	}
	qmgr := queue.NewManager(cfg, dedup, archiver)

	out, err := transport.NewStreams(filepath.Join(cfg.StateDir, "streams", "out"))
	if err != nil {
		return nil, fmt.Errorf("opening outbound streams: %w", err)
	}
	in, err := transport.NewStreams(filepath.Join(cfg.StateDir, "streams", "in"))
	if err != nil {
		return nil, fmt.Errorf("opening inbound streams: %w", err)
	}

	sv := supervisor.New(cfg, s, qmgr, out, in)
	return sv, nil
}
