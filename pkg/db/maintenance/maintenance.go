package maintenance

import (
	"context"
	"log/slog"
	"time"

	"odysseywalk/pkg/db"
	"odysseywalk/pkg/store"
)

const lastRunStateKey = "maintenance_last_run"

// Config bounds how long cached audio and walk events are kept.
type Config struct {
	AudioMaxAge time.Duration
	EventMaxAge time.Duration
	// MinInterval skips a run when the previous one is more recent.
	MinInterval time.Duration
}

// DefaultConfig keeps clips for 30 days and events for 90.
func DefaultConfig() Config {
	return Config{
		AudioMaxAge: 30 * 24 * time.Hour,
		EventMaxAge: 90 * 24 * time.Hour,
		MinInterval: 24 * time.Hour,
	}
}

// Run prunes old cached audio and walk events. It blocks until completion and
// only logs failures, so startup never stops on maintenance.
func Run(ctx context.Context, s store.StateStore, d *db.DB, cfg Config) {
	if last, ok := s.GetState(ctx, lastRunStateKey); ok {
		if t, err := time.Parse(time.RFC3339, last); err == nil && time.Since(t) < cfg.MinInterval {
			slog.Debug("Maintenance: skipped, ran recently", "last_run", last)
			return
		}
	}

	slog.Info("Starting database maintenance...")

	if n, err := d.PruneAudioCache(cfg.AudioMaxAge); err != nil {
		slog.Error("Audio cache pruning failed", "error", err)
	} else {
		slog.Info("Audio cache pruning completed", "removed", n)
	}

	if n, err := d.PruneEvents(cfg.EventMaxAge); err != nil {
		slog.Error("Event pruning failed", "error", err)
	} else {
		slog.Info("Event pruning completed", "removed", n)
	}

	if err := s.SetState(ctx, lastRunStateKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("Maintenance: failed to record run", "error", err)
	}
}
