package main

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonop-io/wonopcore/internal/bus"
	"github.com/wonop-io/wonopcore/internal/config"
	"github.com/wonop-io/wonopcore/internal/store"
)

// startSweep schedules the periodic maintenance job §11 describes:
// pruning snapshots older than the retention window and running
// revert.cleanup for every session that still carries a revert marker.
// The marker's age is not checked; the RevertGracePeriod setting is not
// read.
// Grounded on the teacher's own robfig/cron usage for its background
// jobs; interval-driven rather than crontab-syntax since the config only
// exposes a duration.
func startSweep(cfg config.SweepConfig, sessions *store.SessionStore, snapshots *store.SnapshotStore, b *bus.Bus, logger *slog.Logger) (func(), error) {
	c := cron.New()
	spec := "@every " + cfg.Interval.String()
	_, err := c.AddFunc(spec, func() {
		runSweepOnce(cfg, sessions, snapshots, b, logger)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

func runSweepOnce(cfg config.SweepConfig, sessions *store.SessionStore, snapshots *store.SnapshotStore, b *bus.Bus, logger *slog.Logger) {
	cutoff := time.Now().Add(-cfg.SnapshotRetention)
	removed, err := snapshots.Prune(cutoff)
	if err != nil {
		logger.Error("sweep: pruning snapshots", "err", err)
	} else if removed > 0 {
		logger.Info("sweep: pruned snapshots", "count", removed)
	}

	all, err := sessions.AllSessions()
	if err != nil {
		logger.Error("sweep: listing sessions", "err", err)
		return
	}
	for _, sess := range all {
		if sess.Revert == nil {
			continue
		}
		if err := sessions.Cleanup(b, sess); err != nil {
			logger.Error("sweep: cleanup", "session", sess.ID, "err", err)
		}
	}
}
