// Package scheduler runs the periodic background tasks: draining the
// encrypted value service's decryption queue, persisting engine snapshots,
// and sweeping applications past their timeout period.
package scheduler

import (
	"log/slog"
	"time"

	"patentvault/internal/config"
	"patentvault/internal/encval"
	"patentvault/internal/engine"
)

// SnapshotStore is the persistence sink for periodic snapshots
type SnapshotStore interface {
	Save(st *engine.State) error
}

// Scheduler handles periodic tasks
type Scheduler struct {
	engine    *engine.Engine
	enc       encval.Service
	snapshots SnapshotStore
	config    *config.SchedulerConfig
	stopChan  chan bool
}

// NewScheduler creates a new scheduler. snapshots may be nil when no
// database is configured.
func NewScheduler(eng *engine.Engine, enc encval.Service, snapshots SnapshotStore, cfg *config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		engine:    eng,
		enc:       enc,
		snapshots: snapshots,
		config:    cfg,
		stopChan:  make(chan bool),
	}
}

// Start starts all scheduled tasks
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler",
		"delivery_interval", s.config.DeliveryInterval,
		"snapshots_enabled", s.config.EnableSnapshots && s.snapshots != nil,
		"sweep_enabled", s.config.EnableSweep)

	go s.runIntervalTask(s.config.DeliveryInterval, "decryption_delivery", s.deliverDecryptions)

	if s.config.EnableSnapshots && s.snapshots != nil {
		go s.runIntervalTask(s.config.SnapshotInterval, "snapshot", s.persistSnapshot)
	}
	if s.config.EnableSweep {
		go s.runIntervalTask(s.config.SweepInterval, "timeout_sweep", s.sweepTimeouts)
	}

	slog.Info("Scheduler started")
}

// Stop stops all scheduled tasks
func (s *Scheduler) Stop() {
	close(s.stopChan)
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) runIntervalTask(interval time.Duration, taskName string, task func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Scheduled task started", "task", taskName, "interval", interval)
	for {
		select {
		case <-ticker.C:
			task()
		case <-s.stopChan:
			slog.Info("Scheduled task stopped", "task", taskName)
			return
		}
	}
}

// deliverDecryptions drains the encrypted value service's completed requests
// into the engine's callback.
func (s *Scheduler) deliverDecryptions() {
	s.enc.Flush()
}

func (s *Scheduler) persistSnapshot() {
	st, err := s.engine.Snapshot()
	if err != nil {
		slog.Error("Failed to capture snapshot", "error", err)
		return
	}
	if err := s.snapshots.Save(st); err != nil {
		slog.Error("Failed to persist snapshot", "error", err)
		return
	}
	slog.Debug("Snapshot persisted")
}

// sweepTimeouts surfaces applications whose timeout period has elapsed.
// Refund claims stay applicant-initiated; the sweep only makes eligible
// applications visible in the logs.
func (s *Scheduler) sweepTimeouts() {
	for id := uint64(1); ; id++ {
		timedOut, _, err := s.engine.CheckTimeout(id)
		if err != nil {
			return
		}
		if !timedOut {
			continue
		}
		app, err := s.engine.GetApplication(id)
		if err != nil {
			return
		}
		if !app.Status.IsTerminal() && !app.RefundProcessed {
			slog.Info("Application past timeout period", "application_id", id, "status", app.Status)
		}
	}
}
