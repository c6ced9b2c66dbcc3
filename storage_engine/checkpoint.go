package storageengine

import (
	"context"
	"time"

	"PastureDB/logging"

	"golang.org/x/sync/errgroup"
)

/*
Checkpointing:

	snapshot of the applied state (LSN ck)  -> checkpoint_<ck>.data + checkpoint.json
	WAL roll                                -> the active segment starts after ck
	WAL truncate before ck+1                -> segments fully covered by the checkpoint go

The scheduler runs one pass every CheckpointPeriod, and one more as soon as a write leaves a
log larger than MaxLogSize. Writes keep running while a checkpoint is taken: anything applied
after the snapshot has a higher LSN and stays in the log.
*/

func (m *DBManager) runCheckpointScheduler(ctx context.Context) {
	defer close(m.schedulerDone)

	log := logging.WithComponent("checkpoint")
	// a negative period disables the timer, size triggers still run
	var tick <-chan time.Time
	if m.cfg.CheckpointPeriod > 0 {
		ticker := time.NewTicker(m.cfg.CheckpointPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-m.checkpointTrigger:
			log.Debug("log size over limit, checkpoint requested")
		}
		if err := m.CheckpointAll(ctx); err != nil {
			log.Error("checkpoint failed", "error", err)
		}
	}
}

// CheckpointAll checkpoints every open table space in parallel
func (m *DBManager) CheckpointAll(ctx context.Context) error {
	m.mu.RLock()
	managers := make([]*TableSpaceManager, 0, len(m.tableSpaces))
	for _, tm := range m.tableSpaces {
		managers = append(managers, tm)
	}
	m.mu.RUnlock()

	g, _ := errgroup.WithContext(ctx)
	for _, tm := range managers {
		g.Go(func() error {
			if err := tm.available(); err != nil {
				logging.WithTableSpace(tm.Name()).Warn("skipping checkpoint of unavailable table space")
				return nil
			}
			_, err := m.checkpoint(tm)
			return err
		})
	}
	return g.Wait()
}

// Checkpoint checkpoints one table space and returns the LSN it covers
func (m *DBManager) Checkpoint(name string) (uint64, error) {
	tm, err := m.tableSpace(name)
	if err != nil {
		return 0, err
	}
	if err := tm.available(); err != nil {
		return 0, err
	}
	return m.checkpoint(tm)
}

func (m *DBManager) checkpoint(tm *TableSpaceManager) (uint64, error) {
	lsn, err := m.dataStorage.Checkpoint(tm.Name())
	if err != nil {
		return 0, err
	}
	if err := tm.wal.Roll(); err != nil {
		return 0, err
	}
	removed, err := tm.wal.TruncateBefore(lsn + 1)
	if err != nil {
		return 0, err
	}
	logging.WithTableSpace(tm.Name()).Debug("log truncated after checkpoint",
		"checkpoint_lsn", lsn, "segments_removed", removed, "log_size", tm.wal.Size())
	return lsn, nil
}

// maybeTriggerCheckpoint asks the scheduler for a pass when the log of tm grew past MaxLogSize
func (m *DBManager) maybeTriggerCheckpoint(tm *TableSpaceManager) {
	if m.cfg.MaxLogSize <= 0 || tm.wal.Size() <= m.cfg.MaxLogSize {
		return
	}
	select {
	case m.checkpointTrigger <- struct{}{}:
	default:
	}
}
