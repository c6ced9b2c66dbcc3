package storageengine

import (
	"PastureDB/dberror"
	"PastureDB/logging"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"
)

/*
Recovery of one table space, run before it accepts any statement:

 1. load the latest checkpoint            -> state consistent with LSN ck
 2. open the WAL, make sure it continues after ck
 3. replay every entry from ck+1 in LSN order
 4. reconcile the catalog with the metadata store

Entries carry target states, so replaying an entry whose effect is already in the checkpoint
changes nothing. Any decoding or apply error stops the recovery: the table space is not opened
rather than opened with a partial state.

Step 4 covers a crash between the WAL append of a DDL entry and the metadata write: the replayed
catalog wins and is written back. A metadata catalog with no data behind it at all (fresh data
directory) is taken as the starting definitions.
*/

func (m *DBManager) openTableSpace(def *types.TableSpace) (*TableSpaceManager, error) {
	name := def.Name()
	log := logging.WithTableSpace(name)

	data, ckLSN, err := m.dataStorage.LoadLatestCheckpoint(name)
	if err != nil {
		return nil, err
	}

	wal, err := wal_manager.OpenWAL(m.walDir(name), name, m.cfg.WALSegmentSize)
	if err != nil {
		m.dataStorage.Close(name)
		return nil, err
	}
	fail := func(err error) (*TableSpaceManager, error) {
		wal.Close()
		m.dataStorage.Close(name)
		return nil, err
	}

	if err := wal.AdvanceTo(ckLSN); err != nil {
		return fail(err)
	}

	replayed := 0
	for entry, err := range wal.ReplayFrom(ckLSN + 1) {
		if err != nil {
			return fail(err)
		}
		if err := data.ApplyMutation(entry); err != nil {
			return fail(err)
		}
		replayed++
	}

	stored, err := m.metadata.Load(name)
	if err != nil {
		return fail(err)
	}
	switch {
	case data.Empty() && !stored.Empty():
		log.Warn("no data found for a known catalog, starting from the metadata definitions",
			"tables", len(stored.Tables()), "indexes", len(stored.Indexes()))
		if err := data.SeedCatalog(stored); err != nil {
			return fail(err)
		}
	case !stored.Equal(data.Catalog()):
		log.Warn("metadata catalog is behind the log, rewriting it")
		if err := m.metadata.Persist(name, data.Catalog()); err != nil {
			return fail(err)
		}
	}

	log.Info("recovery finished", "checkpoint_lsn", ckLSN, "replayed", replayed, "last_lsn", wal.LastLSN())

	return &TableSpaceManager{
		definition: def,
		wal:        wal,
		data:       data,
		metadata:   m.metadata,
	}, nil
}

func (tm *TableSpaceManager) Name() string {
	return tm.definition.Name()
}

// available returns the reason the table space stopped serving, nil while it serves
func (tm *TableSpaceManager) available() error {
	if reason := tm.unavailable.Load(); reason != nil {
		return dberror.Wrap(dberror.ErrTableSpaceUnavailable, reason, "refusing statement").WithTableSpace(tm.Name())
	}
	return nil
}

func (tm *TableSpaceManager) markUnavailable(reason *dberror.DBError) {
	if tm.unavailable.CompareAndSwap(nil, reason) {
		logging.WithTableSpace(tm.Name()).Error("table space marked unavailable", "reason", reason.Error())
	}
}

// commit makes entry durable and applies it. The caller holds writeMu.
//
// For DDL, next is the catalog the entry produces: it is persisted between the append and the
// apply. Once the append succeeded the statement is committed, so a failure after it can
// only take the table space out of service, recovery will redo the entry.
func (tm *TableSpaceManager) commit(entry *types.LogEntry, next *types.Catalog) (uint64, error) {
	lsn, err := tm.wal.Append(entry)
	if err != nil {
		return 0, err
	}

	if next != nil {
		if err := tm.metadata.Persist(tm.Name(), next); err != nil {
			reason := asDBError(err, dberror.ErrMetadataIO, tm.Name())
			tm.markUnavailable(reason)
			return 0, reason
		}
	}

	if err := tm.data.ApplyMutation(entry); err != nil {
		reason := asDBError(err, dberror.ErrDataStorageIO, tm.Name())
		tm.markUnavailable(reason)
		return 0, reason
	}
	return lsn, nil
}

func asDBError(err error, code error, tableSpace string) *dberror.DBError {
	if dbErr, ok := err.(*dberror.DBError); ok {
		return dbErr
	}
	return dberror.Wrap(code, err, "after commit").WithTableSpace(tableSpace)
}
