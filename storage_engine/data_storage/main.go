package datastorage

import (
	"os"
	"path/filepath"

	"PastureDB/dberror"
	"PastureDB/logging"
	checkpoint "PastureDB/storage_engine/checkpoint_manager"
	diskmanager "PastureDB/storage_engine/disk_manager"
	"PastureDB/types"
)

/*
This is the main file of the data storage manager
It holds the rows and indexes of every open table space in memory and flushes them to

	<base>/data/<tablespace>/checkpoint_<lsn>.data
	<base>/data/<tablespace>/checkpoint.json     pointer to the newest data file

Checkpoint copies the state under a read lock and does all file I/O afterwards, so
statements keep running while a checkpoint is written. Older data files are removed
only once the pointer names the new one.
*/

func NewDataStorageManager(baseDir string) (*DataStorageManager, error) {
	root := filepath.Join(baseDir, "data")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, dberror.Wrap(dberror.ErrDataStorageIO, err, "creating %s", root)
	}
	return &DataStorageManager{
		dataRoot:    root,
		tableSpaces: make(map[string]*tableSpaceStorage),
	}, nil
}

// LoadLatestCheckpoint opens the table space and returns its state and the LSN it is consistent with
func (m *DataStorageManager) LoadLatestCheckpoint(tableSpace string) (*TableSpaceData, uint64, error) {
	disk, err := diskmanager.NewDiskManager(filepath.Join(m.dataRoot, tableSpace))
	if err != nil {
		return nil, 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "opening data directory").WithTableSpace(tableSpace)
	}
	storage := &tableSpaceStorage{
		disk:        disk,
		checkpoints: checkpoint.NewCheckpointManager(disk, tableSpace),
	}

	fileName, err := storage.latestDataFile()
	if err != nil {
		return nil, 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "locating checkpoint").WithTableSpace(tableSpace)
	}

	log := logging.WithTableSpace(tableSpace)
	if fileName == "" {
		storage.data = NewTableSpaceData(tableSpace, nil)
		log.Debug("no checkpoint found, starting empty")
	} else {
		raw, err := disk.ReadFile(fileName)
		if err != nil {
			return nil, 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "reading checkpoint").WithTableSpace(tableSpace).WithRecord(fileName)
		}
		snap, err := decodeSnapshot(raw)
		if err == nil && snap.TableSpace != tableSpace {
			err = dberror.New(dberror.ErrMalformedStream, "checkpoint belongs to table space %s", snap.TableSpace)
		}
		if err != nil {
			return nil, 0, dberror.Wrap(dberror.ErrMalformedStream, err, "decoding checkpoint").WithTableSpace(tableSpace).WithRecord(fileName)
		}
		data, err := restore(snap)
		if err != nil {
			return nil, 0, dberror.Wrap(dberror.ErrMalformedStream, err, "restoring checkpoint").WithTableSpace(tableSpace).WithRecord(fileName)
		}
		storage.data = data
		log.Info("checkpoint loaded", "lsn", snap.LSN, "file", fileName, "tables", len(snap.Tables))
	}

	m.mu.Lock()
	m.tableSpaces[tableSpace] = storage
	m.mu.Unlock()
	return storage.data, storage.data.LastAppliedLSN(), nil
}

// latestDataFile follows the pointer, or picks the newest data file when the pointer is unusable
func (s *tableSpaceStorage) latestDataFile() (string, error) {
	ck, err := s.checkpoints.LoadCheckpoint()
	if err != nil {
		return "", err
	}
	if ck != nil && s.disk.Exists(ck.DataFile) {
		return ck.DataFile, nil
	}

	files, err := s.disk.List(checkpointFilePrefix, checkpointFileSuffix)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	// fixed-width hex names sort by LSN
	return files[len(files)-1], nil
}

func (m *DataStorageManager) storage(tableSpace string) (*tableSpaceStorage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.tableSpaces[tableSpace]
	if !ok {
		return nil, dberror.New(dberror.ErrTableSpaceNotFound, "table space %s is not open", tableSpace).WithTableSpace(tableSpace)
	}
	return s, nil
}

// Data returns the live state of an open table space
func (m *DataStorageManager) Data(tableSpace string) (*TableSpaceData, error) {
	s, err := m.storage(tableSpace)
	if err != nil {
		return nil, err
	}
	return s.data, nil
}

// ApplyMutation applies a durable log entry to the table space it names
func (m *DataStorageManager) ApplyMutation(entry *types.LogEntry) error {
	s, err := m.storage(entry.TableSpace)
	if err != nil {
		return err
	}
	return s.data.ApplyMutation(entry)
}

// Checkpoint writes the current state of the table space and returns the LSN it covers
func (m *DataStorageManager) Checkpoint(tableSpace string) (uint64, error) {
	s, err := m.storage(tableSpace)
	if err != nil {
		return 0, err
	}

	s.ckMu.Lock()
	defer s.ckMu.Unlock()

	snap := s.data.Snapshot()
	fileName := checkpointFileName(snap.LSN)

	current, err := s.checkpoints.LoadCheckpoint()
	if err != nil {
		return 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "reading checkpoint pointer").WithTableSpace(tableSpace)
	}
	if current != nil && current.LSN == snap.LSN && current.DataFile == fileName && s.disk.Exists(fileName) {
		return snap.LSN, nil
	}

	raw, err := encodeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	if err := s.disk.WriteFile(fileName, raw); err != nil {
		return 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "writing checkpoint").WithTableSpace(tableSpace).WithRecord(fileName)
	}
	if err := s.checkpoints.SaveCheckpoint(snap.LSN, fileName); err != nil {
		return 0, dberror.Wrap(dberror.ErrDataStorageIO, err, "writing checkpoint pointer").WithTableSpace(tableSpace)
	}

	log := logging.WithTableSpace(tableSpace)
	files, err := s.disk.List(checkpointFilePrefix, checkpointFileSuffix)
	if err != nil {
		log.Warn("cannot list old checkpoints", "error", err)
	}
	for _, f := range files {
		if f == fileName {
			continue
		}
		if err := s.disk.Remove(f); err != nil {
			log.Warn("cannot remove old checkpoint", "file", f, "error", err)
		}
	}

	log.Info("checkpoint written", "lsn", snap.LSN, "file", fileName, "bytes", len(raw))
	return snap.LSN, nil
}

// Close forgets the table space without touching its files
func (m *DataStorageManager) Close(tableSpace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tableSpaces, tableSpace)
}

// Drop deletes every data file of the table space
func (m *DataStorageManager) Drop(tableSpace string) error {
	m.mu.Lock()
	s, ok := m.tableSpaces[tableSpace]
	delete(m.tableSpaces, tableSpace)
	m.mu.Unlock()

	var disk *diskmanager.DiskManager
	if ok {
		disk = s.disk
	} else {
		d, err := diskmanager.NewDiskManager(filepath.Join(m.dataRoot, tableSpace))
		if err != nil {
			return dberror.Wrap(dberror.ErrDataStorageIO, err, "opening data directory").WithTableSpace(tableSpace)
		}
		disk = d
	}
	if err := disk.RemoveAll(); err != nil {
		return dberror.Wrap(dberror.ErrDataStorageIO, err, "dropping data").WithTableSpace(tableSpace)
	}
	return nil
}
