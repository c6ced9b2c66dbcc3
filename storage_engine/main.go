package storageengine

import (
	"context"
	"fmt"

	"PastureDB/config"
	"PastureDB/dberror"
	"PastureDB/logging"
	plancache "PastureDB/plan_cache"
	datastorage "PastureDB/storage_engine/data_storage"
	"PastureDB/types"

	"golang.org/x/sync/errgroup"
)

/*
The main file of the storage engine
DBManager opens every table space registered in the metadata store, runs its recovery and
then routes statements to the TableSpaceManager that owns it.

Table spaces are independent: each one has its own WAL, data files and write lock, so
statements against different table spaces run in parallel and are recovered in parallel.
*/

func NewDBManager(cfg config.Config, metadata MetadataStore, dataStorage *datastorage.DataStorageManager, planCache *plancache.PlanCache) *DBManager {
	cfg.ApplyDefaults()
	return &DBManager{
		cfg:               cfg,
		metadata:          metadata,
		dataStorage:       dataStorage,
		planCache:         planCache,
		tableSpaces:       make(map[string]*TableSpaceManager),
		checkpointTrigger: make(chan struct{}, 1),
	}
}

// Start recovers every registered table space and starts the checkpoint scheduler.
// A table space that cannot be recovered fails the whole start.
func (m *DBManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("db manager already started")
	}
	m.started = true
	m.mu.Unlock()

	definitions, err := m.metadata.ListTableSpaces()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, def := range definitions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tm, err := m.openTableSpace(def)
			if err != nil {
				return err
			}
			m.mu.Lock()
			m.tableSpaces[def.Name()] = tm
			m.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.closeTableSpaces()
		return err
	}

	schedulerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.stopScheduler = cancel
	m.schedulerDone = make(chan struct{})
	go m.runCheckpointScheduler(schedulerCtx)

	logging.WithComponent("dbmanager").Info("db manager started",
		"node", m.cfg.NodeID, "tablespaces", len(definitions), "base_dir", m.cfg.BaseDir)
	return nil
}

// Close stops the scheduler, takes a final checkpoint of every table space and closes the logs
func (m *DBManager) Close() error {
	if m.stopScheduler != nil {
		m.stopScheduler()
		<-m.schedulerDone
		m.stopScheduler = nil
	}

	err := m.CheckpointAll(context.Background())
	if closeErr := m.closeTableSpaces(); err == nil {
		err = closeErr
	}
	return err
}

func (m *DBManager) closeTableSpaces() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, tm := range m.tableSpaces {
		if err := tm.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.dataStorage.Close(name)
		delete(m.tableSpaces, name)
	}
	return firstErr
}

func (m *DBManager) tableSpace(name string) (*TableSpaceManager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tm, ok := m.tableSpaces[name]
	if !ok {
		return nil, dberror.New(dberror.ErrTableSpaceNotFound, "table space %s", name).WithTableSpace(name)
	}
	return tm, nil
}

func (m *DBManager) ListTableSpaces() ([]*types.TableSpace, error) {
	return m.metadata.ListTableSpaces()
}

func (m *DBManager) HasTableSpace(name string) bool {
	_, err := m.tableSpace(name)
	return err == nil
}

// Catalog returns the current definitions of a table space
func (m *DBManager) Catalog(tableSpace string) (*types.Catalog, error) {
	tm, err := m.tableSpace(tableSpace)
	if err != nil {
		return nil, err
	}
	return tm.data.Catalog(), nil
}

func (m *DBManager) Status() []TableSpaceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TableSpaceStatus, 0, len(m.tableSpaces))
	for _, tm := range m.tableSpaces {
		catalog := tm.data.Catalog()
		out = append(out, TableSpaceStatus{
			Name:      tm.definition.Name(),
			UUID:      tm.definition.UUID(),
			Leader:    tm.definition.Leader(),
			LastLSN:   tm.wal.LastLSN(),
			LogSize:   tm.wal.Size(),
			Tables:    len(catalog.Tables()),
			Indexes:   len(catalog.Indexes()),
			Available: tm.available() == nil,
		})
	}
	sortStatus(out)
	return out
}

func (m *DBManager) PlanCache() *plancache.PlanCache {
	return m.planCache
}

func (m *DBManager) Config() config.Config {
	return m.cfg
}
