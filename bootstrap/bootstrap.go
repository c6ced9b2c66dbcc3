package bootstrap

import (
	"context"
	"errors"

	"PastureDB/config"
	"PastureDB/logging"
	"PastureDB/plan"
	plancache "PastureDB/plan_cache"
	"PastureDB/server"
	storageengine "PastureDB/storage_engine"
	"PastureDB/storage_engine/catalog"
	datastorage "PastureDB/storage_engine/data_storage"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"
)

/*
Wires the node together

	config -> metadata store, data storage, plan cache -> DBManager -> Server

Run owns the whole lifecycle: start the manager, serve HTTP (and ZeroMQ) until ctx is done,
then close everything with a final checkpoint.
*/

// BuildContainer registers every constructor of the node against cfg
func BuildContainer(cfg config.Config) (*dig.Container, error) {
	cfg.ApplyDefaults()
	container := dig.New()
	constructors := []interface{}{
		func() config.Config { return cfg },
		metadataStore,
		dataStorage,
		planCache,
		storageengine.NewDBManager,
		server.NewServer,
	}
	for _, constructor := range constructors {
		if err := container.Provide(constructor); err != nil {
			return nil, err
		}
	}
	return container, nil
}

// Run blocks until ctx is cancelled or the HTTP front fails
func Run(ctx context.Context, cfg config.Config) error {
	container, err := BuildContainer(cfg)
	if err != nil {
		return err
	}
	return container.Invoke(func(s *server.Server, cache *plancache.PlanCache) error {
		defer cache.Close()
		if err := s.Start(ctx); err != nil {
			return err
		}
		log := logging.WithComponent("bootstrap")
		log.Info("node started", "node", cfg.NodeID, "base_dir", cfg.BaseDir)

		serveErr := serve(ctx, s, cfg)
		closeErr := s.Close()
		log.Info("node stopped")
		return errors.Join(serveErr, closeErr)
	})
}

// serve runs the HTTP front, and the ZeroMQ front when a port is configured, until ctx is
// done or one of them fails
func serve(ctx context.Context, s *server.Server, cfg config.Config) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ListenAndServe(gctx) })
	if cfg.ZMQPort > 0 {
		front, err := s.ListenZMQ(gctx, cfg.ZMQEndpoint())
		if err != nil {
			// cancels gctx, which stops the HTTP front
			g.Go(func() error { return err })
		} else {
			g.Go(func() error { return front.Serve(gctx) })
		}
	}
	return g.Wait()
}

func metadataStore(cfg config.Config) (storageengine.MetadataStore, error) {
	return catalog.NewFileMetadataStorageManager(cfg.BaseDir)
}

func dataStorage(cfg config.Config) (*datastorage.DataStorageManager, error) {
	return datastorage.NewDataStorageManager(cfg.BaseDir)
}

func planCache(cfg config.Config) (*plancache.PlanCache, error) {
	return plancache.NewPlanCache(cfg.PlanCacheMaxBytes, plan.NewCounter())
}
