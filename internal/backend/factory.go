package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chargelog/internal/amqp"
	"chargelog/internal/cache"
	"chargelog/internal/services"
	"chargelog/internal/stats"
	"chargelog/internal/storage"
	"chargelog/internal/store"
	"chargelog/internal/store/memory"
)

const (
	statsCacheSize    = 64
	statsCacheTTL     = 10 * time.Minute
	cacheCleanupEvery = 5 * time.Minute
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		st, err = f.createSQLiteStore(config)
	case MemoryBackend:
		st = f.createMemoryStore(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without backups", "component", "backend", "error", err)
			amqpClient = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"component", "backend",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	reports := cache.NewLRUCache[stats.Report](statsCacheSize, statsCacheTTL)
	caches := cache.NewManager()
	caches.Register(reports)
	caches.StartCleanup(cacheCleanupEvery)

	opts := services.Options{Locale: config.Locale, StatsCache: reports}
	if amqpClient != nil {
		opts.Publisher = amqpClient
	}
	svc := services.NewLogService(st, opts)

	f.logger.Info("Initialized backend",
		"component", "backend",
		"type", config.Type,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Service: svc,
		Store:   st,
		AMQP:    amqpClient,
		Cleanup: func() error {
			caches.Stop()
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, svc.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (store.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "component", "backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) store.Store {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	st := memory.NewFromFiles(dataDir)
	f.logger.Info("Initialized memory backend", "component", "backend", "data_directory", dataDir)
	return st
}
