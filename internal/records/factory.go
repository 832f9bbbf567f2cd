package records

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iyobo/jollof-data-arangodb/internal/config"
	"github.com/iyobo/jollof-data-arangodb/internal/domain"
	"github.com/iyobo/jollof-data-arangodb/internal/repositories"
)

// DialFunc opens a backend for a connection configuration.
type DialFunc func(cfg config.ArangoConfig, logger *zap.Logger) (domain.Backend, error)

// Factory hands out one Adapter per distinct connection configuration.
type Factory struct {
	logger *zap.Logger
	dial   DialFunc

	mu       sync.Mutex
	adapters map[string]*Adapter
}

// NewFactory creates a factory. A nil dial connects with the ArangoDB driver.
func NewFactory(logger *zap.Logger, dial DialFunc) *Factory {
	if dial == nil {
		dial = DialArango
	}
	return &Factory{
		logger:   logger,
		dial:     dial,
		adapters: make(map[string]*Adapter),
	}
}

// DialArango connects an ArangoRepository.
func DialArango(cfg config.ArangoConfig, logger *zap.Logger) (domain.Backend, error) {
	repo, err := repositories.NewArangoRepository(repositories.ConnectionConfig{
		Endpoints:      cfg.Endpoints,
		Database:       cfg.Database,
		Username:       cfg.Username,
		Password:       cfg.Password,
		MaxConnections: cfg.MaxConnections,
		CreateDatabase: cfg.CreateDatabase,
	}, logger)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Get returns the adapter for cfg, connecting on first use. Subsequent calls
// with an equivalent configuration return the same instance; the adapter
// options only apply to the first call.
func (f *Factory) Get(cfg config.ArangoConfig, opts config.AdapterConfig) (*Adapter, error) {
	key := cfg.Key()

	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.adapters[key]; ok {
		return a, nil
	}

	logger := f.logger.With(zap.String("database", cfg.Database), zap.Strings("endpoints", cfg.Endpoints))
	backend, err := f.dial(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open backend %s: %w", cfg.Database, err)
	}

	a := NewAdapter(backend, logger, Options{
		MaxConcurrentOps: opts.MaxConcurrentOps,
		IndexWorkers:     opts.IndexWorkers,
		GenerateKeys:     opts.GenerateKeys,
		OperationTimeout: opts.OperationTimeout,
	})
	f.adapters[key] = a

	logger.Info("record adapter ready")
	return a, nil
}

// Close closes every adapter the factory handed out.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for key, a := range f.adapters {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
		delete(f.adapters, key)
	}
	return errors.Join(errs...)
}
