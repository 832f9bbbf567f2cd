package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
	"github.com/iyobo/jollof-data-arangodb/internal/metrics"
)

const (
	defaultIndexWorkers = 4

	// provisionTimeout bounds one shared provisioning run.
	provisionTimeout = 2 * time.Minute
)

// CollectionBackend is the part of the backend used during provisioning.
type CollectionBackend interface {
	domain.IndexBackend
	CreateCollection(ctx context.Context, name string) error
}

// Registry is the set of collections provisioned during this process.
// Names are never removed.
type Registry struct {
	mu    sync.RWMutex
	names map[string]struct{}
	order []string
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Has reports whether the collection has been provisioned.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Names lists provisioned collections in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) add(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; ok {
		return false
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, name)
	return true
}

// Provisioner ensures collections and their indexes exist.
type Provisioner struct {
	backend  CollectionBackend
	logger   *zap.Logger
	registry *Registry
	workers  int
	timeout  time.Duration

	// In-flight configuration per collection name, so concurrent callers
	// share one provisioning run.
	inflight singleflight.Group
}

// NewProvisioner creates a provisioner. indexWorkers bounds how many index
// creation calls run at once for one collection.
func NewProvisioner(backend CollectionBackend, registry *Registry, logger *zap.Logger, indexWorkers int) *Provisioner {
	if indexWorkers < 1 {
		indexWorkers = defaultIndexWorkers
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Provisioner{
		backend:  backend,
		logger:   logger,
		registry: registry,
		workers:  indexWorkers,
		timeout:  provisionTimeout,
	}
}

func (p *Provisioner) Registry() *Registry {
	return p.registry
}

// ConfigureCollection creates the schema's collection and indexes once per
// process. Duplicate collections and failing indexes are logged and tolerated;
// only an invalid schema or a done context produce an error.
//
// Concurrent callers for the same name share one provisioning run. That run
// is detached from any single caller's cancellation and bounded by
// provisionTimeout instead, so one caller giving up cannot fail the others.
// Each caller still returns as soon as its own context is done.
func (p *Provisioner) ConfigureCollection(ctx context.Context, schema domain.Schema) (bool, error) {
	if schema.Name == "" {
		return false, fmt.Errorf("%w: schema without a collection name", domain.ErrInvalidParams)
	}
	if p.registry.Has(schema.Name) {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("configure collection %s: %w", schema.Name, err)
	}

	ch := p.inflight.DoChan(schema.Name, func() (interface{}, error) {
		// Another caller may have finished between Has and DoChan.
		if p.registry.Has(schema.Name) {
			return nil, nil
		}

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		p.createCollection(runCtx, schema.Name)
		p.ensureIndexes(runCtx, schema)

		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		if p.registry.add(schema.Name) {
			metrics.CollectionConfigured()
		}
		p.logger.Debug("collection configured",
			zap.String("collection", schema.Name),
			zap.Int("indexes", len(schema.Indexes)),
		)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("configure collection %s: %w", schema.Name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return false, fmt.Errorf("configure collection %s: %w", schema.Name, res.Err)
		}
		return true, nil
	}
}

// ConfigureAll registers schemas one after another. A bad schema is logged
// and skipped; only context cancellation stops the run.
func (p *Provisioner) ConfigureAll(ctx context.Context, schemas []domain.Schema) (int, error) {
	configured := 0
	for _, s := range schemas {
		if _, err := p.ConfigureCollection(ctx, s); err != nil {
			if ctx.Err() != nil {
				return configured, err
			}
			p.logger.Error("schema skipped", zap.String("collection", s.Name), zap.Error(err))
			continue
		}
		configured++
	}
	return configured, nil
}

func (p *Provisioner) createCollection(ctx context.Context, name string) {
	err := p.backend.CreateCollection(ctx, name)
	switch Classify(true, err) {
	case OutcomeCreated:
		p.logger.Debug("collection created", zap.String("collection", name))
	case OutcomeAlreadyExists:
		p.logger.Debug("collection already exists", zap.String("collection", name))
	default:
		p.logger.Warn("collection creation failed",
			zap.String("collection", name),
			zap.Error(err),
		)
	}
}

// ensureIndexes is the failure boundary around index provisioning: nothing
// raised in here reaches the caller.
func (p *Provisioner) ensureIndexes(ctx context.Context, schema domain.Schema) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("index provisioning aborted",
				zap.String("collection", schema.Name),
				zap.Any("panic", r),
			)
		}
	}()

	outcomes := EnsureIndexes(ctx, p.backend, p.logger, schema.Name, schema.Indexes, p.workers)

	failed := 0
	for _, o := range outcomes {
		if o.Outcome == OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		p.logger.Error("collection configured with missing indexes",
			zap.String("collection", schema.Name),
			zap.Int("failed", failed),
			zap.Int("declared", len(outcomes)),
		)
	}
}
