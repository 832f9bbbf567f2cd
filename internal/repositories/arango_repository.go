package repositories

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	driver "github.com/arangodb/go-driver"
	arangohttp "github.com/arangodb/go-driver/http"
	"go.uber.org/zap"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

const (
	defaultMaxRetries     = 3
	defaultRetryDelay     = 1 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

// ConnectionConfig describes how to reach the database. It is passed through
// to the driver without interpretation beyond what is needed to dial.
type ConnectionConfig struct {
	Endpoints      []string
	Database       string
	Username       string
	Password       string
	MaxConnections int
	CreateDatabase bool
}

// HealthStatus is the last known state of the connection.
type HealthStatus struct {
	IsHealthy bool
	LastCheck time.Time
	LastError error
	Version   string
}

// ArangoRepository implements domain.Backend on top of the ArangoDB Go driver.
type ArangoRepository struct {
	cfg    ConnectionConfig
	logger *zap.Logger

	mu     sync.RWMutex
	client driver.Client
	db     driver.Database

	// Collection handles resolved so far, keyed by name.
	colMu       sync.RWMutex
	collections map[string]driver.Collection

	healthStatus atomic.Value // *HealthStatus
}

// NewArangoRepository connects to the configured database.
func NewArangoRepository(cfg ConnectionConfig, logger *zap.Logger) (*ArangoRepository, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	repo := &ArangoRepository{
		cfg:         cfg,
		logger:      logger,
		collections: make(map[string]driver.Collection),
	}
	repo.healthStatus.Store(&HealthStatus{LastCheck: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := repo.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to arangodb: %w", err)
	}

	return repo, nil
}

// Connect dials the server, retrying a few times because the database often
// starts slower than the application.
func (r *ArangoRepository) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The write lock is held for the whole loop: operations arriving while we
	// reconnect block on database() instead of seeing a half-replaced client.
	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff. In compose setups ArangoDB answers HTTP a few
			// seconds before it accepts logins, so the first dial often fails.
			delay := defaultRetryDelay * time.Duration(attempt)
			r.logger.Info("retrying arangodb connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		client, db, err := r.dial(ctx)
		if err != nil {
			lastErr = err
			r.logger.Warn("arangodb connection attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		r.client = client
		r.db = db
		// Handles from the previous client point at a dead connection.
		r.resetCollections()
		r.updateHealthStatus(true, nil, "")

		r.logger.Info("connected to arangodb",
			zap.Strings("endpoints", r.cfg.Endpoints),
			zap.String("database", r.cfg.Database),
		)
		return nil
	}

	r.updateHealthStatus(false, lastErr, "")
	return fmt.Errorf("no connection after %d attempts: %w", defaultMaxRetries, lastErr)
}

func (r *ArangoRepository) dial(ctx context.Context) (driver.Client, driver.Database, error) {
	conn, err := arangohttp.NewConnection(arangohttp.ConnectionConfig{
		Endpoints: r.cfg.Endpoints,
		ConnLimit: r.cfg.MaxConnections,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create connection: %w", err)
	}

	clientCfg := driver.ClientConfig{Connection: conn}
	if r.cfg.Username != "" {
		clientCfg.Authentication = driver.BasicAuthentication(r.cfg.Username, r.cfg.Password)
	}
	client, err := driver.NewClient(clientCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	if r.cfg.CreateDatabase {
		exists, err := client.DatabaseExists(ctx, r.cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("check database %s: %w", r.cfg.Database, err)
		}
		if !exists {
			if _, err := client.CreateDatabase(ctx, r.cfg.Database, nil); err != nil && !driver.IsConflict(err) {
				return nil, nil, fmt.Errorf("create database %s: %w", r.cfg.Database, err)
			}
		}
	}

	db, err := client.Database(ctx, r.cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", r.cfg.Database, err)
	}
	return client, db, nil
}

func (r *ArangoRepository) database() (driver.Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, domain.ErrNotConnected
	}
	return r.db, nil
}

// collection resolves a collection handle. db.Collection costs a round trip
// (it checks the collection exists), so handles are cached per name for the
// lifetime of the connection. Two goroutines may resolve the same name at
// once; both handles are equivalent and the last store wins.
func (r *ArangoRepository) collection(ctx context.Context, name string) (driver.Collection, error) {
	r.colMu.RLock()
	col, ok := r.collections[name]
	r.colMu.RUnlock()
	if ok {
		return col, nil
	}

	db, err := r.database()
	if err != nil {
		return nil, err
	}
	col, err = db.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	r.storeCollection(name, col)
	return col, nil
}

func (r *ArangoRepository) storeCollection(name string, col driver.Collection) {
	r.colMu.Lock()
	r.collections[name] = col
	r.colMu.Unlock()
}

func (r *ArangoRepository) resetCollections() {
	r.colMu.Lock()
	r.collections = make(map[string]driver.Collection)
	r.colMu.Unlock()
}

// CreateCollection creates a document collection. Duplicate names are
// reported as domain.ErrAlreadyExists.
func (r *ArangoRepository) CreateCollection(ctx context.Context, name string) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	col, err := db.CreateCollection(ctx, name, nil)
	if err != nil {
		if driver.IsConflict(err) {
			return fmt.Errorf("collection %s: %w", name, domain.ErrAlreadyExists)
		}
		return err
	}
	r.storeCollection(name, col)
	return nil
}

func (r *ArangoRepository) EnsureGeoIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return false, err
	}
	_, created, err := col.EnsureGeoIndex(ctx, fields, geoIndexOptions(opts))
	return created, err
}

func (r *ArangoRepository) EnsureSkipListIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return false, err
	}
	_, created, err := col.EnsureSkipListIndex(ctx, fields, skipListIndexOptions(opts))
	return created, err
}

func (r *ArangoRepository) EnsurePersistentIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return false, err
	}
	_, created, err := col.EnsurePersistentIndex(ctx, fields, persistentIndexOptions(opts))
	return created, err
}

func (r *ArangoRepository) EnsureHashIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return false, err
	}
	_, created, err := col.EnsureHashIndex(ctx, fields, hashIndexOptions(opts))
	return created, err
}

func (r *ArangoRepository) EnsureFullTextIndex(ctx context.Context, collection string, field string, opts domain.IndexOptions) (bool, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return false, err
	}
	_, created, err := col.EnsureFullTextIndex(ctx, []string{field}, fullTextIndexOptions(opts))
	return created, err
}

// Insert stores doc and returns the identity assigned by the server.
func (r *ArangoRepository) Insert(ctx context.Context, collection string, doc map[string]interface{}, opts domain.Options) (domain.Identity, error) {
	col, err := r.collection(ctx, collection)
	if err != nil {
		return domain.Identity{}, err
	}
	meta, err := col.CreateDocument(withOptions(ctx, opts), doc)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Key: meta.Key, ID: meta.ID.String(), Rev: meta.Rev}, nil
}

// Query runs an AQL query and drains its cursor.
func (r *ArangoRepository) Query(ctx context.Context, query string, bindVars map[string]interface{}, opts domain.Options) ([]interface{}, error) {
	db, err := r.database()
	if err != nil {
		return nil, err
	}

	ctx = withOptions(ctx, opts)
	cursor, err := db.Query(ctx, query, bindVars)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	results := make([]interface{}, 0)
	for {
		var v interface{}
		if _, err := cursor.ReadDocument(ctx, &v); err != nil {
			if driver.IsNoMoreDocuments(err) {
				break
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// CheckConnection asks the server for its version.
func (r *ArangoRepository) CheckConnection(ctx context.Context) error {
	r.mu.RLock()
	client := r.client
	r.mu.RUnlock()

	if client == nil {
		return domain.ErrNotConnected
	}

	info, err := client.Version(ctx)
	if err != nil {
		r.updateHealthStatus(false, err, "")
		return fmt.Errorf("ping arangodb: %w", err)
	}
	r.updateHealthStatus(true, nil, string(info.Version))
	return nil
}

// Health returns the last recorded health status.
func (r *ArangoRepository) Health() HealthStatus {
	return *r.getHealthStatus()
}

// Close drops the client. The HTTP transport has no connections to release
// explicitly; idle ones are reclaimed by the runtime.
func (r *ArangoRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.client = nil
	r.db = nil
	r.resetCollections()
	r.updateHealthStatus(false, domain.ErrNotConnected, "")
	return nil
}

func (r *ArangoRepository) updateHealthStatus(isHealthy bool, err error, version string) {
	r.healthStatus.Store(&HealthStatus{
		IsHealthy: isHealthy,
		LastCheck: time.Now(),
		LastError: err,
		Version:   version,
	})
}

func (r *ArangoRepository) getHealthStatus() *HealthStatus {
	status, _ := r.healthStatus.Load().(*HealthStatus)
	if status == nil {
		return &HealthStatus{}
	}
	return status
}

var (
	_ domain.Backend       = (*ArangoRepository)(nil)
	_ domain.HealthChecker = (*ArangoRepository)(nil)
)
