// Package records is the record adapter: the CRUD surface the model layer
// uses to persist schema-defined collections without knowing the backend.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iyobo/jollof-data-arangodb/internal/aql"
	"github.com/iyobo/jollof-data-arangodb/internal/domain"
	"github.com/iyobo/jollof-data-arangodb/internal/metrics"
	"github.com/iyobo/jollof-data-arangodb/internal/provision"
)

// Operation names used in logs and metrics.
const (
	opFindByID = "findById"
	opFindOne  = "findOne"
	opFind     = "find"
	opFindQL   = "findQL"
	opCreate   = "create"
	opUpdate   = "update"
	opRemove   = "remove"
	opRunQuery = "runQuery"
)

// Options tune an Adapter.
type Options struct {
	MaxConcurrentOps int
	IndexWorkers     int
	// GenerateKeys makes Create assign a UUID _key client-side when the
	// payload has none.
	GenerateKeys bool
	// OperationTimeout bounds each operation; zero leaves it to the caller.
	OperationTimeout time.Duration
}

// Adapter implements the record operations on top of a domain.Backend.
// It holds no per-operation state, so calls may run concurrently.
type Adapter struct {
	backend     domain.Backend
	provisioner *provision.Provisioner
	logger      *zap.Logger
	limiter     *RateLimiter

	generateKeys bool
	timeout      time.Duration
	newKey       func() string
}

func NewAdapter(backend domain.Backend, logger *zap.Logger, opts Options) *Adapter {
	return &Adapter{
		backend:      backend,
		provisioner:  provision.NewProvisioner(backend, provision.NewRegistry(), logger, opts.IndexWorkers),
		logger:       logger,
		limiter:      NewRateLimiter(opts.MaxConcurrentOps),
		generateKeys: opts.GenerateKeys,
		timeout:      opts.OperationTimeout,
		newKey:       uuid.NewString,
	}
}

// ConfigureCollection provisions a schema's collection and indexes.
func (a *Adapter) ConfigureCollection(ctx context.Context, schema domain.Schema) (bool, error) {
	return a.provisioner.ConfigureCollection(ctx, schema)
}

// ConfigureAll provisions schemas in order and returns how many succeeded.
func (a *Adapter) ConfigureAll(ctx context.Context, schemas []domain.Schema) (int, error) {
	return a.provisioner.ConfigureAll(ctx, schemas)
}

// Collections lists the provisioned collections.
func (a *Adapter) Collections() []string {
	return a.provisioner.Registry().Names()
}

func (a *Adapter) CheckConnection(ctx context.Context) error {
	return a.backend.CheckConnection(ctx)
}

func (a *Adapter) Close() error {
	return a.backend.Close()
}

// FindByID returns the document with the given primary key, or nil.
func (a *Adapter) FindByID(ctx context.Context, collection, id string, params domain.Params) (domain.Record, error) {
	var rec domain.Record
	err := a.run(ctx, opFindByID, collection, func(ctx context.Context) error {
		var err error
		rec, err = a.findOne(ctx, collection, aql.ByID(id), params)
		return err
	})
	return rec, err
}

// FindOne returns the first document matching criteria, or nil.
func (a *Adapter) FindOne(ctx context.Context, collection string, criteria domain.Criteria, params domain.Params) (domain.Record, error) {
	var rec domain.Record
	err := a.run(ctx, opFindOne, collection, func(ctx context.Context) error {
		var err error
		rec, err = a.findOne(ctx, collection, criteria, params)
		return err
	})
	return rec, err
}

// Find returns every document matching criteria.
func (a *Adapter) Find(ctx context.Context, collection string, criteria domain.Criteria, params domain.Params) ([]domain.Record, error) {
	var recs []domain.Record
	err := a.run(ctx, opFind, collection, func(ctx context.Context) error {
		q, err := aql.Find(collection, criteria, params)
		if err != nil {
			return err
		}
		rows, err := a.query(ctx, q, params.Opts)
		if err != nil {
			return err
		}
		recs, err = toRecords(rows)
		return err
	})
	return recs, err
}

// FindQL runs the generated paged query together with its count query.
func (a *Adapter) FindQL(ctx context.Context, collection string, criteria domain.Criteria, params domain.Params) (*domain.QueryResult, error) {
	var result *domain.QueryResult
	err := a.run(ctx, opFindQL, collection, func(ctx context.Context) error {
		page, err := aql.Find(collection, criteria, params)
		if err != nil {
			return err
		}
		count := aql.Count(collection, criteria)

		var (
			rows      []interface{}
			countRows []interface{}
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = a.query(gctx, page, params.Opts)
			return err
		})
		g.Go(func() error {
			var err error
			countRows, err = a.query(gctx, count, params.Opts)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		items, err := toRecords(rows)
		if err != nil {
			return err
		}
		total, err := scalarCount(countRows)
		if err != nil {
			return err
		}
		result = &domain.QueryResult{Items: items, Count: total}
		return nil
	})
	return result, err
}

// Create inserts data as a new document. The caller's map is never modified.
func (a *Adapter) Create(ctx context.Context, collection string, data map[string]interface{}, params domain.Params) (*domain.WriteResult, error) {
	var result *domain.WriteResult
	err := a.run(ctx, opCreate, collection, func(ctx context.Context) error {
		doc := data
		if a.generateKeys {
			if _, ok := data[domain.PrimaryIDField]; !ok {
				doc = make(map[string]interface{}, len(data)+1)
				for k, v := range data {
					doc[k] = v
				}
				doc[domain.PrimaryIDField] = a.newKey()
			}
		}
		id, err := a.backend.Insert(ctx, collection, doc, params.Opts)
		if err != nil {
			return err
		}
		result = &domain.WriteResult{Count: 1, Identities: []domain.Identity{id}}
		return nil
	})
	return result, err
}

// Update applies values to every document matching criteria.
func (a *Adapter) Update(ctx context.Context, collection string, criteria domain.Criteria, values map[string]interface{}, params domain.Params) (*domain.WriteResult, error) {
	var result *domain.WriteResult
	err := a.run(ctx, opUpdate, collection, func(ctx context.Context) error {
		rows, err := a.query(ctx, aql.Update(collection, criteria, values), params.Opts)
		if err != nil {
			return err
		}
		result, err = toWriteResult(rows)
		return err
	})
	return result, err
}

// Remove deletes every document matching criteria.
func (a *Adapter) Remove(ctx context.Context, collection string, criteria domain.Criteria, params domain.Params) (*domain.WriteResult, error) {
	var result *domain.WriteResult
	err := a.run(ctx, opRemove, collection, func(ctx context.Context) error {
		rows, err := a.query(ctx, aql.Remove(collection, criteria), params.Opts)
		if err != nil {
			return err
		}
		result, err = toWriteResult(rows)
		return err
	})
	return result, err
}

func (a *Adapter) findOne(ctx context.Context, collection string, criteria domain.Criteria, params domain.Params) (domain.Record, error) {
	q, err := aql.FindOne(collection, criteria, params)
	if err != nil {
		return nil, err
	}
	rows, err := a.query(ctx, q, params.Opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toRecord(rows[0])
}

func (a *Adapter) query(ctx context.Context, q aql.Query, opts domain.Options) ([]interface{}, error) {
	text, binds, err := q.Render()
	if err != nil {
		return nil, err
	}
	return a.backend.Query(ctx, text, binds, opts)
}

// run is the single path every record operation takes. Metrics and the error
// log live here so no operation can fail silently: the error is logged with
// the operation and collection, then returned wrapped so callers can still
// match the sentinel with errors.Is.
func (a *Adapter) run(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	started := time.Now()
	err := a.do(ctx, op, collection, fn)
	metrics.ObserveOperation(op, collection, started, err)
	if err != nil {
		a.logger.Error("record operation failed",
			zap.String("operation", op),
			zap.String("collection", collection),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", op, collection, err)
	}
	return nil
}

// do guards fn with the registry check and a concurrency slot.
func (a *Adapter) do(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	// Collections are provisioned at boot. An unknown name is a caller bug,
	// and creating it here would produce a collection without its indexes.
	if !a.provisioner.Registry().Has(collection) {
		return domain.ErrCollectionNotConfigured
	}

	// The deadline is set before waiting for a slot, so time spent queued
	// behind other operations counts against the operation.
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	// The slot bounds in-flight backend calls to adapter.max_concurrent_ops,
	// which keeps a burst of requests from exhausting the driver's
	// connection pool.
	if err := a.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer a.limiter.Release()

	return fn(ctx)
}

func toRecord(v interface{}) (domain.Record, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
	return domain.Record(m), nil
}

func toRecords(rows []interface{}) ([]domain.Record, error) {
	recs := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func toWriteResult(rows []interface{}) (*domain.WriteResult, error) {
	result := &domain.WriteResult{Identities: make([]domain.Identity, 0, len(rows))}
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unexpected write result type %T", row)
		}
		id := domain.Identity{}
		id.Key, _ = m["_key"].(string)
		id.ID, _ = m["_id"].(string)
		id.Rev, _ = m["_rev"].(string)
		result.Identities = append(result.Identities, id)
	}
	result.Count = len(result.Identities)
	return result, nil
}

func scalarCount(rows []interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	}
	return 0, fmt.Errorf("unexpected count result type %T", rows[0])
}

// usesCollectionBind reports whether a hand-written query expects the
// adapter to bind the collection name.
func usesCollectionBind(query string) bool {
	return strings.Contains(query, "@@collection")
}

var (
	_ domain.RecordStore   = (*Adapter)(nil)
	_ domain.ModelStore    = (*Adapter)(nil)
	_ domain.HealthChecker = (*Adapter)(nil)
)
