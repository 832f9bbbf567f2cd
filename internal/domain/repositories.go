package domain

import "context"

// IndexBackend exposes one creation primitive per index kind.
// Each returns created=false when an identical index already existed.
type IndexBackend interface {
	EnsureGeoIndex(ctx context.Context, collection string, fields []string, opts IndexOptions) (bool, error)
	EnsureSkipListIndex(ctx context.Context, collection string, fields []string, opts IndexOptions) (bool, error)
	EnsurePersistentIndex(ctx context.Context, collection string, fields []string, opts IndexOptions) (bool, error)
	EnsureHashIndex(ctx context.Context, collection string, fields []string, opts IndexOptions) (bool, error)
	EnsureFullTextIndex(ctx context.Context, collection string, field string, opts IndexOptions) (bool, error)
}

// Backend is the document database the adapter talks to.
type Backend interface {
	IndexBackend

	// CreateCollection creates a collection. A duplicate name yields an
	// error wrapping ErrAlreadyExists.
	CreateCollection(ctx context.Context, name string) error

	// Insert stores a new document and returns its identity.
	Insert(ctx context.Context, collection string, doc map[string]interface{}, opts Options) (Identity, error)

	// Query runs a bound query and returns every result.
	Query(ctx context.Context, query string, bindVars map[string]interface{}, opts Options) ([]interface{}, error)

	CheckConnection(ctx context.Context) error
	Close() error
}

// RecordStore is the CRUD surface offered to the model layer.
type RecordStore interface {
	FindByID(ctx context.Context, collection, id string, params Params) (Record, error)
	FindOne(ctx context.Context, collection string, criteria Criteria, params Params) (Record, error)
	Find(ctx context.Context, collection string, criteria Criteria, params Params) ([]Record, error)
	FindQL(ctx context.Context, collection string, criteria Criteria, params Params) (*QueryResult, error)
	Create(ctx context.Context, collection string, data map[string]interface{}, params Params) (*WriteResult, error)
	Update(ctx context.Context, collection string, criteria Criteria, values map[string]interface{}, params Params) (*WriteResult, error)
	Remove(ctx context.Context, collection string, criteria Criteria, params Params) (*WriteResult, error)
}

// ModelStore persists whole model instances.
type ModelStore interface {
	SaveModel(ctx context.Context, m *Model) (*WriteResult, error)
	RemoveModel(ctx context.Context, m *Model) (*WriteResult, error)
}

// HealthChecker reports backend reachability.
type HealthChecker interface {
	CheckConnection(ctx context.Context) error
}
