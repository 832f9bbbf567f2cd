package records

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iyobo/jollof-data-arangodb/internal/config"
	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// MockBackend is a mock implementation of domain.Backend
type MockBackend struct {
	mock.Mock
}

var _ domain.Backend = (*MockBackend)(nil)

func (m *MockBackend) CreateCollection(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockBackend) EnsureGeoIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	args := m.Called(ctx, collection, fields, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) EnsureSkipListIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	args := m.Called(ctx, collection, fields, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) EnsurePersistentIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	args := m.Called(ctx, collection, fields, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) EnsureHashIndex(ctx context.Context, collection string, fields []string, opts domain.IndexOptions) (bool, error) {
	args := m.Called(ctx, collection, fields, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) EnsureFullTextIndex(ctx context.Context, collection string, field string, opts domain.IndexOptions) (bool, error) {
	args := m.Called(ctx, collection, field, opts)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Insert(ctx context.Context, collection string, doc map[string]interface{}, opts domain.Options) (domain.Identity, error) {
	args := m.Called(ctx, collection, doc, opts)
	return args.Get(0).(domain.Identity), args.Error(1)
}

func (m *MockBackend) Query(ctx context.Context, query string, bindVars map[string]interface{}, opts domain.Options) ([]interface{}, error) {
	args := m.Called(ctx, query, bindVars, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interface{}), args.Error(1)
}

func (m *MockBackend) CheckConnection(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// newConfiguredAdapter returns an adapter with the users collection already
// provisioned.
func newConfiguredAdapter(t *testing.T, backend *MockBackend, logger *zap.Logger, opts Options) *Adapter {
	t.Helper()
	backend.On("CreateCollection", mock.Anything, "users").Return(nil).Once()

	a := NewAdapter(backend, logger, opts)
	ok, err := a.ConfigureCollection(context.Background(), domain.Schema{Name: "users"})
	require.NoError(t, err)
	require.True(t, ok)
	return a
}

func TestOperationOnUnconfiguredCollection(t *testing.T) {
	backend := new(MockBackend)
	a := NewAdapter(backend, zaptest.NewLogger(t), Options{})

	_, err := a.FindByID(context.Background(), "ghosts", "1", domain.Params{})
	assert.ErrorIs(t, err, domain.ErrCollectionNotConfigured)
	backend.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindByID(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	doc := map[string]interface{}{"_key": "42", "email": "a@b.c"}
	backend.On("Query", mock.Anything,
		"FOR row IN @@collection FILTER row._key == @key LIMIT 0, 1 RETURN row",
		map[string]interface{}{"@collection": "users", "key": "42"},
		domain.Options(nil),
	).Return([]interface{}{doc}, nil).Once()

	rec, err := a.FindByID(context.Background(), "users", "42", domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, domain.Record(doc), rec)
	backend.AssertExpectations(t)
}

func TestFindByIDNotFoundIsNil(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	backend.On("Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]interface{}{}, nil).Once()

	rec, err := a.FindByID(context.Background(), "users", "missing", domain.Params{})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBackendErrorIsLoggedAndWrapped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zap.New(core), Options{})

	boom := errors.New("connection reset")
	backend.On("Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, boom).Once()

	_, err := a.Find(context.Background(), "users", domain.Criteria{"status": "active"}, domain.Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "find users")

	failures := logs.FilterMessage("record operation failed").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, "find", fields["operation"])
	assert.Equal(t, "users", fields["collection"])
}

func TestFindRejectsInvalidPaging(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	_, err := a.Find(context.Background(), "users", nil, domain.Params{Paging: &domain.Paging{Page: 0, Limit: 10}})
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	backend.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindQLRejectsOutOfRangePage(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	_, err := a.FindQL(context.Background(), "users", nil, domain.Params{
		Paging: &domain.Paging{Page: math.MaxInt, Limit: 100},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	backend.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindQLReturnsItemsAndCount(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	criteria := domain.Criteria{"status": "active"}
	binds := map[string]interface{}{"@collection": "users", "status": "active"}

	backend.On("Query", mock.Anything,
		"FOR row IN @@collection FILTER row.status == @status SORT row._key DESC LIMIT 10, 10 RETURN row",
		binds, domain.Options(nil),
	).Return([]interface{}{
		map[string]interface{}{"_key": "11"},
		map[string]interface{}{"_key": "12"},
	}, nil).Once()
	backend.On("Query", mock.Anything,
		"FOR row IN @@collection FILTER row.status == @status COLLECT WITH COUNT INTO length RETURN length",
		binds, domain.Options(nil),
	).Return([]interface{}{float64(57)}, nil).Once()

	res, err := a.FindQL(context.Background(), "users", criteria, domain.Params{
		Paging:  &domain.Paging{Page: 2, Limit: 10},
		Sorting: &domain.Sorting{Sort: "id", Order: "desc"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, int64(57), res.Count)
	backend.AssertExpectations(t)
}

func TestCreateGeneratesKeyWithoutTouchingInput(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{GenerateKeys: true})
	a.newKey = func() string { return "generated" }

	data := map[string]interface{}{"email": "a@b.c"}
	backend.On("Insert", mock.Anything, "users",
		map[string]interface{}{"email": "a@b.c", "_key": "generated"}, domain.Options(nil),
	).Return(domain.Identity{Key: "generated", ID: "users/generated", Rev: "_r1"}, nil).Once()

	res, err := a.Create(context.Background(), "users", data, domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "users/generated", res.Identities[0].ID)
	assert.NotContains(t, data, "_key")
}

func TestCreateKeepsExplicitKey(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{GenerateKeys: true})

	data := map[string]interface{}{"_key": "mine"}
	backend.On("Insert", mock.Anything, "users", data, domain.Options(nil)).
		Return(domain.Identity{Key: "mine"}, nil).Once()

	_, err := a.Create(context.Background(), "users", data, domain.Params{})
	require.NoError(t, err)
	backend.AssertExpectations(t)
}

func TestUpdateAndRemoveReportAffectedDocuments(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	written := []interface{}{
		map[string]interface{}{"_key": "1", "_id": "users/1", "_rev": "a"},
		map[string]interface{}{"_key": "2", "_id": "users/2", "_rev": "b"},
	}
	backend.On("Query", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, " UPDATE row WITH @values IN @@collection")
	}), map[string]interface{}{
		"@collection": "users",
		"status":      "pending",
		"values":      map[string]interface{}{"status": "active"},
	}, domain.Options(nil)).Return(written, nil).Once()
	backend.On("Query", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, " REMOVE row IN @@collection")
	}), mock.Anything, domain.Options(nil)).Return(written[:1], nil).Once()

	ctx := context.Background()
	upd, err := a.Update(ctx, "users", domain.Criteria{"status": "pending"}, map[string]interface{}{"status": "active"}, domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, upd.Count)
	assert.Equal(t, domain.Identity{Key: "2", ID: "users/2", Rev: "b"}, upd.Identities[1])

	rem, err := a.Remove(ctx, "users", domain.Criteria{"status": "active"}, domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, rem.Count)
	backend.AssertExpectations(t)
}

func TestRunQuery(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	const q = "FOR u IN @@collection FILTER u.age > @age RETURN u"
	backend.On("Query", mock.Anything, q,
		map[string]interface{}{"@collection": "users", "age": 30},
		domain.Options(nil),
	).Return([]interface{}{"first", "second"}, nil)

	build := func(typ QueryType) QueryBuilderFunc {
		return func(domain.Params) (BuiltQuery, error) {
			return BuiltQuery{Query: q, BindVars: map[string]interface{}{"age": 30}, Type: typ}, nil
		}
	}

	ctx := context.Background()
	one, err := a.RunQuery(ctx, "users", build(QueryGetOne), domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, "first", one)

	all, err := a.RunQuery(ctx, "users", build(QueryGetAll), domain.Params{})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"first", "second"}, all)
}

func TestRunQueryBuilderError(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	bad := errors.New("bad input")
	_, err := a.RunQuery(context.Background(), "users", func(domain.Params) (BuiltQuery, error) {
		return BuiltQuery{}, bad
	}, domain.Params{})
	assert.ErrorIs(t, err, bad)
}

func TestOperationHonoursCancellation(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{MaxConcurrentOps: 1})

	// Hold the only slot so the next call has to wait on the context.
	require.NoError(t, a.limiter.Acquire(context.Background()))
	defer a.limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Find(ctx, "users", nil, domain.Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSaveModel(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})
	ctx := context.Background()

	m := &domain.Model{CollectionName: "users", Data: map[string]interface{}{"email": "a@b.c"}}
	backend.On("Insert", mock.Anything, "users", m.Data, domain.Options(nil)).
		Return(domain.Identity{Key: "7", ID: "users/7", Rev: "_r1"}, nil).Once()

	_, err := a.SaveModel(ctx, m)
	require.NoError(t, err)
	assert.True(t, m.IsPersisted())
	assert.Equal(t, "users/7", m.IDs.ID)
	assert.Equal(t, map[string]interface{}{"email": "a@b.c"}, m.Data)

	m.Data["email"] = "x@y.z"
	backend.On("Query", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "FILTER row._key == @key UPDATE row")
	}), map[string]interface{}{
		"@collection": "users",
		"key":         "7",
		"values":      map[string]interface{}{"email": "x@y.z"},
	}, domain.Options(nil)).Return([]interface{}{
		map[string]interface{}{"_key": "7", "_id": "users/7", "_rev": "_r2"},
	}, nil).Once()

	res, err := a.SaveModel(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	backend.AssertExpectations(t)
}

func TestSaveModelWithoutDataUpdatesWithEmptyObject(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	backend.On("Query", mock.Anything, mock.Anything, map[string]interface{}{
		"@collection": "users",
		"key":         "7",
		"values":      map[string]interface{}{},
	}, domain.Options(nil)).Return([]interface{}{
		map[string]interface{}{"_key": "7", "_id": "users/7", "_rev": "_r2"},
	}, nil).Once()

	m := &domain.Model{CollectionName: "users", IDs: domain.Identity{Key: "7"}}
	res, err := a.SaveModel(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Nil(t, m.Data)
	backend.AssertExpectations(t)
}

func TestRemoveModelRequiresPersistedModel(t *testing.T) {
	backend := new(MockBackend)
	a := newConfiguredAdapter(t, backend, zaptest.NewLogger(t), Options{})

	_, err := a.RemoveModel(context.Background(), &domain.Model{CollectionName: "users"})
	assert.ErrorIs(t, err, domain.ErrModelNotPersisted)
	backend.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFactoryReusesAdapterPerConfig(t *testing.T) {
	dials := 0
	backend := new(MockBackend)
	f := NewFactory(zaptest.NewLogger(t), func(config.ArangoConfig, *zap.Logger) (domain.Backend, error) {
		dials++
		return backend, nil
	})

	cfg := config.ArangoConfig{Endpoints: []string{"http://b:8529", "http://a:8529"}, Database: "app"}
	first, err := f.Get(cfg, config.AdapterConfig{})
	require.NoError(t, err)

	reordered := config.ArangoConfig{Endpoints: []string{"http://a:8529", "http://b:8529"}, Database: "app"}
	second, err := f.Get(reordered, config.AdapterConfig{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dials)

	backend.On("Close").Return(nil).Once()
	require.NoError(t, f.Close())
	backend.AssertExpectations(t)
}

func TestFactoryDialError(t *testing.T) {
	f := NewFactory(zaptest.NewLogger(t), func(config.ArangoConfig, *zap.Logger) (domain.Backend, error) {
		return nil, domain.ErrNotConnected
	})
	_, err := f.Get(config.ArangoConfig{Endpoints: []string{"http://a:8529"}, Database: "app"}, config.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

// Integration test against a live server
func TestAdapterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	endpoint := os.Getenv("ARANGO_ENDPOINT")
	if endpoint == "" {
		t.Skip("ARANGO_ENDPOINT not set")
	}

	f := NewFactory(zaptest.NewLogger(t), nil)
	defer f.Close()

	a, err := f.Get(config.ArangoConfig{
		Endpoints:      []string{endpoint},
		Database:       "records_adapter_test",
		Username:       os.Getenv("ARANGO_USERNAME"),
		Password:       os.Getenv("ARANGO_PASSWORD"),
		CreateDatabase: true,
	}, config.AdapterConfig{GenerateKeys: true})
	require.NoError(t, err)

	ctx := context.Background()
	schema := domain.SchemaDecl{
		Name:    "users",
		Indexes: []domain.IndexDecl{{Type: "hash", Fields: []interface{}{"email"}}},
	}.Schema()
	ok, err := a.ConfigureCollection(ctx, schema)
	require.NoError(t, err)
	require.True(t, ok)

	email := "it-" + time.Now().Format("150405.000000") + "@example.com"
	m := &domain.Model{CollectionName: "users", Data: map[string]interface{}{"email": email, "status": "new"}}
	_, err = a.SaveModel(ctx, m)
	require.NoError(t, err)
	require.True(t, m.IsPersisted())

	rec, err := a.FindByID(ctx, "users", m.IDs.Key, domain.Params{})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, email, rec["email"])

	res, err := a.FindQL(ctx, "users", domain.Criteria{"email": email}, domain.Params{
		Paging: &domain.Paging{Page: 1, Limit: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)

	_, err = a.RemoveModel(ctx, m)
	require.NoError(t, err)

	rec, err = a.FindByID(ctx, "users", m.IDs.Key, domain.Params{})
	require.NoError(t, err)
	assert.Nil(t, rec)
}
