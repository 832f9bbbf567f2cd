package repositories

import (
	"context"

	driver "github.com/arangodb/go-driver"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// Index option keys understood in schema declarations.
const (
	optUnique      = "unique"
	optSparse      = "sparse"
	optDeduplicate = "deduplicate"
	optGeoJSON     = "geoJson"
	optMinLength   = "minLength"
	optName        = "name"
)

// Pass-through operation option keys.
const (
	optBatchSize   = "batchSize"
	optCache       = "cache"
	optWaitForSync = "waitForSync"
)

func geoIndexOptions(o domain.IndexOptions) *driver.EnsureGeoIndexOptions {
	return &driver.EnsureGeoIndexOptions{
		GeoJSON: o.Bool(optGeoJSON),
		Name:    o.String(optName),
	}
}

func skipListIndexOptions(o domain.IndexOptions) *driver.EnsureSkipListIndexOptions {
	return &driver.EnsureSkipListIndexOptions{
		Unique:        o.Bool(optUnique),
		Sparse:        o.Bool(optSparse),
		NoDeduplicate: noDeduplicate(o),
		Name:          o.String(optName),
	}
}

func persistentIndexOptions(o domain.IndexOptions) *driver.EnsurePersistentIndexOptions {
	return &driver.EnsurePersistentIndexOptions{
		Unique: o.Bool(optUnique),
		Sparse: o.Bool(optSparse),
		Name:   o.String(optName),
	}
}

func hashIndexOptions(o domain.IndexOptions) *driver.EnsureHashIndexOptions {
	return &driver.EnsureHashIndexOptions{
		Unique:        o.Bool(optUnique),
		Sparse:        o.Bool(optSparse),
		NoDeduplicate: noDeduplicate(o),
		Name:          o.String(optName),
	}
}

func fullTextIndexOptions(o domain.IndexOptions) *driver.EnsureFullTextIndexOptions {
	return &driver.EnsureFullTextIndexOptions{
		MinLength: o.Int(optMinLength),
		Name:      o.String(optName),
	}
}

// Deduplication is on by default on the server; only an explicit false
// turns it off.
func noDeduplicate(o domain.IndexOptions) bool {
	v, ok := o.Lookup(optDeduplicate).(bool)
	return ok && !v
}

// withOptions moves recognised pass-through options onto the context, where
// the driver reads them.
func withOptions(ctx context.Context, opts domain.Options) context.Context {
	if len(opts) == 0 {
		return ctx
	}
	idx := domain.IndexOptions(opts)
	if n := idx.Int(optBatchSize); n > 0 {
		ctx = driver.WithQueryBatchSize(ctx, n)
	}
	if v, ok := opts[optCache].(bool); ok {
		ctx = driver.WithQueryCache(ctx, v)
	}
	if v, ok := opts[optWaitForSync].(bool); ok {
		ctx = driver.WithWaitForSync(ctx, v)
	}
	return ctx
}
