package records

import (
	"context"
	"fmt"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// QueryType selects how RunQuery shapes its result.
type QueryType string

const (
	QueryGetOne QueryType = "GET_ONE"
	QueryGetAll QueryType = "GET_ALL"
)

// BuiltQuery is a caller-written AQL statement.
type BuiltQuery struct {
	Query    string
	BindVars map[string]interface{}
	Type     QueryType
}

// QueryBuilderFunc produces a query from the operation params.
type QueryBuilderFunc func(params domain.Params) (BuiltQuery, error)

// RunQuery executes a caller-built query through the adapter. GET_ONE
// returns the first result (nil when there is none), any other type returns
// the full result slice. If the query references @@collection and the
// caller did not bind it, it is bound to collection.
func (a *Adapter) RunQuery(ctx context.Context, collection string, build QueryBuilderFunc, params domain.Params) (interface{}, error) {
	var result interface{}
	err := a.run(ctx, opRunQuery, collection, func(ctx context.Context) error {
		if build == nil {
			return fmt.Errorf("%w: nil query builder", domain.ErrInvalidParams)
		}
		bq, err := build(params)
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if bq.Query == "" {
			return fmt.Errorf("%w: empty query", domain.ErrInvalidParams)
		}

		binds := make(map[string]interface{}, len(bq.BindVars)+1)
		for k, v := range bq.BindVars {
			binds[k] = v
		}
		if _, ok := binds["@collection"]; !ok && usesCollectionBind(bq.Query) {
			binds["@collection"] = collection
		}

		rows, err := a.backend.Query(ctx, bq.Query, binds, params.Opts)
		if err != nil {
			return err
		}

		if bq.Type == QueryGetOne {
			if len(rows) > 0 {
				result = rows[0]
			}
			return nil
		}
		result = rows
		return nil
	})
	return result, err
}
