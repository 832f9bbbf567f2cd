package records

import (
	"context"
	"fmt"

	"github.com/iyobo/jollof-data-arangodb/internal/aql"
	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// SaveModel writes a model instance. A persisted model is updated in place by
// its primary key; a new one is created and receives the assigned identity in
// m.IDs. m.Data is only read.
func (a *Adapter) SaveModel(ctx context.Context, m *domain.Model) (*domain.WriteResult, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", domain.ErrInvalidParams)
	}

	if m.IsPersisted() {
		return a.Update(ctx, m.CollectionName, aql.ByID(m.IDs.Key), m.Data, domain.Params{})
	}

	res, err := a.Create(ctx, m.CollectionName, m.Data, domain.Params{})
	if err != nil {
		return nil, err
	}
	if len(res.Identities) == 0 || res.Identities[0].Key == "" {
		return nil, fmt.Errorf("create %s: backend returned no identity", m.CollectionName)
	}
	m.IDs = res.Identities[0]
	return res, nil
}

// RemoveModel deletes the document behind a persisted model.
func (a *Adapter) RemoveModel(ctx context.Context, m *domain.Model) (*domain.WriteResult, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", domain.ErrInvalidParams)
	}
	if !m.IsPersisted() {
		return nil, fmt.Errorf("remove %s: %w", m.CollectionName, domain.ErrModelNotPersisted)
	}
	return a.Remove(ctx, m.CollectionName, aql.ByID(m.IDs.Key), domain.Params{})
}
