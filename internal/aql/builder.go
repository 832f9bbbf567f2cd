package aql

import (
	"fmt"
	"math"
	"strings"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// SortBy resolves sorting params. The "id" alias becomes the primary key
// attribute and an empty order defaults to ascending.
func SortBy(s *domain.Sorting) (*Sort, error) {
	if s == nil {
		return nil, nil
	}

	field := s.Sort
	if field == domain.SortByID {
		field = domain.PrimaryIDField
	}
	if field == "" {
		return nil, fmt.Errorf("%w: empty sort field", domain.ErrInvalidParams)
	}

	order := domain.SortOrder(strings.ToUpper(string(s.Order)))
	switch order {
	case "":
		order = domain.SortAsc
	case domain.SortAsc, domain.SortDesc:
	default:
		return nil, fmt.Errorf("%w: sort order %q", domain.ErrInvalidParams, s.Order)
	}

	return &Sort{Field: field, Order: order}, nil
}

// Page converts 1-indexed paging params into an offset/count limit.
func Page(p *domain.Paging) (*Limit, error) {
	if p == nil {
		return nil, nil
	}
	if p.Page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1, got %d", domain.ErrInvalidParams, p.Page)
	}
	if p.Limit < 1 {
		return nil, fmt.Errorf("%w: limit must be >= 1, got %d", domain.ErrInvalidParams, p.Limit)
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return nil, fmt.Errorf("%w: page %d with limit %d is out of range", domain.ErrInvalidParams, p.Page, p.Limit)
	}
	return &Limit{Offset: p.Offset(), Count: p.Limit}, nil
}

// Find builds a query returning the rows matching criteria, sorted and paged
// according to params.
func Find(collection string, criteria domain.Criteria, params domain.Params) (Query, error) {
	s, err := SortBy(params.Sorting)
	if err != nil {
		return Query{}, err
	}
	l, err := Page(params.Paging)
	if err != nil {
		return Query{}, err
	}
	return Query{
		Collection: collection,
		Conditions: Where(criteria),
		Sort:       s,
		Limit:      l,
		Action:     ActionReturn,
	}, nil
}

// FindOne builds a query returning at most the first matching row.
func FindOne(collection string, criteria domain.Criteria, params domain.Params) (Query, error) {
	q, err := Find(collection, criteria, domain.Params{Sorting: params.Sorting})
	if err != nil {
		return Query{}, err
	}
	q.Limit = &Limit{Offset: 0, Count: 1}
	return q, nil
}

// Count builds the companion count query. It honours the filter but ignores
// sorting and paging.
func Count(collection string, criteria domain.Criteria) Query {
	return Query{
		Collection: collection,
		Conditions: Where(criteria),
		Action:     ActionCount,
	}
}

func Update(collection string, criteria domain.Criteria, values map[string]interface{}) Query {
	return Query{
		Collection: collection,
		Conditions: Where(criteria),
		Action:     ActionUpdate,
		Values:     values,
	}
}

func Remove(collection string, criteria domain.Criteria) Query {
	return Query{
		Collection: collection,
		Conditions: Where(criteria),
		Action:     ActionRemove,
	}
}

// ByID is the criteria selecting a single document by primary key.
func ByID(id string) domain.Criteria {
	return domain.Criteria{domain.PrimaryIDField: id}
}
