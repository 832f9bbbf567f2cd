package domain

// PrimaryIDField is the backend's primary identity attribute.
const PrimaryIDField = "_key"

// SortByID is the sort field alias that resolves to PrimaryIDField.
const SortByID = "id"

// Record is a document as stored in, or returned by, the backend.
type Record map[string]interface{}

// Criteria is an equality filter: every field must equal its value.
// An empty Criteria matches every document.
type Criteria map[string]interface{}

// Options are passed through to the backend client untouched.
type Options map[string]interface{}

// SortOrder is the direction of a sort clause.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Paging selects a 1-indexed page of Limit items.
type Paging struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset is the number of items skipped before the page starts. It is only
// meaningful once Page and Limit have been validated, since the product can
// overflow.
func (p Paging) Offset() int {
	return p.Limit * (p.Page - 1)
}

// Sorting orders results by a single field.
type Sorting struct {
	Sort  string    `json:"sort"`
	Order SortOrder `json:"order"`
}

// Params carries the optional knobs of a read or write operation.
type Params struct {
	Opts    Options
	Paging  *Paging
	Sorting *Sorting
}

// Identity is the backend-assigned identity metadata of a document.
type Identity struct {
	Key string `json:"_key"`
	ID  string `json:"_id"`
	Rev string `json:"_rev"`
}

// IsZero reports whether no identity has been assigned.
func (i Identity) IsZero() bool {
	return i.Key == "" && i.ID == "" && i.Rev == ""
}

// WriteResult summarises a create, update or remove.
type WriteResult struct {
	Count      int        `json:"count"`
	Identities []Identity `json:"identities"`
}

// QueryResult is the result of a generated paged query.
type QueryResult struct {
	Items []Record `json:"items"`
	Count int64    `json:"count"`
}

// Model is an in-memory model instance. Data is the user payload and IDs the
// identity metadata; the two never share keys.
type Model struct {
	CollectionName string
	Data           map[string]interface{}
	IDs            Identity
}

// IsPersisted reports whether the model has been written to the backend.
func (m *Model) IsPersisted() bool {
	return m.IDs.Key != ""
}
