// Package aql builds parametrised AQL queries from criteria, sorting and
// paging. Values never reach the query text: they are bound as variables.
// Attribute names that are plain identifiers are rendered inline, anything
// else is bound too and accessed as row[@attr].
package aql

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iyobo/jollof-data-arangodb/internal/domain"
)

// Action is what the query does with each matched row.
type Action int

const (
	ActionReturn Action = iota
	ActionCount
	ActionUpdate
	ActionRemove
)

const (
	rowVar        = "row"
	collectionVar = "@collection"
	valuesVar     = "values"
	attrVar       = "attr"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Keywords that must be quoted when used as attribute names.
var keywords = map[string]struct{}{
	"AGGREGATE": {}, "ALL": {}, "AND": {}, "ANY": {}, "ASC": {}, "COLLECT": {},
	"DESC": {}, "DISTINCT": {}, "FALSE": {}, "FILTER": {}, "FOR": {}, "GRAPH": {},
	"IN": {}, "INBOUND": {}, "INSERT": {}, "INTO": {}, "K_PATHS": {},
	"K_SHORTEST_PATHS": {}, "LET": {}, "LIKE": {}, "LIMIT": {}, "NONE": {},
	"NOT": {}, "NULL": {}, "OR": {}, "OUTBOUND": {}, "PRUNE": {}, "REMOVE": {},
	"REPLACE": {}, "RETURN": {}, "SEARCH": {}, "SHORTEST_PATH": {}, "SORT": {},
	"TRUE": {}, "UPDATE": {}, "UPSERT": {}, "WINDOW": {}, "WITH": {},
}

// Condition is a single equality test.
type Condition struct {
	Field string
	Value interface{}
}

// Sort orders returned rows by one attribute.
type Sort struct {
	Field string
	Order domain.SortOrder
}

// Limit skips Offset rows and returns at most Count.
type Limit struct {
	Offset int
	Count  int
}

// Query is the clause tree of one AQL statement over a single collection.
type Query struct {
	Collection string
	Conditions []Condition
	Sort       *Sort
	Limit      *Limit
	Action     Action
	Values     map[string]interface{}
}

// Render returns the query text and its bind variables.
func (q Query) Render() (string, map[string]interface{}, error) {
	if q.Collection == "" {
		return "", nil, fmt.Errorf("%w: empty collection name", domain.ErrInvalidParams)
	}

	binds := map[string]interface{}{collectionVar: q.Collection}
	names := newBindNames(valuesVar)

	var b strings.Builder
	b.WriteString("FOR ")
	b.WriteString(rowVar)
	b.WriteString(" IN @@collection")

	if len(q.Conditions) > 0 {
		parts := make([]string, 0, len(q.Conditions))
		for _, c := range q.Conditions {
			attr, err := names.attribute(c.Field, binds)
			if err != nil {
				return "", nil, err
			}
			name := names.take(c.Field)
			binds[name] = c.Value
			parts = append(parts, attr+" == @"+name)
		}
		b.WriteString(" FILTER ")
		b.WriteString(strings.Join(parts, " && "))
	}

	switch q.Action {
	case ActionCount:
		b.WriteString(" COLLECT WITH COUNT INTO length RETURN length")
	case ActionUpdate:
		values := q.Values
		if values == nil {
			// UPDATE row WITH null is rejected by the server.
			values = map[string]interface{}{}
		}
		binds[valuesVar] = values
		b.WriteString(" UPDATE row WITH @values IN @@collection")
		b.WriteString(" RETURN { _key: NEW._key, _id: NEW._id, _rev: NEW._rev }")
	case ActionRemove:
		b.WriteString(" REMOVE row IN @@collection")
		b.WriteString(" RETURN { _key: OLD._key, _id: OLD._id, _rev: OLD._rev }")
	default:
		if q.Sort != nil {
			attr, err := names.attribute(q.Sort.Field, binds)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(" SORT ")
			b.WriteString(attr)
			b.WriteString(" ")
			b.WriteString(string(q.Sort.Order))
		}
		if q.Limit != nil {
			b.WriteString(" LIMIT ")
			b.WriteString(strconv.Itoa(q.Limit.Offset))
			b.WriteString(", ")
			b.WriteString(strconv.Itoa(q.Limit.Count))
		}
		b.WriteString(" RETURN row")
	}

	return b.String(), binds, nil
}

// attribute renders row.<path>. Identifier segments are written inline
// (keywords quoted); any other segment is bound and accessed by subscript,
// so names like "first-name" or "2fa" match the stored attribute exactly.
// Only structural problems, such as an empty segment, are rejected.
func (n *bindNames) attribute(field string, binds map[string]interface{}) (string, error) {
	if field == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidField)
	}

	var b strings.Builder
	b.WriteString(rowVar)
	for _, s := range strings.Split(field, ".") {
		switch {
		case s == "":
			return "", fmt.Errorf("%w: empty segment in %q", domain.ErrInvalidField, field)
		case identRe.MatchString(s):
			if _, ok := keywords[strings.ToUpper(s)]; ok {
				b.WriteString(".`" + s + "`")
			} else {
				b.WriteString("." + s)
			}
		default:
			name := n.take(attrVar)
			binds[name] = s
			b.WriteString("[@" + name + "]")
		}
	}
	return b.String(), nil
}

// bindNames hands out unique bind variable names derived from field names.
// Bind names are restricted to ASCII letters, digits and underscores and may
// not start with an underscore, so "_key" binds as @key and "first-name" as
// @first_name.
type bindNames struct {
	used map[string]struct{}
}

func newBindNames(reserved ...string) *bindNames {
	n := &bindNames{used: make(map[string]struct{}, len(reserved))}
	for _, r := range reserved {
		n.used[r] = struct{}{}
	}
	return n
}

func (n *bindNames) take(field string) string {
	base := strings.TrimLeft(strings.Map(bindRune, field), "_")
	if base == "" || !isASCIILetter(base[0]) {
		base = "v" + base
	}

	name := base
	for i := 2; ; i++ {
		if _, taken := n.used[name]; !taken {
			break
		}
		name = base + strconv.Itoa(i)
	}
	n.used[name] = struct{}{}
	return name
}

func bindRune(r rune) rune {
	if r < 0x80 && (isASCIILetter(byte(r)) || (r >= '0' && r <= '9') || r == '_') {
		return r
	}
	return '_'
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Where turns criteria into conditions ordered by field name.
func Where(criteria domain.Criteria) []Condition {
	if len(criteria) == 0 {
		return nil
	}
	fields := make([]string, 0, len(criteria))
	for f := range criteria {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	conds := make([]Condition, 0, len(fields))
	for _, f := range fields {
		conds = append(conds, Condition{Field: f, Value: criteria[f]})
	}
	return conds
}
