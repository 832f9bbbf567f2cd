package domain

import "strings"

// IndexKind enumerates the physical index kinds a schema can declare.
type IndexKind int

const (
	IndexUnknown IndexKind = iota
	IndexGeo
	IndexList
	IndexPersistent
	IndexHash
	IndexFullText
)

// GeoPoint is the only geo subtype the backend primitive supports.
const GeoPoint = "point"

var indexKindNames = map[string]IndexKind{
	"geo":        IndexGeo,
	"list":       IndexList,
	"persistent": IndexPersistent,
	"hash":       IndexHash,
	"fullText":   IndexFullText,
}

// ParseIndexKind maps a schema type string to an IndexKind.
// Unrecognised strings yield IndexUnknown, which provisioning skips.
func ParseIndexKind(s string) IndexKind {
	if k, ok := indexKindNames[s]; ok {
		return k
	}
	return IndexUnknown
}

func (k IndexKind) String() string {
	for name, kind := range indexKindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// IndexOptions holds backend-specific index flags (unique, sparse, ...).
// Lookups fall back to the lower-cased key since configuration loaders fold
// map keys to lower case.
type IndexOptions map[string]interface{}

// Lookup returns the raw flag value.
func (o IndexOptions) Lookup(key string) interface{} {
	if v, ok := o[key]; ok {
		return v
	}
	return o[strings.ToLower(key)]
}

// Bool returns the flag as a bool, false when absent or of another type.
func (o IndexOptions) Bool(key string) bool {
	v, _ := o.Lookup(key).(bool)
	return v
}

// Int returns the flag as an int. Config decoders hand numbers over as
// int, int64 or float64 depending on the source, so all three are accepted.
func (o IndexOptions) Int(key string) int {
	switch v := o.Lookup(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (o IndexOptions) String(key string) string {
	v, _ := o.Lookup(key).(string)
	return v
}

// IndexSpec is one declared index. It maps to exactly one index creation call.
type IndexSpec struct {
	Kind    IndexKind
	Subtype string
	Fields  []string
	Opts    IndexOptions
}

// FullTextField returns the single field a full-text index is built on.
func (s IndexSpec) FullTextField() (string, bool) {
	if len(s.Fields) == 0 || s.Fields[0] == "" {
		return "", false
	}
	return s.Fields[0], true
}

// IsGeoPoint reports whether a geo spec targets point fields.
// An omitted subtype defaults to point.
func (s IndexSpec) IsGeoPoint() bool {
	return s.Subtype == "" || strings.EqualFold(s.Subtype, GeoPoint)
}

// IndexDecl is an index declaration as it appears in configuration.
// Fields may be a single string or a list of strings.
type IndexDecl struct {
	Type    string                 `mapstructure:"type" json:"type"`
	Subtype string                 `mapstructure:"subtype" json:"subtype,omitempty"`
	Fields  interface{}            `mapstructure:"fields" json:"fields"`
	Opts    map[string]interface{} `mapstructure:"opts" json:"opts,omitempty"`
}

// Spec converts the declaration into an IndexSpec.
func (d IndexDecl) Spec() IndexSpec {
	spec := IndexSpec{
		Kind:    ParseIndexKind(d.Type),
		Subtype: d.Subtype,
		Opts:    IndexOptions(d.Opts),
	}
	if spec.Opts == nil {
		spec.Opts = IndexOptions{}
	}

	switch f := d.Fields.(type) {
	case string:
		spec.Fields = []string{f}
	case []string:
		spec.Fields = append([]string(nil), f...)
	case []interface{}:
		fields := make([]string, 0, len(f))
		for _, v := range f {
			s, ok := v.(string)
			if !ok {
				// Mixed lists are not a valid field shape.
				fields = nil
				break
			}
			fields = append(fields, s)
		}
		spec.Fields = fields
	}

	// Full-text indexes take exactly one field: the first of a list.
	if spec.Kind == IndexFullText && len(spec.Fields) > 1 {
		spec.Fields = spec.Fields[:1]
	}

	return spec
}

// Schema declares one collection and its indexes.
type Schema struct {
	Name    string
	Indexes []IndexSpec
}

// SchemaDecl is a schema as it appears in configuration.
type SchemaDecl struct {
	Name    string      `mapstructure:"name" json:"name"`
	Indexes []IndexDecl `mapstructure:"indexes" json:"indexes"`
}

// Schema converts the declaration into a Schema.
func (d SchemaDecl) Schema() Schema {
	s := Schema{Name: d.Name, Indexes: make([]IndexSpec, 0, len(d.Indexes))}
	for _, decl := range d.Indexes {
		s.Indexes = append(s.Indexes, decl.Spec())
	}
	return s
}
