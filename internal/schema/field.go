package schema

// FieldType is an EDM type name understood by the search service.
type FieldType string

const (
	TypeString           FieldType = "Edm.String"
	TypeInt64            FieldType = "Edm.Int64"
	TypeStringCollection FieldType = "Collection(Edm.String)"
	TypeSingleCollection FieldType = "Collection(Edm.Single)"
)

// Attr is a bit set of field attributes.
type Attr uint8

const (
	AttrKey Attr = 1 << iota
	AttrSearchable
	AttrFilterable
	AttrSortable
	AttrFacetable
	AttrRetrievable
)

// Field is one entry of an index field schema.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Key         bool      `json:"key"`
	Searchable  bool      `json:"searchable"`
	Filterable  bool      `json:"filterable"`
	Sortable    bool      `json:"sortable"`
	Facetable   bool      `json:"facetable"`
	Retrievable bool      `json:"retrievable"`

	// Dimensions and VectorSearchProfile are set on vector fields only.
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

// NewField creates a field with the given attributes. Fields are always
// retrievable unless the caller builds the struct by hand.
func NewField(name string, typ FieldType, attrs Attr) Field {
	attrs |= AttrRetrievable
	return Field{
		Name:        name,
		Type:        typ,
		Key:         attrs&AttrKey != 0,
		Searchable:  attrs&AttrSearchable != 0,
		Filterable:  attrs&AttrFilterable != 0,
		Sortable:    attrs&AttrSortable != 0,
		Facetable:   attrs&AttrFacetable != 0,
		Retrievable: true,
	}
}

// NewVectorField creates a searchable single-precision vector field.
func NewVectorField(name string, dimensions int, profile string) Field {
	f := NewField(name, TypeSingleCollection, AttrSearchable)
	f.Dimensions = dimensions
	f.VectorSearchProfile = profile
	return f
}

// IsVector reports whether f is a vector field.
func (f Field) IsVector() bool {
	return f.Type == TypeSingleCollection
}
