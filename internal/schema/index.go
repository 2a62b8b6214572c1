package schema

import (
	"fmt"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// Vector search defaults for the chunk index.
const (
	DefaultDimensions     = 1536
	DefaultHNSWM          = 4
	DefaultEfConstruction = 400
	DefaultEfSearch       = 1000

	vectorAlgorithmName = "default-hnsw"
	vectorProfileName   = "default-vector-profile"
	semanticConfigName  = "default"
)

// Metric is a vector similarity metric.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricEuclidean  Metric = "euclidean"
	MetricDotProduct Metric = "dotProduct"
)

// HNSWParameters tune the approximate nearest neighbor graph.
type HNSWParameters struct {
	M              int    `json:"m"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
	Metric         Metric `json:"metric"`
}

// DefaultHNSW returns the parameters used for chunk indexes.
func DefaultHNSW() HNSWParameters {
	return HNSWParameters{
		M:              DefaultHNSWM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		Metric:         MetricCosine,
	}
}

// VectorAlgorithm is a named vector search algorithm configuration.
type VectorAlgorithm struct {
	Name string          `json:"name"`
	Kind string          `json:"kind"`
	HNSW *HNSWParameters `json:"hnswParameters,omitempty"`
}

// VectorProfile binds vector fields to an algorithm.
type VectorProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

// VectorSearch is the vector configuration of an index.
type VectorSearch struct {
	Algorithms []VectorAlgorithm `json:"algorithms"`
	Profiles   []VectorProfile   `json:"profiles"`
}

// SemanticField references an index field by name.
type SemanticField struct {
	FieldName string `json:"fieldName"`
}

// PrioritizedFields orders the fields used for semantic ranking.
type PrioritizedFields struct {
	TitleField    *SemanticField  `json:"titleField,omitempty"`
	ContentFields []SemanticField `json:"prioritizedContentFields"`
}

// SemanticConfiguration is a named semantic ranking configuration.
type SemanticConfiguration struct {
	Name              string            `json:"name"`
	PrioritizedFields PrioritizedFields `json:"prioritizedFields"`
}

// SemanticSearch holds the semantic configurations of an index.
type SemanticSearch struct {
	Configurations []SemanticConfiguration `json:"configurations"`
}

// Index is a complete index definition.
type Index struct {
	Name         string          `json:"name"`
	Fields       []Field         `json:"fields"`
	VectorSearch *VectorSearch   `json:"vectorSearch,omitempty"`
	Semantic     *SemanticSearch `json:"semantic,omitempty"`
}

// KeyField returns the name of the key field, or "" if there is none.
func (ix Index) KeyField() string {
	for _, f := range ix.Fields {
		if f.Key {
			return f.Name
		}
	}
	return ""
}

// IndexSchema is the field layout of one index variant.
// It is implemented by DocumentSchema and ChunkSchema only.
type IndexSchema interface {
	Variant() Variant
	Fields() []Field
	VectorSearch() *VectorSearch
	SemanticTitle() string
	SemanticContent() []string
	isIndexSchema()
}

// DocumentSchema is one record per source document.
type DocumentSchema struct{}

func (DocumentSchema) isIndexSchema() {}

// Variant implements IndexSchema.
func (DocumentSchema) Variant() Variant { return VariantDocument }

// Fields implements IndexSchema.
func (DocumentSchema) Fields() []Field {
	return []Field{
		NewField("document_id", TypeString, AttrKey|AttrFilterable|AttrSortable),
		NewField("content", TypeString, AttrSearchable),
		NewField("filesize", TypeInt64, 0),
		NewField("filepath", TypeString, 0),
		NewField("metadata_storage_name", TypeString, AttrSearchable|AttrFilterable),
		NewField("metadata_storage_path", TypeString, 0),
		NewField("merged_content", TypeString, AttrSearchable),
		NewField("text", TypeStringCollection, AttrSearchable),
		NewField("layoutText", TypeStringCollection, AttrSearchable),
	}
}

// VectorSearch implements IndexSchema. Document indexes have no vectors.
func (DocumentSchema) VectorSearch() *VectorSearch { return nil }

// SemanticTitle implements IndexSchema.
func (DocumentSchema) SemanticTitle() string { return "filepath" }

// SemanticContent implements IndexSchema.
func (DocumentSchema) SemanticContent() []string { return []string{"content"} }

// ChunkSchema is one record per embedded chunk.
type ChunkSchema struct {
	Dimensions int
	HNSW       HNSWParameters
}

// NewChunkSchema returns a chunk schema with default HNSW parameters.
func NewChunkSchema(dimensions int) ChunkSchema {
	return ChunkSchema{Dimensions: dimensions, HNSW: DefaultHNSW()}
}

func (ChunkSchema) isIndexSchema() {}

// Variant implements IndexSchema.
func (ChunkSchema) Variant() Variant { return VariantChunk }

// Fields implements IndexSchema.
func (c ChunkSchema) Fields() []Field {
	return []Field{
		NewField("id", TypeString, AttrKey|AttrFilterable|AttrSortable),
		NewField("source_document_id", TypeString, 0),
		NewField("source_document_filepath", TypeString, 0),
		NewField("source_field_name", TypeString, 0),
		NewField("title", TypeString, AttrSearchable),
		NewField("index", TypeInt64, 0),
		NewField("offset", TypeInt64, 0),
		NewField("length", TypeInt64, 0),
		NewField("hash", TypeString, 0),
		NewField("text", TypeString, AttrSearchable),
		NewVectorField("embedding", c.Dimensions, vectorProfileName),
	}
}

// VectorSearch implements IndexSchema.
func (c ChunkSchema) VectorSearch() *VectorSearch {
	params := c.HNSW
	return &VectorSearch{
		Algorithms: []VectorAlgorithm{{Name: vectorAlgorithmName, Kind: "hnsw", HNSW: &params}},
		Profiles:   []VectorProfile{{Name: vectorProfileName, Algorithm: vectorAlgorithmName}},
	}
}

// SemanticTitle implements IndexSchema.
func (ChunkSchema) SemanticTitle() string { return "title" }

// SemanticContent implements IndexSchema.
func (ChunkSchema) SemanticContent() []string { return []string{"text"} }

// SchemaFor returns the schema of a variant. dimensions is ignored for documents.
func SchemaFor(v Variant, dimensions int) (IndexSchema, error) {
	switch v {
	case VariantDocument:
		return DocumentSchema{}, nil
	case VariantChunk:
		return NewChunkSchema(dimensions), nil
	default:
		return nil, cerrors.New(cerrors.ErrCodeInvalidVariant, "invalid variant: "+string(v), nil)
	}
}

// BuildIndex assembles and validates an index definition.
func BuildIndex(name string, s IndexSchema) (Index, error) {
	if name == "" {
		return Index{}, cerrors.ValidationError("index name is required", nil)
	}
	if c, ok := s.(ChunkSchema); ok && c.Dimensions <= 0 {
		return Index{}, cerrors.New(cerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding dimensions must be positive, got %d", c.Dimensions), nil)
	}

	ix := Index{
		Name:         name,
		Fields:       s.Fields(),
		VectorSearch: s.VectorSearch(),
	}

	content := make([]SemanticField, 0, len(s.SemanticContent()))
	for _, f := range s.SemanticContent() {
		content = append(content, SemanticField{FieldName: f})
	}
	ix.Semantic = &SemanticSearch{Configurations: []SemanticConfiguration{{
		Name: semanticConfigName,
		PrioritizedFields: PrioritizedFields{
			TitleField:    &SemanticField{FieldName: s.SemanticTitle()},
			ContentFields: content,
		},
	}}}

	if err := ValidateIndex(ix); err != nil {
		return Index{}, err
	}
	return ix, nil
}

// ValidateIndex checks structural rules: exactly one key field, unique field
// names, vector fields bound to a declared profile, semantic fields present.
func ValidateIndex(ix Index) error {
	keys := 0
	seen := make(map[string]bool, len(ix.Fields))
	for _, f := range ix.Fields {
		if seen[f.Name] {
			return schemaError(ix.Name, "duplicate field "+f.Name)
		}
		seen[f.Name] = true
		if f.Key {
			keys++
			if f.Type != TypeString {
				return schemaError(ix.Name, "key field "+f.Name+" must be Edm.String")
			}
		}
		if f.IsVector() {
			if f.Dimensions <= 0 {
				return schemaError(ix.Name, "vector field "+f.Name+" has no dimensions")
			}
			if !hasProfile(ix.VectorSearch, f.VectorSearchProfile) {
				return schemaError(ix.Name, "vector field "+f.Name+" references unknown profile "+f.VectorSearchProfile)
			}
		}
	}
	if keys != 1 {
		return schemaError(ix.Name, fmt.Sprintf("index must have exactly one key field, found %d", keys))
	}
	if ix.Semantic != nil {
		for _, cfg := range ix.Semantic.Configurations {
			pf := cfg.PrioritizedFields
			if pf.TitleField != nil && !seen[pf.TitleField.FieldName] {
				return schemaError(ix.Name, "semantic title field "+pf.TitleField.FieldName+" is not defined")
			}
			for _, c := range pf.ContentFields {
				if !seen[c.FieldName] {
					return schemaError(ix.Name, "semantic content field "+c.FieldName+" is not defined")
				}
			}
		}
	}
	return nil
}

func hasProfile(vs *VectorSearch, name string) bool {
	if vs == nil {
		return false
	}
	for _, p := range vs.Profiles {
		if p.Name == name {
			return true
		}
	}
	return false
}

func schemaError(index, msg string) error {
	return cerrors.New(cerrors.ErrCodeInvalidSchema, msg, nil).WithDetail("index", index)
}
