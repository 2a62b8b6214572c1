package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"document", VariantDocument, false},
		{"chunk", VariantChunk, false},
		{" Chunk ", VariantChunk, false},
		{"", "", true},
		{"vectors", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVariant(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidVariant))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildIndex_Document(t *testing.T) {
	// Given: the document schema
	// When: building the index
	ix, err := BuildIndex("hr-index", DocumentSchema{})

	// Then: it has the document key and no vector configuration
	require.NoError(t, err)
	assert.Equal(t, "hr-index", ix.Name)
	assert.Equal(t, "document_id", ix.KeyField())
	assert.Nil(t, ix.VectorSearch)

	require.NotNil(t, ix.Semantic)
	cfg := ix.Semantic.Configurations[0]
	assert.Equal(t, "filepath", cfg.PrioritizedFields.TitleField.FieldName)
	assert.Equal(t, []SemanticField{{FieldName: "content"}}, cfg.PrioritizedFields.ContentFields)

	names := fieldNames(ix.Fields)
	assert.Contains(t, names, "merged_content")
	assert.Contains(t, names, "layoutText")
}

func TestBuildIndex_Chunk1536Cosine(t *testing.T) {
	// Given: a chunk schema with 1536 dimensions
	s, err := SchemaFor(VariantChunk, 1536)
	require.NoError(t, err)

	// When: building the index
	ix, err := BuildIndex("hr-chunk-index", s)

	// Then: the vector field carries 1536 dimensions and a cosine HNSW profile
	require.NoError(t, err)
	assert.Equal(t, "id", ix.KeyField())

	var vec *Field
	for i := range ix.Fields {
		if ix.Fields[i].IsVector() {
			vec = &ix.Fields[i]
		}
	}
	require.NotNil(t, vec)
	assert.Equal(t, "embedding", vec.Name)
	assert.Equal(t, 1536, vec.Dimensions)

	require.NotNil(t, ix.VectorSearch)
	require.Len(t, ix.VectorSearch.Algorithms, 1)
	algo := ix.VectorSearch.Algorithms[0]
	assert.Equal(t, "hnsw", algo.Kind)
	assert.Equal(t, MetricCosine, algo.HNSW.Metric)
	assert.Equal(t, 4, algo.HNSW.M)
	assert.Equal(t, 400, algo.HNSW.EfConstruction)
	assert.Equal(t, 1000, algo.HNSW.EfSearch)
	assert.Equal(t, vec.VectorSearchProfile, ix.VectorSearch.Profiles[0].Name)
	assert.Equal(t, algo.Name, ix.VectorSearch.Profiles[0].Algorithm)

	assert.Equal(t, "title", ix.Semantic.Configurations[0].PrioritizedFields.TitleField.FieldName)
}

func TestBuildIndex_ZeroDimensions(t *testing.T) {
	_, err := BuildIndex("x", NewChunkSchema(0))
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeDimensionMismatch))
}

func TestBuildIndex_SchemaChangesDoNotLeak(t *testing.T) {
	// Given: a built chunk index
	ix, err := BuildIndex("a", NewChunkSchema(8))
	require.NoError(t, err)

	// When: the caller mutates its HNSW parameters
	ix.VectorSearch.Algorithms[0].HNSW.M = 99

	// Then: a freshly built index is unaffected
	again, err := BuildIndex("a", NewChunkSchema(8))
	require.NoError(t, err)
	assert.Equal(t, DefaultHNSWM, again.VectorSearch.Algorithms[0].HNSW.M)
}

func TestValidateIndex_KeyRules(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"no key", []Field{NewField("a", TypeString, 0)}},
		{"two keys", []Field{NewField("a", TypeString, AttrKey), NewField("b", TypeString, AttrKey)}},
		{"int key", []Field{NewField("a", TypeInt64, AttrKey)}},
		{"duplicate", []Field{NewField("a", TypeString, AttrKey), NewField("a", TypeString, 0)}},
		{"orphan vector", []Field{NewField("a", TypeString, AttrKey), NewVectorField("v", 3, "missing")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIndex(Index{Name: "ix", Fields: tt.fields})
			require.Error(t, err)
			assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidSchema))
		})
	}
}

func TestValidateIndex_UnknownSemanticField(t *testing.T) {
	ix := Index{
		Name:   "ix",
		Fields: []Field{NewField("id", TypeString, AttrKey)},
		Semantic: &SemanticSearch{Configurations: []SemanticConfiguration{{
			Name:              "default",
			PrioritizedFields: PrioritizedFields{ContentFields: []SemanticField{{FieldName: "body"}}},
		}}},
	}
	require.Error(t, ValidateIndex(ix))
}

func TestIndex_JSONShape(t *testing.T) {
	// Given: a chunk index
	ix, err := BuildIndex("c", NewChunkSchema(3))
	require.NoError(t, err)

	// When: serializing it
	data, err := json.Marshal(ix)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	// Then: the REST property names are used
	assert.Contains(t, raw, "vectorSearch")
	assert.Contains(t, raw, "semantic")
	vs := raw["vectorSearch"].(map[string]any)
	algo := vs["algorithms"].([]any)[0].(map[string]any)
	assert.Contains(t, algo, "hnswParameters")
	assert.Contains(t, string(data), `"vectorSearchProfile":"default-vector-profile"`)
	assert.Contains(t, string(data), `"prioritizedContentFields"`)
}

func TestBuildIndex_KeysAreFilterableAndSortable(t *testing.T) {
	for _, v := range []Variant{VariantDocument, VariantChunk} {
		t.Run(string(v), func(t *testing.T) {
			// Given: the schema of the variant
			s, err := SchemaFor(v, 1536)
			require.NoError(t, err)

			// When: building its index
			ix, err := BuildIndex("hr-index", s)
			require.NoError(t, err)

			// Then: the key field can be filtered and ordered on
			var key *Field
			for i := range ix.Fields {
				if ix.Fields[i].Key {
					key = &ix.Fields[i]
				}
			}
			require.NotNil(t, key)
			assert.True(t, key.Filterable, "key %q filterable", key.Name)
			assert.True(t, key.Sortable, "key %q sortable", key.Name)
		})
	}
}

func fieldNames(fields []Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Name)
	}
	return out
}
