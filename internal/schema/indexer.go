package schema

import cerrors "github.com/Aman-CERP/corpusctl/internal/errors"

// Indexer configuration values.
const (
	DataToExtractContentAndMetadata = "contentAndMetadata"
	ImageActionPerPage              = "generateNormalizedImagePerPage"
	ParsingModeJSON                 = "json"

	unlimitedFailures = -1
)

// MappingFunction transforms a source value before it is written.
type MappingFunction struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// FieldMapping maps a source field (or enrichment path) to an index field.
type FieldMapping struct {
	SourceFieldName string           `json:"sourceFieldName"`
	TargetFieldName string           `json:"targetFieldName,omitempty"`
	MappingFunction *MappingFunction `json:"mappingFunction,omitempty"`
}

// IndexerConfiguration holds data source specific settings.
type IndexerConfiguration struct {
	DataToExtract string `json:"dataToExtract,omitempty"`
	ImageAction   string `json:"imageAction,omitempty"`
	ParsingMode   string `json:"parsingMode,omitempty"`
}

// IndexingParameters tune indexer execution.
type IndexingParameters struct {
	MaxFailedItems         *int                  `json:"maxFailedItems,omitempty"`
	MaxFailedItemsPerBatch *int                  `json:"maxFailedItemsPerBatch,omitempty"`
	Configuration          *IndexerConfiguration `json:"configuration,omitempty"`
}

// Indexer is an indexer definition.
type Indexer struct {
	Name                string              `json:"name"`
	Description         string              `json:"description,omitempty"`
	DataSourceName      string              `json:"dataSourceName"`
	TargetIndexName     string              `json:"targetIndexName"`
	SkillsetName        string              `json:"skillsetName,omitempty"`
	Parameters          *IndexingParameters `json:"parameters,omitempty"`
	FieldMappings       []FieldMapping      `json:"fieldMappings"`
	OutputFieldMappings []FieldMapping      `json:"outputFieldMappings"`
}

// IndexerOptions parameterizes BuildIndexer.
type IndexerOptions struct {
	Name       string
	DataSource string
	Index      string
	// Skillset is attached for the document chain only.
	Skillset string
	Variant  Variant
	// Images adds per-page image extraction and OCR output mappings.
	Images bool
}

// BuildIndexer creates the indexer for a chain. Document indexers extract
// content and metadata from blobs and run the skillset. Chunk indexers parse
// projected JSON objects directly into the chunk index.
func BuildIndexer(opts IndexerOptions) (Indexer, error) {
	switch {
	case opts.Name == "" || opts.DataSource == "" || opts.Index == "":
		return Indexer{}, cerrors.ValidationError("indexer requires a name, data source and target index", nil)
	case opts.Variant == VariantChunk && opts.Skillset != "":
		return Indexer{}, cerrors.ValidationError("chunk indexers do not run a skillset", nil)
	case opts.Variant == VariantDocument && opts.Skillset == "":
		return Indexer{}, cerrors.ValidationError("document indexers require a skillset", nil)
	}

	maxFailed := unlimitedFailures
	ix := Indexer{
		Name:                opts.Name,
		DataSourceName:      opts.DataSource,
		TargetIndexName:     opts.Index,
		SkillsetName:        opts.Skillset,
		FieldMappings:       []FieldMapping{},
		OutputFieldMappings: []FieldMapping{},
	}

	switch opts.Variant {
	case VariantDocument:
		cfg := &IndexerConfiguration{DataToExtract: DataToExtractContentAndMetadata}
		if opts.Images {
			cfg.ImageAction = ImageActionPerPage
		}
		ix.Parameters = &IndexingParameters{MaxFailedItems: &maxFailed, Configuration: cfg}
		ix.FieldMappings = []FieldMapping{
			{
				SourceFieldName: "metadata_storage_path",
				TargetFieldName: "document_id",
				MappingFunction: &MappingFunction{Name: "base64Encode"},
			},
			{SourceFieldName: "metadata_storage_name", TargetFieldName: "filepath"},
			{SourceFieldName: "metadata_storage_size", TargetFieldName: "filesize"},
		}
		if opts.Images {
			ix.OutputFieldMappings = []FieldMapping{
				{SourceFieldName: "/document/merged_text", TargetFieldName: "merged_content"},
				{SourceFieldName: imagesContext + "/text", TargetFieldName: "text"},
				{SourceFieldName: imagesContext + "/layoutText", TargetFieldName: "layoutText"},
			}
		}
	case VariantChunk:
		ix.Parameters = &IndexingParameters{
			MaxFailedItems: &maxFailed,
			Configuration:  &IndexerConfiguration{ParsingMode: ParsingModeJSON},
		}
	default:
		return Indexer{}, cerrors.New(cerrors.ErrCodeInvalidVariant, "invalid variant: "+string(opts.Variant), nil)
	}
	return ix, nil
}
