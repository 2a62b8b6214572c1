package schema

import (
	"strings"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// SkillKind identifies an enrichment stage.
type SkillKind string

const (
	SkillWebAPI        SkillKind = "#Microsoft.Skills.Custom.WebApiSkill"
	SkillOCR           SkillKind = "#Microsoft.Skills.Vision.OcrSkill"
	SkillMerge         SkillKind = "#Microsoft.Skills.Text.MergeSkill"
	SkillImageAnalysis SkillKind = "#Microsoft.Skills.Vision.ImageAnalysisSkill"
)

const (
	cognitiveServicesByKey = "#Microsoft.Azure.Search.CognitiveServicesByKey"

	// EmbeddingSkillName is the name of the custom chunking and embedding stage.
	EmbeddingSkillName = "chunking-embedding-skill"

	embeddingSkillTimeout = "PT3M"
	contentContext        = "/document/content"
	imagesContext         = "/document/normalized_images/*"
	chunksContext         = contentContext + "/chunks/*"
)

// InputField maps an enrichment tree path to a skill input.
type InputField struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// OutputField maps a skill output to an enrichment tree node.
type OutputField struct {
	Name       string `json:"name"`
	TargetName string `json:"targetName"`
}

// Skill is one enrichment stage. Only the fields matching Kind are set.
type Skill struct {
	Kind        SkillKind     `json:"@odata.type"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Context     string        `json:"context"`
	Inputs      []InputField  `json:"inputs"`
	Outputs     []OutputField `json:"outputs"`

	URI                 string            `json:"uri,omitempty"`
	HTTPMethod          string            `json:"httpMethod,omitempty"`
	HTTPHeaders         map[string]string `json:"httpHeaders,omitempty"`
	Timeout             string            `json:"timeout,omitempty"`
	BatchSize           int               `json:"batchSize,omitempty"`
	DegreeOfParallelism int               `json:"degreeOfParallelism,omitempty"`

	DetectOrientation bool     `json:"detectOrientation,omitempty"`
	VisualFeatures    []string `json:"visualFeatures,omitempty"`
	InsertPreTag      string   `json:"insertPreTag,omitempty"`
	InsertPostTag     string   `json:"insertPostTag,omitempty"`
}

// CognitiveServices attaches a billing key for built-in skills.
type CognitiveServices struct {
	ODataType   string `json:"@odata.type"`
	Description string `json:"description,omitempty"`
	Key         string `json:"key"`
}

// ProjectionSelector writes enriched nodes to storage.
type ProjectionSelector struct {
	StorageContainer string       `json:"storageContainer"`
	GeneratedKeyName string       `json:"generatedKeyName"`
	Source           string       `json:"source,omitempty"`
	SourceContext    string       `json:"sourceContext,omitempty"`
	Inputs           []InputField `json:"inputs"`
}

// Projection groups table, object and file projections. The service expects
// all three arrays to be present.
type Projection struct {
	Tables  []ProjectionSelector `json:"tables"`
	Objects []ProjectionSelector `json:"objects"`
	Files   []ProjectionSelector `json:"files"`
}

// KnowledgeStore persists enrichment output to blob storage.
type KnowledgeStore struct {
	StorageConnectionString string       `json:"storageConnectionString"`
	Projections             []Projection `json:"projections"`
}

// Skillset is a skillset definition.
type Skillset struct {
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Skills            []Skill            `json:"skills"`
	CognitiveServices *CognitiveServices `json:"cognitiveServices,omitempty"`
	KnowledgeStore    *KnowledgeStore    `json:"knowledgeStore,omitempty"`
}

// SkillsetOptions parameterizes BuildSkillset.
type SkillsetOptions struct {
	Name string

	// EmbeddingEndpoint is the URI of the chunking and embedding web skill.
	EmbeddingEndpoint string
	// EmbeddingHeaders are sent with every web skill call.
	EmbeddingHeaders map[string]string

	KnowledgeStoreConnectionString string
	// Container receives chunk projections.
	Container string
	// ImageContainer receives normalized image projections.
	ImageContainer string

	// CognitiveServicesKey enables OCR, merge and image analysis stages.
	CognitiveServicesKey string
}

// ImagesEnabled reports whether image stages are part of the skillset.
func (o SkillsetOptions) ImagesEnabled() bool {
	return o.CognitiveServicesKey != ""
}

// BuildSkillset creates the document chain skillset: image stages when a
// cognitive services key is present, the custom embedding stage, and the
// knowledge store that projects chunks into Container.
func BuildSkillset(opts SkillsetOptions) (Skillset, error) {
	switch {
	case opts.Name == "":
		return Skillset{}, cerrors.ValidationError("skillset name is required", nil)
	case opts.EmbeddingEndpoint == "":
		return Skillset{}, cerrors.New(cerrors.ErrCodeConfigInvalid, "embedding skill endpoint is required", nil).
			WithSuggestion("Set embedding.skill_endpoint or AZURE_SEARCH_EMBEDDING_SKILL_ENDPOINT")
	case !strings.HasPrefix(opts.EmbeddingEndpoint, "https://") && !strings.HasPrefix(opts.EmbeddingEndpoint, "http://"):
		return Skillset{}, cerrors.ValidationError("embedding skill endpoint must be an http(s) URL", nil).
			WithDetail("endpoint", opts.EmbeddingEndpoint)
	case opts.KnowledgeStoreConnectionString == "":
		return Skillset{}, cerrors.New(cerrors.ErrCodeCredentialMissing, "knowledge store connection string is required", nil)
	case opts.Container == "":
		return Skillset{}, cerrors.ValidationError("knowledge store container is required", nil)
	}

	images := opts.ImagesEnabled()
	textSource := contentContext

	var skills []Skill
	if images {
		skills = append(skills, ocrSkill(), mergeSkill(), imageAnalysisSkill())
		textSource = "/document/merged_text"
	}
	skills = append(skills, embeddingSkill(opts, textSource))

	ss := Skillset{
		Name:        opts.Name,
		Description: "Chunks and embeds document content",
		Skills:      skills,
		KnowledgeStore: &KnowledgeStore{
			StorageConnectionString: opts.KnowledgeStoreConnectionString,
			Projections:             []Projection{projection(opts, images)},
		},
	}
	if images {
		ss.CognitiveServices = &CognitiveServices{
			ODataType: cognitiveServicesByKey,
			Key:       opts.CognitiveServicesKey,
		}
	}
	return ss, nil
}

func embeddingSkill(opts SkillsetOptions, textSource string) Skill {
	return Skill{
		Kind:        SkillWebAPI,
		Name:        EmbeddingSkillName,
		Description: "Splits content into chunks and embeds each chunk",
		Context:     contentContext,
		Inputs: []InputField{
			{Name: "document_id", Source: "/document/document_id"},
			{Name: "text", Source: textSource},
			{Name: "filepath", Source: "/document/filepath"},
			{Name: "fieldname", Source: "='content'"},
		},
		Outputs:             []OutputField{{Name: "chunks", TargetName: "chunks"}},
		URI:                 opts.EmbeddingEndpoint,
		HTTPMethod:          "POST",
		HTTPHeaders:         opts.EmbeddingHeaders,
		Timeout:             embeddingSkillTimeout,
		BatchSize:           1,
		DegreeOfParallelism: 1,
	}
}

func ocrSkill() Skill {
	return Skill{
		Kind:              SkillOCR,
		Name:              "ocr-skill",
		Description:       "Extracts text from normalized images",
		Context:           imagesContext,
		Inputs:            []InputField{{Name: "image", Source: imagesContext}},
		Outputs:           []OutputField{{Name: "text", TargetName: "text"}, {Name: "layoutText", TargetName: "layoutText"}},
		DetectOrientation: true,
	}
}

func mergeSkill() Skill {
	return Skill{
		Kind:        SkillMerge,
		Name:        "merge-skill",
		Description: "Merges document text with OCR output",
		Context:     "/document",
		Inputs: []InputField{
			{Name: "text", Source: contentContext},
			{Name: "itemsToInsert", Source: imagesContext + "/text"},
			{Name: "offsets", Source: "/document/normalized_images/*/contentOffset"},
		},
		Outputs:       []OutputField{{Name: "mergedText", TargetName: "merged_text"}},
		InsertPreTag:  " ",
		InsertPostTag: " ",
	}
}

func imageAnalysisSkill() Skill {
	return Skill{
		Kind:           SkillImageAnalysis,
		Name:           "image-analysis-skill",
		Description:    "Tags and describes normalized images",
		Context:        imagesContext,
		Inputs:         []InputField{{Name: "image", Source: imagesContext}},
		Outputs:        []OutputField{{Name: "tags", TargetName: "tags"}, {Name: "description", TargetName: "description"}},
		VisualFeatures: []string{"tags", "description"},
	}
}

func projection(opts SkillsetOptions, images bool) Projection {
	meta := chunksContext + "/embedding_metadata"
	p := Projection{
		Tables: []ProjectionSelector{},
		Objects: []ProjectionSelector{{
			StorageContainer: opts.Container,
			GeneratedKeyName: "id",
			SourceContext:    chunksContext,
			Inputs: []InputField{
				{Name: "source_document_id", Source: "/document/document_id"},
				{Name: "source_document_filepath", Source: "/document/filepath"},
				{Name: "source_field_name", Source: meta + "/fieldname"},
				{Name: "title", Source: chunksContext + "/title"},
				{Name: "text", Source: chunksContext + "/content"},
				{Name: "hash", Source: chunksContext + "/hash"},
				{Name: "embedding", Source: meta + "/embedding"},
				{Name: "index", Source: meta + "/index"},
				{Name: "offset", Source: meta + "/offset"},
				{Name: "length", Source: meta + "/length"},
			},
		}},
		Files: []ProjectionSelector{},
	}
	if images && opts.ImageContainer != "" {
		p.Files = append(p.Files, ProjectionSelector{
			StorageContainer: opts.ImageContainer,
			GeneratedKeyName: "imagepath",
			Source:           imagesContext,
			Inputs:           []InputField{},
		})
	}
	return p
}

// Redacted returns a copy with secrets removed, safe to log.
func (s Skillset) Redacted() Skillset {
	if s.KnowledgeStore != nil {
		ks := *s.KnowledgeStore
		ks.StorageConnectionString = "<redacted>"
		s.KnowledgeStore = &ks
	}
	if s.CognitiveServices != nil {
		cs := *s.CognitiveServices
		cs.Key = "<redacted>"
		s.CognitiveServices = &cs
	}
	return s
}
