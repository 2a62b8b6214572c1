package schema

import (
	"strings"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// Variant selects which resource chain is being built.
type Variant string

const (
	// VariantDocument is one record per source document, enriched by a skillset.
	VariantDocument Variant = "document"
	// VariantChunk is one record per embedded chunk, read from knowledge-store projections.
	VariantChunk Variant = "chunk"
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	return string(v)
}

// ParseVariant validates a variant selector.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantDocument:
		return VariantDocument, nil
	case VariantChunk:
		return VariantChunk, nil
	default:
		return "", cerrors.New(cerrors.ErrCodeInvalidVariant, "invalid variant: "+s, nil).
			WithSuggestion("Use 'document' or 'chunk'")
	}
}
