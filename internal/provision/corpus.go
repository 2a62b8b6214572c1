package provision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/corpusctl/internal/schema"
	"github.com/Aman-CERP/corpusctl/internal/search"
)

// CorpusResult holds both chains of a corpus.
type CorpusResult struct {
	Document Result
	// Chunk is nil when the chunk chain was not attempted.
	Chunk *Result
}

// CreateCorpus provisions the document chain, waits for it, then provisions
// the chunk chain over its projections. The chunk chain is skipped when the
// document run ends in JobFailed, since nothing was projected.
func (o *Orchestrator) CreateCorpus(ctx context.Context, prefix string) (CorpusResult, error) {
	doc, err := o.CreateResources(ctx, prefix, schema.VariantDocument)
	out := CorpusResult{Document: doc}
	if err != nil {
		return out, err
	}
	if doc.Job.Status == search.JobFailed {
		o.logger.Warn("corpus_chunk_chain_skipped",
			slog.String("prefix", prefix),
			slog.String("document_status", doc.Job.Status.String()))
		return out, nil
	}

	chunk, err := o.CreateResources(ctx, prefix, schema.VariantChunk)
	if chunk.Manifest.Indexer != "" || err == nil {
		out.Chunk = &chunk
	}
	return out, err
}

// DeleteCorpus tears down the chunk chain and then the document chain. Both
// are always attempted.
func (o *Orchestrator) DeleteCorpus(ctx context.Context, prefix string) error {
	chunkErr := o.DeleteResources(ctx, prefix, schema.VariantChunk)
	docErr := o.DeleteResources(ctx, prefix, schema.VariantDocument)
	return errors.Join(chunkErr, docErr)
}
