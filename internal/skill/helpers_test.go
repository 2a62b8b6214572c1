package skill

import (
	"context"
	"errors"
	"sync"
)

// fakeEmbedder returns vectors whose first component is the text length.
type fakeEmbedder struct {
	dims int
	err  error

	mu    sync.Mutex
	calls int
	texts []string
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dims)
	v[0] = float32(len(text))
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// wrongDims claims one size and returns another.
type wrongDims struct{ *fakeEmbedder }

func (w wrongDims) Dimensions() int { return w.dims + 1 }

var errBoom = errors.New("boom")

var (
	_ Embedder = (*fakeEmbedder)(nil)
	_ Embedder = (*CachedEmbedder)(nil)
	_ Embedder = (*OpenAIEmbedder)(nil)
)
