package embedder

import (
	"context"
	"testing"

	"github.com/docintel/backend/internal/models"
)

type fakeEmbeddingProvider struct {
	model     string
	dim       int
	batches   [][]string
	returnDim int // if nonzero, overrides dim in returned vectors to force a mismatch
	err       error
}

func (f *fakeEmbeddingProvider) ModelName() string { return f.model }
func (f *fakeEmbeddingProvider) Dimension() int    { return f.dim }

func (f *fakeEmbeddingProvider) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if f.returnDim != 0 {
		dim = f.returnDim
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func TestEmbedder_EmbedChunks_SingleBatchSetsVectorAndModel(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "test-embed-v1", dim: 4}
	e := New(provider)

	chunks := []models.Chunk{
		{Text: "first chunk"},
		{Text: "second chunk"},
	}
	if err := e.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}

	for i, c := range chunks {
		if c.EmbeddingModel != "test-embed-v1" {
			t.Errorf("chunk %d: EmbeddingModel = %q", i, c.EmbeddingModel)
		}
		if c.Embedding.Slice() == nil || len(c.Embedding.Slice()) != 4 {
			t.Errorf("chunk %d: expected a 4-dimensional embedding, got %v", i, c.Embedding.Slice())
		}
	}
	if len(provider.batches) != 1 {
		t.Errorf("expected a single batch call, got %d", len(provider.batches))
	}
}

func TestEmbedder_EmbedChunks_MultiBatchSplitsRequests(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "test-embed-v1", dim: 2}
	e := New(provider).WithBatchSize(2)

	chunks := make([]models.Chunk, 5)
	for i := range chunks {
		chunks[i] = models.Chunk{Text: "chunk text"}
	}
	if err := e.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}

	if len(provider.batches) != 3 {
		t.Fatalf("expected 3 batches (2,2,1) for 5 chunks with batch size 2, got %d", len(provider.batches))
	}
	if len(provider.batches[0]) != 2 || len(provider.batches[1]) != 2 || len(provider.batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %v", provider.batches)
	}
	for i, c := range chunks {
		if len(c.Embedding.Slice()) != 2 {
			t.Errorf("chunk %d did not get embedded", i)
		}
	}
}

func TestEmbedder_EmbedChunks_EmptyInputIsANoop(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "m", dim: 2}
	e := New(provider)
	if err := e.EmbedChunks(context.Background(), nil); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}
	if len(provider.batches) != 0 {
		t.Errorf("expected no provider calls for an empty chunk list")
	}
}

func TestEmbedder_EmbedChunks_DimensionMismatchIsHardError(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "m", dim: 4, returnDim: 3}
	e := New(provider)
	chunks := []models.Chunk{{Text: "x"}}
	if err := e.EmbedChunks(context.Background(), chunks); err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}
}

func TestEmbedder_EmbedChunks_UsesTableContextForTabularChunks(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "m", dim: 2}
	e := New(provider)
	chunks := []models.Chunk{
		{Text: "| a | b |\n| 1 | 2 |", IsTabular: true, Metadata: models.ChunkMetadata{TableContext: "Revenue by quarter"}},
	}
	if err := e.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}
	got := provider.batches[0][0]
	if got != "Revenue by quarter\n| a | b |\n| 1 | 2 |" {
		t.Errorf("expected embedding text to be prefixed with table context, got %q", got)
	}
}

func TestEmbedder_EmbedQuery_ReturnsProviderVector(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "m", dim: 3}
	e := New(provider)
	v, err := e.EmbedQuery(context.Background(), "what is the revenue trend")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("expected a 3-dimensional query embedding, got %d", len(v))
	}
}

func TestEmbedder_EmbedQuery_DimensionMismatchIsAnError(t *testing.T) {
	provider := &fakeEmbeddingProvider{model: "m", dim: 3, returnDim: 5}
	e := New(provider)
	if _, err := e.EmbedQuery(context.Background(), "x"); err == nil {
		t.Fatalf("expected a dimension mismatch error")
	}
}
