// Package embedder drives batch dense-embedding of chunks through an
// llm.EmbeddingProvider, attaching the resulting vector and provenance
// (spec §4.9: embedding_model recorded alongside the vector so a later
// re-embed with a different model is detectable). Grounded on the
// teacher's batching pattern in services/impl/hybrid_context.go, which
// chunks a request list before handing it to an external call.
package embedder

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
)

// DefaultBatchSize bounds how many chunks are sent to the embedding
// provider in a single call, keeping request bodies and retry cost bounded.
const DefaultBatchSize = 64

type Embedder struct {
	provider  llm.EmbeddingProvider
	batchSize int
}

func New(provider llm.EmbeddingProvider) *Embedder {
	return &Embedder{provider: provider, batchSize: DefaultBatchSize}
}

// WithBatchSize overrides the default batch size; used by tests to exercise
// the multi-batch path without constructing hundreds of chunks.
func (e *Embedder) WithBatchSize(n int) *Embedder {
	e.batchSize = n
	return e
}

// EmbedChunks embeds every chunk's text in batches, writing Embedding and
// EmbeddingModel in place. A dimension mismatch from the provider is a hard
// error (spec §6), surfaced with the offending chunk's index so the caller
// can attribute it to a stage failure.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batchSize := e.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	model := e.provider.ModelName()
	dim := e.provider.Dimension()

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = embeddingText(chunks[i])
		}

		vectors, err := e.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedder: batch [%d:%d): %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder: batch [%d:%d): provider returned %d vectors for %d inputs", start, end, len(vectors), len(texts))
		}
		for i, v := range vectors {
			if len(v) != dim {
				return fmt.Errorf("embedder: chunk %d: embedding dimension %d does not match configured dimension %d", start+i, len(v), dim)
			}
			chunks[start+i].Embedding = pgvector.NewVector(v)
			chunks[start+i].EmbeddingModel = model
		}
	}
	return nil
}

// EmbedQuery embeds a single query string for retrieval, the same model as
// EmbedChunks uses so dense similarity comparisons stay apples-to-apples.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.provider.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedder: query embed: %w", err)
	}
	if len(v) != e.provider.Dimension() {
		return nil, fmt.Errorf("embedder: query embedding dimension %d does not match configured dimension %d", len(v), e.provider.Dimension())
	}
	return v, nil
}

// embeddingText returns, for a tabular chunk with a table context, that
// context, a newline, and the chunk's verbatim text (the raw rows carry more
// retrievable signal than a caption alone); any other chunk embeds its text
// as is.
func embeddingText(c models.Chunk) string {
	if c.IsTabular && c.Metadata.TableContext != "" {
		return c.Metadata.TableContext + "\n" + c.Text
	}
	return c.Text
}
