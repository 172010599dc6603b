// Package comparison implements the Comparison Engine (spec §4.13):
// paired retrieval across exactly two documents (nearest chunk by cosine
// similarity above a floor) and clustered retrieval across three or more
// (topical grouping by each document's nearest chunk to a seed chunk),
// activated when a chat
// query classifies as comparison and at least two documents are in scope.
// Grounded on original_source's app/core/rag/comparison_flow.py
// (ComparisonChatHandler) for the paired/clustered shape and the
// similarity_threshold≈0.6 default.
package comparison

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/store"
)

// DefaultSimilarityThreshold mirrors comparison_similarity_threshold in
// original_source's settings (0.6).
const DefaultSimilarityThreshold = 0.6

// DefaultChunksPerDoc mirrors comparison_chunks_per_doc (10).
const DefaultChunksPerDoc = 10

// PairedChunks is one matched pair of chunks across exactly two documents.
type PairedChunks struct {
	ChunkA     models.Chunk
	ChunkB     models.Chunk
	Similarity float64
	Topic      string
}

// ClusteredChunks is one topical group of chunks, one per contributing
// document, for 3+ document comparisons.
type ClusteredChunks struct {
	Chunks       map[uuid.UUID]models.Chunk
	Topic        string
	AvgSimilarity float64
}

// Config holds the comparison engine's tunables.
type Config struct {
	SimilarityThreshold float64
	ChunksPerDoc        int
	MaxDocuments        int
}

func DefaultConfig() Config {
	return Config{SimilarityThreshold: DefaultSimilarityThreshold, ChunksPerDoc: DefaultChunksPerDoc, MaxDocuments: 5}
}

// Engine runs paired/clustered comparison retrieval over a fixed chunk
// store, embedding a single query to seed candidate selection per document.
type Engine struct {
	chunks *store.ChunkStore
	cfg    Config
}

func NewEngine(chunks *store.ChunkStore, cfg Config) *Engine {
	return &Engine{chunks: chunks, cfg: cfg}
}

// Result is the engine's full output for one comparison query.
type Result struct {
	Documents []uuid.UUID
	Paired    []PairedChunks
	Clustered []ClusteredChunks
}

// Compare runs paired retrieval for exactly two documents or clustered
// retrieval for three or more (spec §4.13). A single document is not a
// comparison and returns an empty result.
func (e *Engine) Compare(ctx context.Context, queryVector []float32, documentIDs []uuid.UUID) (*Result, error) {
	if len(documentIDs) < 2 {
		return &Result{Documents: documentIDs}, nil
	}

	perDoc := make(map[uuid.UUID][]store.ScoredChunk, len(documentIDs))
	for _, docID := range documentIDs {
		scope := store.Scope{DocumentIDs: []uuid.UUID{docID}}
		scored, err := e.chunks.SemanticSearch(ctx, queryVector, scope, e.cfg.ChunksPerDoc, nil)
		if err != nil {
			return nil, err
		}
		perDoc[docID] = scored
	}

	if len(documentIDs) == 2 {
		pairs := e.pairDocuments(perDoc[documentIDs[0]], perDoc[documentIDs[1]])
		return &Result{Documents: documentIDs, Paired: pairs}, nil
	}

	clusters := e.clusterDocuments(documentIDs, perDoc)
	return &Result{Documents: documentIDs, Clustered: clusters}, nil
}

// pairDocuments finds, for each top chunk of document A, the nearest chunk
// in document B by cosine similarity above the configured floor, and
// returns the matches sorted by similarity descending.
func (e *Engine) pairDocuments(a, b []store.ScoredChunk) []PairedChunks {
	var pairs []PairedChunks
	for _, ca := range a {
		bestSim := -1.0
		var best models.Chunk
		found := false
		for _, cb := range b {
			sim := cosineSimilarity(ca.Chunk.Embedding.Slice(), cb.Chunk.Embedding.Slice())
			if sim > bestSim {
				bestSim = sim
				best = cb.Chunk
				found = true
			}
		}
		if found && bestSim >= e.cfg.SimilarityThreshold {
			pairs = append(pairs, PairedChunks{
				ChunkA:     ca.Chunk,
				ChunkB:     best,
				Similarity: bestSim,
				Topic:      topicFor(ca.Chunk),
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

// clusterDocuments groups one chunk per document into topical clusters,
// seeded from the first document's top chunks; each remaining document
// contributes its chunk nearest to the seed by cosine similarity, if that
// similarity reaches the threshold. The match is one-directional: the seed
// is not checked to be that chunk's own nearest neighbor.
func (e *Engine) clusterDocuments(docIDs []uuid.UUID, perDoc map[uuid.UUID][]store.ScoredChunk) []ClusteredChunks {
	if len(docIDs) == 0 {
		return nil
	}
	seedDocID := docIDs[0]
	seeds := perDoc[seedDocID]

	var clusters []ClusteredChunks
	for _, seed := range seeds {
		cluster := ClusteredChunks{
			Chunks: map[uuid.UUID]models.Chunk{seedDocID: seed.Chunk},
			Topic:  topicFor(seed.Chunk),
		}
		var simSum float64
		var simCount int

		for _, docID := range docIDs[1:] {
			bestSim := -1.0
			var best models.Chunk
			found := false
			for _, cand := range perDoc[docID] {
				sim := cosineSimilarity(seed.Chunk.Embedding.Slice(), cand.Chunk.Embedding.Slice())
				if sim > bestSim {
					bestSim = sim
					best = cand.Chunk
					found = true
				}
			}
			if found && bestSim >= e.cfg.SimilarityThreshold {
				cluster.Chunks[docID] = best
				simSum += bestSim
				simCount++
			}
		}

		if len(cluster.Chunks) < 2 {
			continue
		}
		if simCount > 0 {
			cluster.AvgSimilarity = simSum / float64(simCount)
		}
		clusters = append(clusters, cluster)
	}

	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].AvgSimilarity > clusters[j].AvgSimilarity })
	return clusters
}

// topicFor derives a display topic from a chunk's section heading, falling
// back to a content snippet when no heading is set.
func topicFor(c models.Chunk) string {
	if c.SectionHeading != "" {
		return c.SectionHeading
	}
	if len(c.Text) > 60 {
		return c.Text[:60]
	}
	return c.Text
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
