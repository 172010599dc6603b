// Package rerank implements the Reranker + Compressor stage (spec §4.8):
// pre-rerank compression of oversize chunks, an optional cross-encoder
// rerank call, and graceful fallback to hybrid_score when reranking is
// disabled or fails.
package rerank

import (
	"context"
	"sort"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/utils"
)

// CrossEncoder scores a (query, passage) pair; HTTPCrossEncoder is the
// default network-backed implementation, grounded on llm.HTTPProvider's
// call shape.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Config holds compression/rerank tunables (spec §4.8).
type Config struct {
	Enabled            bool
	MaxTokensPerChunk  int
	CompressionMethod  string // head_tail | head | tail
}

func DefaultConfig() Config {
	return Config{Enabled: true, MaxTokensPerChunk: 512, CompressionMethod: "head_tail"}
}

type Reranker struct {
	encoder CrossEncoder
	cfg     Config
}

func NewReranker(encoder CrossEncoder, cfg Config) *Reranker {
	return &Reranker{encoder: encoder, cfg: cfg}
}

// Run compresses oversize chunk content and, when enabled, invokes the
// cross-encoder to assign rerank_score. On any cross-encoder error, or when
// disabled, hybrid_score remains the chunk's effective score (models.
// RetrievedChunk.Score already implements that fallback).
func (r *Reranker) Run(ctx context.Context, query string, chunks []models.RetrievedChunk) []models.RetrievedChunk {
	for i := range chunks {
		r.compress(&chunks[i])
	}

	if !r.cfg.Enabled || r.encoder == nil || len(chunks) == 0 {
		return sortByScore(chunks)
	}

	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Content
	}

	scores, err := r.encoder.Score(ctx, query, passages)
	if err != nil || len(scores) != len(chunks) {
		return sortByScore(chunks)
	}
	for i := range chunks {
		chunks[i].RerankScore = scores[i]
	}
	return sortByScore(chunks)
}

func (r *Reranker) compress(c *models.RetrievedChunk) {
	original := utils.EstimateTokensMax(c.Content)
	if original <= r.cfg.MaxTokensPerChunk {
		return
	}
	compressed := utils.Truncate(c.Content, r.cfg.MaxTokensPerChunk, r.cfg.CompressionMethod)
	c.Content = compressed
	c.CompressionMethod = r.cfg.CompressionMethod
	c.OriginalTokens = original
	c.CompressedTokens = utils.EstimateTokensMax(compressed)
	if original > 0 {
		c.CompressionRatio = float64(c.CompressedTokens) / float64(original)
	}
}

func sortByScore(chunks []models.RetrievedChunk) []models.RetrievedChunk {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score() > chunks[j].Score() })
	return chunks
}
