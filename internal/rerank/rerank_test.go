package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docintel/backend/internal/models"
)

type fakeEncoder struct {
	scores []float64
	err    error
}

func (f *fakeEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func TestReranker_Run_SortsByRerankScoreWhenEncoderSucceeds(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{ID: "a", Content: "alpha", HybridScore: 0.9},
		{ID: "b", Content: "bravo", HybridScore: 0.1},
	}
	r := NewReranker(&fakeEncoder{scores: []float64{0.2, 0.8}}, DefaultConfig())
	out := r.Run(context.Background(), "query", chunks)

	if out[0].ID != "b" {
		t.Errorf("expected b (higher rerank score) first, got %q", out[0].ID)
	}
	if out[0].RerankScore != 0.8 {
		t.Errorf("RerankScore = %v, want 0.8", out[0].RerankScore)
	}
}

func TestReranker_Run_FallsBackToHybridScoreOnEncoderError(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{ID: "a", Content: "alpha", HybridScore: 0.1},
		{ID: "b", Content: "bravo", HybridScore: 0.9},
	}
	r := NewReranker(&fakeEncoder{err: errors.New("unavailable")}, DefaultConfig())
	out := r.Run(context.Background(), "query", chunks)

	if out[0].ID != "b" {
		t.Errorf("expected fallback to hybrid_score ordering, got %q first", out[0].ID)
	}
	if out[0].RerankScore != 0 {
		t.Errorf("RerankScore should remain unset on encoder failure, got %v", out[0].RerankScore)
	}
}

func TestReranker_Run_DisabledSkipsEncoderCall(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{ID: "a", Content: "alpha", HybridScore: 0.3},
		{ID: "b", Content: "bravo", HybridScore: 0.7},
	}
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := NewReranker(&fakeEncoder{scores: []float64{0.99, 0.01}}, cfg)
	out := r.Run(context.Background(), "query", chunks)

	if out[0].ID != "b" {
		t.Errorf("disabled reranker should preserve hybrid_score order, got %q first", out[0].ID)
	}
}

func TestReranker_Compress_TruncatesOversizeContent(t *testing.T) {
	cfg := Config{Enabled: false, MaxTokensPerChunk: 5, CompressionMethod: "head"}
	r := NewReranker(nil, cfg)
	c := models.RetrievedChunk{Content: strings.Repeat("word ", 200)}
	r.compress(&c)

	if c.CompressionMethod != "head" {
		t.Errorf("CompressionMethod = %q, want head", c.CompressionMethod)
	}
	if c.CompressedTokens >= c.OriginalTokens {
		t.Errorf("expected compression to reduce token count: original=%d compressed=%d", c.OriginalTokens, c.CompressedTokens)
	}
	if c.CompressionRatio <= 0 || c.CompressionRatio >= 1 {
		t.Errorf("CompressionRatio out of expected (0,1) range: %v", c.CompressionRatio)
	}
}

func TestReranker_Compress_LeavesSmallContentUntouched(t *testing.T) {
	cfg := Config{Enabled: false, MaxTokensPerChunk: 512, CompressionMethod: "head"}
	r := NewReranker(nil, cfg)
	c := models.RetrievedChunk{Content: "short"}
	r.compress(&c)

	if c.CompressionMethod != "" {
		t.Errorf("expected no compression metadata for small content, got %q", c.CompressionMethod)
	}
}
