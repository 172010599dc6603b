package models

import "testing"

func TestRetrievedChunk_Score(t *testing.T) {
	t.Run("falls back to hybrid score when rerank is zero", func(t *testing.T) {
		c := RetrievedChunk{HybridScore: 0.42}
		if got := c.Score(); got != 0.42 {
			t.Errorf("Score() = %v, want 0.42", got)
		}
	})

	t.Run("prefers rerank score when set", func(t *testing.T) {
		c := RetrievedChunk{HybridScore: 0.42, RerankScore: 0.9}
		if got := c.Score(); got != 0.9 {
			t.Errorf("Score() = %v, want 0.9", got)
		}
	})
}
