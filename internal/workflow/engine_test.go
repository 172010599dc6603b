package workflow

import (
	"testing"

	"github.com/docintel/backend/internal/models"
)

func chunk(id, docID string) models.RetrievedChunk {
	return models.RetrievedChunk{ID: id, DocumentID: docID, HybridScore: 1.0}
}

func TestDiversityFilter_CapsPerDocumentShare(t *testing.T) {
	ranked := []models.RetrievedChunk{
		chunk("1", "docA"), chunk("2", "docA"), chunk("3", "docA"),
		chunk("4", "docB"),
	}
	out := diversityFilter(ranked, 4, 0.5)

	counts := map[string]int{}
	for _, c := range out {
		counts[c.DocumentID]++
	}
	if counts["docA"] > 2 {
		t.Errorf("expected docA capped at 2 (maxChunks=4 * ratio=0.5), got %d", counts["docA"])
	}
}

func TestDiversityFilter_ZeroMaxChunksMeansUnbounded(t *testing.T) {
	ranked := []models.RetrievedChunk{chunk("1", "docA"), chunk("2", "docA")}
	out := diversityFilter(ranked, 0, 1.0)
	if len(out) != 2 {
		t.Errorf("expected both chunks through with maxChunks=0, got %d", len(out))
	}
}

func TestDiversityFilter_PreservesRankOrder(t *testing.T) {
	ranked := []models.RetrievedChunk{chunk("1", "docA"), chunk("2", "docB"), chunk("3", "docA")}
	out := diversityFilter(ranked, 3, 1.0)
	if len(out) != 3 || out[0].ID != "1" || out[1].ID != "2" || out[2].ID != "3" {
		t.Errorf("expected rank order preserved, got %v", out)
	}
}

func TestTagCitations_AssignsStablePerDocumentIndex(t *testing.T) {
	page := 5
	chunks := []models.RetrievedChunk{
		{ID: "1", DocumentID: "docA", PageNumber: &page},
		{ID: "2", DocumentID: "docB"},
		{ID: "3", DocumentID: "docA"},
	}
	docIDs := []string{}
	tagCitations(chunks, &docIDs)

	if chunks[0].CitationToken != "[D1:p5]" {
		t.Errorf("chunks[0] token = %q, want [D1:p5]", chunks[0].CitationToken)
	}
	if chunks[1].CitationToken != "[D2:p0]" {
		t.Errorf("chunks[1] token = %q, want [D2:p0]", chunks[1].CitationToken)
	}
	if chunks[2].CitationToken != "[D1:p0]" {
		t.Errorf("chunks[2] token = %q, want [D1:p0] (same doc as chunk 0)", chunks[2].CitationToken)
	}
}

func TestIndexOrAppend(t *testing.T) {
	ids := []string{"a", "b"}
	if got := indexOrAppend(&ids, "a"); got != 1 {
		t.Errorf("indexOrAppend existing = %d, want 1", got)
	}
	if got := indexOrAppend(&ids, "c"); got != 3 {
		t.Errorf("indexOrAppend new = %d, want 3", got)
	}
	if len(ids) != 3 {
		t.Errorf("expected ids to grow to 3 entries, got %v", ids)
	}
}

func TestAllowedCitations_CollectsChunksAndTables(t *testing.T) {
	sections := []SectionResult{
		{
			Chunks: []models.RetrievedChunk{{CitationToken: "[D1:p1]"}},
			Tables: []models.RetrievedChunk{{CitationToken: "[D1:p2]"}},
		},
	}
	allowed := allowedCitations(sections)
	if !allowed["[D1:p1]"] || !allowed["[D1:p2]"] {
		t.Errorf("expected both chunk and table citations allowed, got %v", allowed)
	}
}

func TestExtractKeyMetrics_FindsCurrencyAndPercentTokens(t *testing.T) {
	text := "Revenue was $12.5M, up 10% year over year, with EBITDA margin of 22%."
	got := extractKeyMetrics(text)

	want := map[string]bool{"$12.5M": true, "10%": true, "22%": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want 3 distinct metrics", got)
	}
	for _, m := range got {
		if !want[m] {
			t.Errorf("unexpected metric %q in %v", m, got)
		}
	}
}

func TestExtractKeyMetrics_DedupesRepeatedTokens(t *testing.T) {
	text := "Margin was 10% in Q1 and remained 10% in Q2."
	got := extractKeyMetrics(text)
	if len(got) != 1 || got[0] != "10%" {
		t.Errorf("expected deduped single 10%% entry, got %v", got)
	}
}

func TestExtractKeyMetrics_NoMatchesReturnsEmpty(t *testing.T) {
	got := extractKeyMetrics("No numeric figures in this sentence at all.")
	if len(got) != 0 {
		t.Errorf("expected no metrics, got %v", got)
	}
}
