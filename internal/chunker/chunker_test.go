package chunker

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/llm"
)

func TestChunkDocument_ChunkIndexIsMonotonic(t *testing.T) {
	pages := []llm.PageText{
		{Page: 1, Text: "# Introduction\n\nThis is the first paragraph of the report.\n\nThis is a second paragraph that follows it."},
		{Page: 2, Text: "## Financial Summary\n\nRevenue grew in the period under review."},
	}
	c := New(DefaultConfig())
	chunks := c.ChunkDocument(uuid.New(), "report.pdf", pages)

	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk[%d].ChunkIndex = %d, want %d", i, ch.ChunkIndex, i)
		}
		if ch.DocumentFilename != "report.pdf" {
			t.Errorf("chunk[%d].DocumentFilename = %q, want report.pdf", i, ch.DocumentFilename)
		}
	}
}

func TestChunkDocument_TableLinkedToPrecedingNarrative(t *testing.T) {
	pages := []llm.PageText{
		{Page: 1, Text: "# Results\n\nThe table below summarizes quarterly revenue.\n\nQ1 | 100 | 110\nQ2 | 120 | 130\nQ3 | 140 | 150"},
	}
	c := New(DefaultConfig())
	chunks := c.ChunkDocument(uuid.New(), "doc.pdf", pages)

	var narrativeID, tableLinkedNarrative string
	var foundTable bool
	for _, ch := range chunks {
		if !ch.IsTabular {
			narrativeID = ch.ID.String()
		} else {
			foundTable = true
			tableLinkedNarrative = ch.Metadata.LinkedNarrativeID
		}
	}
	if !foundTable {
		t.Fatalf("expected at least one table chunk, got %d chunks", len(chunks))
	}
	if tableLinkedNarrative != narrativeID {
		t.Errorf("table's LinkedNarrativeID = %q, want %q", tableLinkedNarrative, narrativeID)
	}
}

func TestChunkDocument_OversizeNarrativeSplitsIntoLinkedSiblings(t *testing.T) {
	sentence := "This is one sentence about the company's operations and its outlook for next year. "
	longText := strings.Repeat(sentence, 40)
	pages := []llm.PageText{{Page: 1, Text: longText}}

	cfg := Config{MaxNarrativeTokens: 50}
	c := New(cfg)
	chunks := c.ChunkDocument(uuid.New(), "long.pdf", pages)

	if len(chunks) < 2 {
		t.Fatalf("expected the oversize narrative to split into multiple chunks, got %d", len(chunks))
	}
	first := chunks[0]
	if first.Metadata.IsContinuation {
		t.Errorf("first chunk in a split sequence should not be marked as a continuation")
	}
	for _, ch := range chunks[1:] {
		if !ch.Metadata.IsContinuation {
			t.Errorf("chunk %d should be marked as a continuation", ch.ChunkIndex)
		}
		if ch.Metadata.ParentChunkID != first.ID.String() {
			t.Errorf("chunk %d ParentChunkID = %q, want %q", ch.ChunkIndex, ch.Metadata.ParentChunkID, first.ID.String())
		}
	}
}

func TestChunkDocument_HeadingHierarchyTracksNesting(t *testing.T) {
	pages := []llm.PageText{
		{Page: 1, Text: "# Part One\n\nTop level content here.\n\n## Section A\n\nNested section content here."},
	}
	c := New(DefaultConfig())
	chunks := c.ChunkDocument(uuid.New(), "doc.pdf", pages)

	var nested bool
	for _, ch := range chunks {
		if ch.SectionHeading == "Section A" {
			nested = true
			if len(ch.Metadata.HeadingHierarchy) < 2 {
				t.Errorf("expected nested heading hierarchy of at least 2 levels, got %v", ch.Metadata.HeadingHierarchy)
			}
		}
	}
	if !nested {
		t.Errorf("expected to find a chunk under the nested Section A heading")
	}
}

func TestDetectHeading(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		wantOK  bool
	}{
		{"markdown heading", "## Overview", true},
		{"numbered heading", "1.2 Risk Factors", true},
		{"all caps heading", "RISK FACTORS", true},
		{"plain sentence", "The company reported strong results.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, ok := detectHeading(tc.line)
			if ok != tc.wantOK {
				t.Errorf("detectHeading(%q) ok = %v, want %v", tc.line, ok, tc.wantOK)
			}
		})
	}
}

func TestIsTableLine(t *testing.T) {
	if !isTableLine("Q1 | 100 | 110") {
		t.Errorf("expected pipe-delimited line to be detected as table content")
	}
	if isTableLine("A short sentence.") {
		t.Errorf("did not expect a plain sentence to be detected as table content")
	}
}

func TestRenderTable(t *testing.T) {
	rows := [][]string{{"Q1", "100"}, {"Q2", "120"}}
	got := renderTable(rows)
	want := "Q1 | 100\nQ2 | 120"
	if got != want {
		t.Errorf("renderTable = %q, want %q", got, want)
	}
}
