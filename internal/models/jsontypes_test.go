package models

import "testing"

func TestStringList_ValueScanRoundTrip(t *testing.T) {
	orig := StringList{"a", "b", "c"}
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got StringList
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestStringList_NilValueIsEmptyArray(t *testing.T) {
	var l StringList
	v, err := l.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "[]" {
		t.Errorf("nil StringList.Value() = %v, want []", v)
	}
}

func TestStringList_ScanNilClears(t *testing.T) {
	l := StringList{"x"}
	if err := l.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if l != nil {
		t.Errorf("expected nil after Scan(nil), got %v", l)
	}
}

func TestStringList_ScanRejectsUnsupportedType(t *testing.T) {
	var l StringList
	if err := l.Scan(42); err == nil {
		t.Errorf("expected error scanning an int")
	}
}

func TestStringList_ScanAcceptsStringValue(t *testing.T) {
	var l StringList
	if err := l.Scan(`["p","q"]`); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(l) != 2 || l[1] != "q" {
		t.Errorf("got %v", l)
	}
}

func TestChunkMetadata_ValueScanRoundTrip(t *testing.T) {
	orig := ChunkMetadata{
		SectionTitle:    "Risk Factors",
		SectionPath:     []string{"Part I", "Item 1A"},
		ParentChunkID:   "parent-id",
		SiblingChunkIDs: []string{"s1", "s2"},
		IsTable:         true,
		BBox:            &BBox{Page: 3, X0: 1, Y0: 2, X1: 3, Y1: 4},
	}
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got ChunkMetadata
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.SectionTitle != orig.SectionTitle {
		t.Errorf("SectionTitle = %q, want %q", got.SectionTitle, orig.SectionTitle)
	}
	if len(got.SectionPath) != 2 || got.SectionPath[1] != "Item 1A" {
		t.Errorf("SectionPath = %v", got.SectionPath)
	}
	if got.BBox == nil || got.BBox.Page != 3 {
		t.Errorf("BBox = %v", got.BBox)
	}
}

func TestChunkMetadata_ScanNilResetsToZeroValue(t *testing.T) {
	m := ChunkMetadata{SectionTitle: "stale"}
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if m.SectionTitle != "" {
		t.Errorf("expected zero value after Scan(nil), got %+v", m)
	}
}

func TestContextStats_ValueScanRoundTrip(t *testing.T) {
	orig := ContextStats{
		TokenCount:       1200,
		SectionCount:     4,
		PerSectionChunks: map[string]int{"intro": 2, "risks": 6},
	}
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var got ContextStats
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.TokenCount != 1200 || got.SectionCount != 4 {
		t.Errorf("got %+v", got)
	}
	if got.PerSectionChunks["risks"] != 6 {
		t.Errorf("PerSectionChunks = %v", got.PerSectionChunks)
	}
}

func TestJSONMap_ValueScanRoundTrip(t *testing.T) {
	orig := JSONMap{"revenue": 123.4, "flag": true, "name": "acme"}
	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var got JSONMap
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got["name"] != "acme" {
		t.Errorf("got %v", got)
	}
}

func TestJSONMap_NilValueIsEmptyObject(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "{}" {
		t.Errorf("nil JSONMap.Value() = %v, want {}", v)
	}
}
