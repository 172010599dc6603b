package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// StringList is a JSONB-backed []string column, grounded on the teacher's
// ExecutionStepList JSONB wrapper pattern (models/execution.go).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("StringList: unsupported scan type")
		}
	}
	return json.Unmarshal(bytes, l)
}

// ChunkMetadata holds the optional structural/relationship fields a chunk may
// carry (section path, parent/sibling links, table linkage). Stored as a
// single JSONB column rather than sparse nullable columns.
type ChunkMetadata struct {
	SectionID          string   `json:"section_id,omitempty"`
	SectionTitle       string   `json:"section_title,omitempty"`
	SectionPath        []string `json:"section_path,omitempty"`
	ParentChunkID      string   `json:"parent_chunk_id,omitempty"`
	SiblingChunkIDs    []string `json:"sibling_chunk_ids,omitempty"`
	ContinuationOfID   string   `json:"continuation_of_id,omitempty"`
	IsContinuation     bool     `json:"is_continuation,omitempty"`
	LinkedNarrativeID  string   `json:"linked_narrative_id,omitempty"`
	LinkedTableIDs     []string `json:"linked_table_ids,omitempty"`
	IsTable            bool     `json:"is_table,omitempty"`
	PageNumber         int      `json:"page_number,omitempty"`
	PageNumberEnd      int      `json:"page_number_end,omitempty"`

	// Smart-chunker structural fields (spec §4.6).
	ChunkSequence        int      `json:"chunk_sequence,omitempty"`
	TotalChunksInSection int      `json:"total_chunks_in_section,omitempty"`
	HeadingHierarchy     []string `json:"heading_hierarchy,omitempty"`
	ParagraphRoles       []string `json:"paragraph_roles,omitempty"`
	ContentType          string   `json:"content_type,omitempty"`
	DocumentFilename     string   `json:"document_filename,omitempty"`
	FirstSentence        string   `json:"first_sentence,omitempty"`
	ContentSummary       string   `json:"content_summary,omitempty"`

	// Table-specific fields, populated only for table chunks.
	TableCaption     string `json:"table_caption,omitempty"`
	TableContext     string `json:"table_context,omitempty"`
	TableRowCount    int    `json:"table_row_count,omitempty"`
	TableColumnCount int    `json:"table_column_count,omitempty"`

	// BBox is the PDF bounding box used for source highlighting.
	BBox *BBox `json:"bbox,omitempty"`
}

// BBox is a PDF page bounding box, grounded on
// ChunkMetadataBuilder.set_bbox in original_source's chunk_metadata.py.
type BBox struct {
	Page int     `json:"page"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

func (m ChunkMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ChunkMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = ChunkMetadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("ChunkMetadata: unsupported scan type")
		}
	}
	return json.Unmarshal(bytes, m)
}

// ContextStats records token/section accounting for a workflow run, stored as
// JSONB. Mirrors the teacher's pattern of storing derived-but-useful
// aggregates alongside a run row instead of recomputing on every read.
type ContextStats struct {
	TokenCount       int            `json:"token_count"`
	SectionCount     int            `json:"section_count"`
	PerSectionChunks map[string]int `json:"per_section_chunks,omitempty"`
}

func (c ContextStats) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *ContextStats) Scan(value interface{}) error {
	if value == nil {
		*c = ContextStats{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("ContextStats: unsupported scan type")
		}
	}
	return json.Unmarshal(bytes, c)
}

// JSONMap is a generic JSONB-backed map, used for extraction results and
// workflow normalized outputs whose shape is template-defined rather than
// fixed at compile time.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("JSONMap: unsupported scan type")
		}
	}
	return json.Unmarshal(bytes, m)
}
