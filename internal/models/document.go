package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// DocumentStatus is the lifecycle state of a canonical Document.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is the canonical, content-hash-addressed record for a file's
// contents within a tenant. Uniqueness is (tenant_id, content_hash).
type Document struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID      `gorm:"type:uuid;index:idx_document_tenant_hash,unique" json:"tenant_id"`
	UserID            uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	Filename          string         `json:"filename"`
	FilePath          string         `json:"file_path"`
	SizeBytes         int64          `json:"size_bytes"`
	ContentHash       string         `gorm:"index:idx_document_tenant_hash,unique" json:"content_hash"`
	PageCount         int            `json:"page_count"`
	ChunkCount        int            `json:"chunk_count"`
	Status            DocumentStatus `gorm:"default:processing" json:"status"`
	ParserUsed        string         `json:"parser_used,omitempty"`
	ProcessingTimeMs  int64          `json:"processing_time_ms,omitempty"`
	Cost              float64        `json:"cost,omitempty"`
	FailureMessage    string         `json:"failure_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         *time.Time     `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "documents" }

// Chunk is an ordered reading unit of a Document, either narrative or table,
// carrying dense + lexical indices plus relationship metadata.
type Chunk struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID    uuid.UUID     `gorm:"type:uuid;index" json:"document_id"`
	ChunkIndex    int           `gorm:"index" json:"chunk_index"`
	Text          string        `json:"text"`
	NarrativeText string        `json:"narrative_text,omitempty"`
	Tables        JSONMap       `gorm:"type:jsonb" json:"tables,omitempty"`
	Embedding     pgvector.Vector `gorm:"type:vector" json:"embedding,omitempty"`
	EmbeddingModel string       `json:"embedding_model,omitempty"`
	PageNumber    int           `json:"page_number"`
	PageRangeEnd  int           `json:"page_range_end,omitempty"`
	SectionType   string        `json:"section_type,omitempty"`
	SectionHeading string       `json:"section_heading,omitempty"`
	IsTabular      bool          `json:"is_tabular"`
	TokenCount     int           `json:"token_count"`
	DocumentFilename string      `json:"document_filename"`
	Metadata       ChunkMetadata `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (Chunk) TableName() string { return "chunks" }

// EnsureFilename materializes document_filename from the owning document when
// the field was left blank, the invariant spec §3/§4.2 require of every
// returned chunk.
func (c *Chunk) EnsureFilename(fallback string) {
	if c.DocumentFilename == "" {
		c.DocumentFilename = fallback
	}
}
