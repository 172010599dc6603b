package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection groups documents for a tenant/user. document_count and
// total_chunks are derived columns: callers must recompute them via
// aggregate query inside the mutating transaction, never increment them
// (spec §5 "Counter truth").
type Collection struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	UserID            uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Name              string    `json:"name"`
	DocumentCount     int       `json:"document_count"`
	TotalChunks       int       `json:"total_chunks"`
	EmbeddingModel    string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int      `json:"embedding_dimension,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	DeletedAt         *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

func (Collection) TableName() string { return "collections" }

// CollectionDocument is the many-to-many edge (collection_id, document_id);
// it carries only the link timestamp.
type CollectionDocument struct {
	CollectionID uuid.UUID `gorm:"type:uuid;primaryKey" json:"collection_id"`
	DocumentID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"document_id"`
	LinkedAt     time.Time `json:"linked_at"`
}

func (CollectionDocument) TableName() string { return "collection_documents" }

// Session is a chat session: a rolling conversation over a document set.
type Session struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID             uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	UserID               uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	Title                string     `json:"title"`
	MessageCount         int        `json:"message_count"`
	LastSummaryText      string     `json:"last_summary_text,omitempty"`
	LastSummaryKeyFacts  StringList `gorm:"type:jsonb" json:"last_summary_key_facts,omitempty"`
	LastSummarizedIndex  int        `json:"last_summarized_index"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// SessionDocument is the many-to-many edge (session_id, document_id); a
// session may span documents from any collection.
type SessionDocument struct {
	SessionID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"session_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;primaryKey" json:"document_id"`
	LinkedAt   time.Time `json:"linked_at"`
}

func (SessionDocument) TableName() string { return "session_documents" }

// MessageRole is the speaker of a Message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one turn of a Session; message_index is monotone within the
// session (spec §8 "Message monotonicity").
type Message struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID           uuid.UUID   `gorm:"type:uuid;index" json:"session_id"`
	Role                MessageRole `json:"role"`
	Content             string      `json:"content"`
	MessageIndex        int         `gorm:"index" json:"message_index"`
	SourceChunkIDs      StringList  `gorm:"type:jsonb" json:"source_chunk_ids,omitempty"`
	RetrievalQuery      string      `json:"retrieval_query,omitempty"`
	NumChunksRetrieved  int         `json:"num_chunks_retrieved,omitempty"`
	Model               string      `json:"model,omitempty"`
	Tokens              int         `json:"tokens,omitempty"`
	Cost                float64     `json:"cost,omitempty"`
	ComparisonMetadata  JSONMap     `gorm:"type:jsonb" json:"comparison_metadata,omitempty"`
	CitationMetadata    JSONMap     `gorm:"type:jsonb" json:"citation_metadata,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

func (Message) TableName() string { return "messages" }
