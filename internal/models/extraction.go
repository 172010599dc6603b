package models

import (
	"time"

	"github.com/google/uuid"
)

// ExtractionStatus mirrors Job/Document lifecycle states for a one-shot
// structured extraction run.
type ExtractionStatus string

const (
	ExtractionStatusQueued     ExtractionStatus = "queued"
	ExtractionStatusProcessing ExtractionStatus = "processing"
	ExtractionStatusCompleted  ExtractionStatus = "completed"
	ExtractionStatusFailed     ExtractionStatus = "failed"
)

// Extraction is a single-document structured extraction run (spec §3/§4.14).
type Extraction struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   uuid.UUID        `gorm:"type:uuid;index" json:"tenant_id"`
	UserID     uuid.UUID        `gorm:"type:uuid;index" json:"user_id"`
	DocumentID *uuid.UUID       `gorm:"type:uuid;index" json:"document_id,omitempty"`
	Context    string           `json:"context,omitempty"`
	ParserUsed string           `json:"parser_used,omitempty"`
	Pages      int              `json:"pages"`
	Status     ExtractionStatus `gorm:"default:queued" json:"status"`
	Result     JSONMap          `gorm:"type:jsonb" json:"result,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (Extraction) TableName() string { return "extractions" }

// RedFlag is one deterministic rule finding over a typed extraction result
// (spec §4.14 step 6): declining margins, high leverage, chronic negative
// FCF, customer concentration, etc.
type RedFlag struct {
	Rule        string  `json:"rule"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Evidence    JSONMap `json:"evidence,omitempty"`
}
