package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RetrievalSpecEntry describes one section's retrieval configuration within
// a Workflow template (spec §3).
type RetrievalSpecEntry struct {
	Key          string   `json:"key"`
	Title        string   `json:"title"`
	Queries      []string `json:"queries"`
	PreferTables bool     `json:"prefer_tables,omitempty"`
	MaxChunks    int      `json:"max_chunks"`
}

// RetrievalSpecList is the JSONB-backed ordered list of a Workflow's section
// specs, following the same direct Value/Scan-on-the-domain-type pattern as
// StringList/ChunkMetadata/ContextStats rather than a split raw/typed pair.
type RetrievalSpecList []RetrievalSpecEntry

func (l RetrievalSpecList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

func (l *RetrievalSpecList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("RetrievalSpecList: unsupported scan type")
		}
	}
	return json.Unmarshal(bytes, l)
}

// Workflow is a reusable template: a named sequence of retrieval specs plus
// prompt/schema configuration for map-reduce long-form generation.
type Workflow struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string            `json:"name"`
	Category        string            `json:"category,omitempty"`
	PromptTemplate  string            `json:"prompt_template"`
	VariablesSchema JSONMap           `gorm:"type:jsonb" json:"variables_schema,omitempty"`
	OutputSchema    JSONMap           `gorm:"type:jsonb" json:"output_schema,omitempty"`
	OutputFormat    string            `json:"output_format,omitempty"`
	MinDocuments    int               `json:"min_documents"`
	MaxDocuments    int               `json:"max_documents"`
	RetrievalSpec   RetrievalSpecList `gorm:"type:jsonb" json:"retrieval_spec"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Workflow) TableName() string { return "workflows" }

// WorkflowRunMode records whether a run executed direct synthesis or
// map-reduce (spec §4.12).
type WorkflowRunMode string

const (
	WorkflowRunModeDirect   WorkflowRunMode = "direct"
	WorkflowRunModeMapReduce WorkflowRunMode = "map_reduce"
)

// WorkflowRunStatus is the lifecycle of a single execution of a Workflow.
type WorkflowRunStatus string

const (
	WorkflowRunStatusQueued     WorkflowRunStatus = "queued"
	WorkflowRunStatusProcessing WorkflowRunStatus = "processing"
	WorkflowRunStatusCompleted  WorkflowRunStatus = "completed"
	WorkflowRunStatusFailed     WorkflowRunStatus = "failed"
)

// WorkflowRun is one execution of a Workflow over a chosen document set.
type WorkflowRun struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID        uuid.UUID         `gorm:"type:uuid;index" json:"workflow_id"`
	TenantID          uuid.UUID         `gorm:"type:uuid;index" json:"tenant_id"`
	UserID            uuid.UUID         `gorm:"type:uuid;index" json:"user_id"`
	DocumentIDs       StringList        `gorm:"type:jsonb" json:"document_ids"`
	Variables         JSONMap           `gorm:"type:jsonb" json:"variables,omitempty"`
	Mode              WorkflowRunMode   `json:"mode,omitempty"`
	Status            WorkflowRunStatus `gorm:"default:queued" json:"status"`
	Artifact          JSONMap           `gorm:"type:jsonb" json:"artifact,omitempty"`
	SectionSummaries  JSONMap           `gorm:"type:jsonb" json:"section_summaries,omitempty"`
	TokenUsage        int               `json:"token_usage"`
	Cost              float64           `json:"cost"`
	CitationsCount    int               `json:"citations_count"`
	ValidationErrors  StringList        `gorm:"type:jsonb" json:"validation_errors,omitempty"`
	ContextStats      ContextStats      `gorm:"type:jsonb" json:"context_stats"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (WorkflowRun) TableName() string { return "workflow_runs" }

// TemplateFillRunStatus is the Excel-template field mapping run state
// machine; covered for boundary only per spec §3.
type TemplateFillRunStatus string

const (
	TemplateFillStatusQueued         TemplateFillRunStatus = "queued"
	TemplateFillStatusProcessing     TemplateFillRunStatus = "processing"
	TemplateFillStatusAwaitingReview TemplateFillRunStatus = "awaiting_review"
	TemplateFillStatusCompleted      TemplateFillRunStatus = "completed"
	TemplateFillStatusFailed         TemplateFillRunStatus = "failed"
)

// Template is an Excel template registered for field-mapping runs.
type Template struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	Name      string    `json:"name"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Template) TableName() string { return "templates" }

// TemplateFillRun is one execution of mapping extracted/retrieved data into
// a Template's cells.
type TemplateFillRun struct {
	ID         uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID             `gorm:"type:uuid;index" json:"template_id"`
	TenantID   uuid.UUID             `gorm:"type:uuid;index" json:"tenant_id"`
	UserID     uuid.UUID             `gorm:"type:uuid;index" json:"user_id"`
	Status     TemplateFillRunStatus `gorm:"default:queued" json:"status"`
	ResultPath string                `json:"result_path,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func (TemplateFillRun) TableName() string { return "template_fill_runs" }

// FeedbackOperationType names which operation a Feedback row targets;
// exactly one corresponding foreign key on Feedback must be non-nil.
type FeedbackOperationType string

const (
	FeedbackOperationExtraction      FeedbackOperationType = "extraction"
	FeedbackOperationChatMessage     FeedbackOperationType = "chat_message"
	FeedbackOperationWorkflowRun     FeedbackOperationType = "workflow_run"
	FeedbackOperationTemplateFillRun FeedbackOperationType = "template_fill_run"
)

// Feedback is a rating/comment over any one operation type.
type Feedback struct {
	ID                uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID              `gorm:"type:uuid;index" json:"tenant_id"`
	UserID            uuid.UUID              `gorm:"type:uuid;index" json:"user_id"`
	OperationType     FeedbackOperationType  `json:"operation_type"`
	ExtractionID      *uuid.UUID             `gorm:"type:uuid" json:"extraction_id,omitempty"`
	MessageID         *uuid.UUID             `gorm:"type:uuid" json:"message_id,omitempty"`
	WorkflowRunID     *uuid.UUID             `gorm:"type:uuid" json:"workflow_run_id,omitempty"`
	TemplateFillRunID *uuid.UUID             `gorm:"type:uuid" json:"template_fill_run_id,omitempty"`
	Rating            int                    `json:"rating,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

func (Feedback) TableName() string { return "feedback" }

// OwnerCount mirrors Job.OwnerCount: exactly one of the four operation FKs
// must be set.
func (f *Feedback) OwnerCount() int {
	n := 0
	if f.ExtractionID != nil {
		n++
	}
	if f.MessageID != nil {
		n++
	}
	if f.WorkflowRunID != nil {
		n++
	}
	if f.TemplateFillRunID != nil {
		n++
	}
	return n
}
