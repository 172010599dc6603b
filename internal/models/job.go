package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusFailed         JobStatus = "failed"
	JobStatusAwaitingReview JobStatus = "awaiting_review"
)

// ErrorKind is the taxonomy of classified failures (spec §7), used on both
// Job.ErrorType and as the Kind of a ClassifiedError returned by a stage.
type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindForbidden        ErrorKind = "forbidden"
	ErrorKindConflict         ErrorKind = "conflict"
	ErrorKindUpgradeRequired  ErrorKind = "upgrade_required"
	ErrorKindParsing          ErrorKind = "parsing_error"
	ErrorKindChunking         ErrorKind = "chunking_error"
	ErrorKindEmbedding        ErrorKind = "embedding_error"
	ErrorKindStorage          ErrorKind = "storage_error"
	ErrorKindLLM              ErrorKind = "llm_error"
	ErrorKindSummarizing      ErrorKind = "summarizing_error"
	ErrorKindExtracting       ErrorKind = "extracting_error"
	ErrorKindStream           ErrorKind = "stream_error"
	ErrorKindTimeout          ErrorKind = "timeout"
)

// Job is a durable pipeline task record. Exactly one of ExtractionID,
// DocumentID, WorkflowRunID, TemplateFillRunID is non-nil — enforced by
// store.JobStore.Create, not by this struct alone (spec §3/§4.3/§8).
type Job struct {
	JobID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"job_id"`
	TenantID           uuid.UUID  `gorm:"type:uuid;index" json:"tenant_id"`
	ExtractionID       *uuid.UUID `gorm:"type:uuid;index" json:"extraction_id,omitempty"`
	DocumentID         *uuid.UUID `gorm:"type:uuid;index" json:"document_id,omitempty"`
	WorkflowRunID      *uuid.UUID `gorm:"type:uuid;index" json:"workflow_run_id,omitempty"`
	TemplateFillRunID  *uuid.UUID `gorm:"type:uuid;index" json:"template_fill_run_id,omitempty"`

	Status            JobStatus `gorm:"default:queued" json:"status"`
	CurrentStage      string    `json:"current_stage,omitempty"`
	ProgressPercent   int       `json:"progress_percent"`
	Message           string    `json:"message,omitempty"`
	Details           JSONMap   `gorm:"type:jsonb" json:"details,omitempty"`

	// Per-stage boolean flags, spec §4.4.
	ParsingCompleted      bool `json:"parsing_completed"`
	ChunkingCompleted     bool `json:"chunking_completed"`
	EmbeddingCompleted    bool `json:"embedding_completed"`
	StoringCompleted      bool `json:"storing_completed"`
	SummarizingCompleted  bool `json:"summarizing_completed"`
	SynthesizingCompleted bool `json:"synthesizing_completed"`
	ContextPrepCompleted  bool `json:"context_prep_completed"`
	GenerationCompleted   bool `json:"generation_completed"`

	// Resumable intermediate artifact paths (spec §4.4 retry semantics).
	RawParserTextPath   string `json:"raw_parser_text_path,omitempty"`
	ChunkJSONPath       string `json:"chunk_json_path,omitempty"`
	SummariesJSONPath   string `json:"summaries_json_path,omitempty"`
	CombinedContextPath string `json:"combined_context_path,omitempty"`
	RawLLMResponsePath  string `json:"raw_llm_response_path,omitempty"`

	ErrorStage      string `json:"error_stage,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ErrorType       ErrorKind `json:"error_type,omitempty"`
	ErrorIsRetryable bool   `json:"error_is_retryable,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// OwnerCount returns how many of the four owner fields are set; used by
// store.JobStore to enforce the exactly-one-owner invariant.
func (j *Job) OwnerCount() int {
	n := 0
	if j.ExtractionID != nil {
		n++
	}
	if j.DocumentID != nil {
		n++
	}
	if j.WorkflowRunID != nil {
		n++
	}
	if j.TemplateFillRunID != nil {
		n++
	}
	return n
}

// ClassifiedError is the result-typed failure a pipeline stage returns
// instead of raising, per Design Notes §9 ("exceptions as control flow ->
// result-typed stages"). The worker harness is the single place that turns
// this into a Job update plus a Progress Bus error event.
type ClassifiedError struct {
	Stage       string
	Message     string
	Kind        ErrorKind
	IsRetryable bool
}

func (e *ClassifiedError) Error() string {
	return string(e.Kind) + " at " + e.Stage + ": " + e.Message
}
