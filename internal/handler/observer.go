package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/pipeline"
	"github.com/docintel/backend/internal/progressbus"
	"github.com/docintel/backend/internal/store"
)

// stageProgress maps the chat-indexing chain's stage names to the
// cumulative progress_percent spec §4.4 step 1 attaches to each stage
// boundary.
var stageProgress = map[string]int{
	"parse":         25,
	"chunk":         50,
	"embed":         75,
	"store_vectors": 100,
}

var stageCompletionField = map[string]string{
	"parse":         "parsing_completed",
	"chunk":         "chunking_completed",
	"embed":         "embedding_completed",
	"store_vectors": "storing_completed",
}

var stageArtifactField = map[string]string{
	"parse": "raw_parser_text_path",
	"chunk": "chunk_json_path",
}

// jobObserver bridges pipeline.Chain.Execute to the Job Ledger and Progress
// Bus (spec §4.4 step 4, §4.5): it is the single place a stage's outcome
// becomes both a durable Job row update and an SSE-visible event.
type jobObserver struct {
	jobs       *store.JobStore
	documents  *store.DocumentStore
	bus        *progressbus.Bus
	jobID      uuid.UUID
	documentID uuid.UUID
}

func newJobObserver(jobs *store.JobStore, documents *store.DocumentStore, bus *progressbus.Bus, jobID, documentID uuid.UUID) *jobObserver {
	return &jobObserver{jobs: jobs, documents: documents, bus: bus, jobID: jobID, documentID: documentID}
}

func (o *jobObserver) publish(ctx context.Context, event progressbus.EventType, payload map[string]interface{}) {
	_ = o.bus.Publish(ctx, o.jobID.String(), progressbus.Event{Event: event, Payload: payload})
}

func (o *jobObserver) OnStageStart(ctx context.Context, stageName string, in pipeline.Payload) {
	_ = o.jobs.Update(ctx, o.jobID, map[string]interface{}{"current_stage": stageName})
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{"stage": stageName, "status": "started"})
}

func (o *jobObserver) OnStageSuccess(ctx context.Context, stageName string, out pipeline.Payload) {
	fields := map[string]interface{}{}
	if pct, ok := stageProgress[stageName]; ok {
		fields["progress_percent"] = pct
	}
	if field, ok := stageCompletionField[stageName]; ok {
		fields[field] = true
	}
	if field, ok := stageArtifactField[stageName]; ok && out.ArtifactPath != "" {
		fields[field] = out.ArtifactPath
	}
	if len(fields) > 0 {
		_ = o.jobs.Update(ctx, o.jobID, fields)
	}
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{
		"stage": stageName, "status": "completed", "progress_percent": stageProgress[stageName],
	})

	if stageName == "store_vectors" {
		_ = o.jobs.MarkCompleted(ctx, o.jobID, "ingestion complete")
		o.publish(ctx, progressbus.EventComplete, map[string]interface{}{"document_id": o.documentID.String()})
		o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "completed", "job_id": o.jobID.String()})
	}
}

func (o *jobObserver) OnStageFailure(ctx context.Context, stageName string, failure *models.ClassifiedError) {
	_ = o.jobs.MarkFailed(ctx, o.jobID, failure)
	_ = o.documents.MarkFailed(ctx, o.documentID, failure.Message)
	o.publish(ctx, progressbus.EventError, map[string]interface{}{
		"stage": stageName, "message": failure.Message, "type": string(failure.Kind), "retryable": failure.IsRetryable,
	})
	o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "failed", "job_id": o.jobID.String()})
}

// workflowStageProgress maps the two-stage chain workflow.go submits
// (prepare_context validates the run's inputs; generate_artifact invokes
// workflow.Engine.Run end to end, since the engine already performs its own
// internal retrieve→map→reduce sequence) to cumulative progress_percent.
var workflowStageProgress = map[string]int{
	"prepare_context":  30,
	"generate_artifact": 100,
}

// workflowObserver is jobObserver's sibling for the WorkflowRun-owned chain:
// same Job Ledger/Progress Bus bridging, but updating a WorkflowRun instead
// of a Document on terminal outcomes.
type workflowObserver struct {
	jobs      *store.JobStore
	workflows *store.WorkflowStore
	bus       *progressbus.Bus
	jobID     uuid.UUID
	runID     uuid.UUID
}

func newWorkflowObserver(jobs *store.JobStore, workflows *store.WorkflowStore, bus *progressbus.Bus, jobID, runID uuid.UUID) *workflowObserver {
	return &workflowObserver{jobs: jobs, workflows: workflows, bus: bus, jobID: jobID, runID: runID}
}

func (o *workflowObserver) publish(ctx context.Context, event progressbus.EventType, payload map[string]interface{}) {
	_ = o.bus.Publish(ctx, o.jobID.String(), progressbus.Event{Event: event, Payload: payload})
}

func (o *workflowObserver) OnStageStart(ctx context.Context, stageName string, in pipeline.Payload) {
	_ = o.jobs.Update(ctx, o.jobID, map[string]interface{}{"current_stage": stageName})
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{"stage": stageName, "status": "started"})
}

func (o *workflowObserver) OnStageSuccess(ctx context.Context, stageName string, out pipeline.Payload) {
	fields := map[string]interface{}{}
	if pct, ok := workflowStageProgress[stageName]; ok {
		fields["progress_percent"] = pct
	}
	if stageName == "prepare_context" {
		fields["context_prep_completed"] = true
	}
	if stageName == "generate_artifact" {
		fields["generation_completed"] = true
	}
	if len(fields) > 0 {
		_ = o.jobs.Update(ctx, o.jobID, fields)
	}
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{
		"stage": stageName, "status": "completed", "progress_percent": workflowStageProgress[stageName],
	})

	if stageName == "generate_artifact" {
		_ = o.jobs.MarkCompleted(ctx, o.jobID, "workflow run complete")
		o.publish(ctx, progressbus.EventComplete, map[string]interface{}{"workflow_run_id": o.runID.String()})
		o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "completed", "job_id": o.jobID.String()})
	}
}

func (o *workflowObserver) OnStageFailure(ctx context.Context, stageName string, failure *models.ClassifiedError) {
	_ = o.jobs.MarkFailed(ctx, o.jobID, failure)
	_ = o.workflows.FailRun(ctx, o.runID)
	o.publish(ctx, progressbus.EventError, map[string]interface{}{
		"stage": stageName, "message": failure.Message, "type": string(failure.Kind), "retryable": failure.IsRetryable,
	})
	o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "failed", "job_id": o.jobID.String()})
}

// extractionStageProgress maps extraction.go's two-stage chain
// (summarize_narratives is a progress checkpoint; synthesize_structured
// invokes extraction.Pipeline.Run end to end) to cumulative progress_percent.
var extractionStageProgress = map[string]int{
	"summarize_narratives":  40,
	"synthesize_structured": 100,
}

// extractionObserver is jobObserver's sibling for the Extraction-owned
// chain.
type extractionObserver struct {
	jobs        *store.JobStore
	extractions *store.ExtractionStore
	bus         *progressbus.Bus
	jobID       uuid.UUID
	extractionID uuid.UUID
}

func newExtractionObserver(jobs *store.JobStore, extractions *store.ExtractionStore, bus *progressbus.Bus, jobID, extractionID uuid.UUID) *extractionObserver {
	return &extractionObserver{jobs: jobs, extractions: extractions, bus: bus, jobID: jobID, extractionID: extractionID}
}

func (o *extractionObserver) publish(ctx context.Context, event progressbus.EventType, payload map[string]interface{}) {
	_ = o.bus.Publish(ctx, o.jobID.String(), progressbus.Event{Event: event, Payload: payload})
}

func (o *extractionObserver) OnStageStart(ctx context.Context, stageName string, in pipeline.Payload) {
	_ = o.jobs.Update(ctx, o.jobID, map[string]interface{}{"current_stage": stageName})
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{"stage": stageName, "status": "started"})
}

func (o *extractionObserver) OnStageSuccess(ctx context.Context, stageName string, out pipeline.Payload) {
	fields := map[string]interface{}{}
	if pct, ok := extractionStageProgress[stageName]; ok {
		fields["progress_percent"] = pct
	}
	if stageName == "summarize_narratives" {
		fields["summarizing_completed"] = true
	}
	if stageName == "synthesize_structured" {
		fields["synthesizing_completed"] = true
	}
	if len(fields) > 0 {
		_ = o.jobs.Update(ctx, o.jobID, fields)
	}
	o.publish(ctx, progressbus.EventProgress, map[string]interface{}{
		"stage": stageName, "status": "completed", "progress_percent": extractionStageProgress[stageName],
	})

	if stageName == "synthesize_structured" {
		_ = o.jobs.MarkCompleted(ctx, o.jobID, "extraction complete")
		o.publish(ctx, progressbus.EventComplete, map[string]interface{}{"extraction_id": o.extractionID.String()})
		o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "completed", "job_id": o.jobID.String()})
	}
}

func (o *extractionObserver) OnStageFailure(ctx context.Context, stageName string, failure *models.ClassifiedError) {
	_ = o.jobs.MarkFailed(ctx, o.jobID, failure)
	_ = o.extractions.Fail(ctx, o.extractionID)
	o.publish(ctx, progressbus.EventError, map[string]interface{}{
		"stage": stageName, "message": failure.Message, "type": string(failure.Kind), "retryable": failure.IsRetryable,
	})
	o.publish(ctx, progressbus.EventEnd, map[string]interface{}{"reason": "failed", "job_id": o.jobID.String()})
}
