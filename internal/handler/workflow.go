package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/pipeline"
)

// RegisterWorkflowRoutes wires the Workflow Engine's run lifecycle (spec
// §4.12): a run is created against a fixed document set and a registered
// template, then executed asynchronously on the shared pipeline.Pool the
// same way document ingestion is.
func (h *Handler) RegisterWorkflowRoutes(rg *gin.RouterGroup) {
	rg.POST("/workflows/:id/runs", h.CreateWorkflowRun)
	rg.GET("/workflow-runs/:id", h.GetWorkflowRun)
}

// CreateWorkflowRun validates the template and document set, creates the
// WorkflowRun and its owning Job, and enqueues a two-stage chain
// (prepare_context, generate_artifact) onto the pool.
func (h *Handler) CreateWorkflowRun(c *gin.Context) {
	tenantID, userID, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	templateID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body struct {
		DocumentIDs []string               `json:"document_ids" binding:"required"`
		Variables   map[string]interface{} `json:"variables"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	wf, err := h.Workflows.GetTemplate(ctx, templateID)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "workflow template not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load workflow template", err)
		return
	}

	documentIDs := make([]uuid.UUID, 0, len(body.DocumentIDs))
	documentNames := map[uuid.UUID]string{}
	for _, raw := range body.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid document_id "+raw, err)
			return
		}
		doc, err := h.Documents.Get(ctx, tenantID, id)
		if err != nil {
			writeError(c, http.StatusBadRequest, "unknown document_id "+raw, err)
			return
		}
		documentIDs = append(documentIDs, id)
		documentNames[id] = doc.Filename
	}

	if len(documentIDs) < wf.MinDocuments || (wf.MaxDocuments > 0 && len(documentIDs) > wf.MaxDocuments) {
		writeError(c, http.StatusBadRequest, "document count outside workflow's min_documents/max_documents bounds", nil)
		return
	}

	docIDStrings := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		docIDStrings[i] = id.String()
	}

	run := &models.WorkflowRun{
		WorkflowID:  templateID,
		TenantID:    tenantID,
		UserID:      userID,
		DocumentIDs: models.StringList(docIDStrings),
		Variables:   models.JSONMap(body.Variables),
	}
	if err := h.Workflows.CreateRun(ctx, run); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create workflow run", err)
		return
	}

	job := &models.Job{TenantID: tenantID, WorkflowRunID: &run.ID}
	if err := h.Jobs.Create(ctx, job); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create job", err)
		return
	}

	chain := h.workflowChain(*wf, documentIDs, body.Variables, documentNames)
	payload := pipeline.Payload{JobID: job.JobID.String(), TenantID: tenantID.String()}
	observer := newWorkflowObserver(h.Jobs, h.Workflows, h.Bus, job.JobID, run.ID)

	submitCtx, cancel := context.WithTimeout(context.Background(), h.JobTimeout)
	defer cancel()
	if !h.Pool.Submit(submitCtx, pipeline.Job{Chain: chain, Payload: payload, Observer: observer}) {
		writeError(c, http.StatusServiceUnavailable, "workflow queue is full, retry later", nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"workflow_run": run, "job_id": job.JobID})
}

// workflowChain builds the two named stages workflowObserver reports
// progress against. generate_artifact invokes workflow.Engine.Run in full —
// the engine already performs its own internal per-section
// retrieve→diversity-filter→map→reduce→normalize sequence (spec §4.12), so
// splitting it further would only fragment one atomic call into
// artificial sub-steps.
func (h *Handler) workflowChain(wf models.Workflow, documentIDs []uuid.UUID, variables map[string]interface{}, documentNames map[uuid.UUID]string) pipeline.Chain {
	return pipeline.Chain{Stages: []pipeline.Stage{
		{
			Name: "prepare_context",
			Run: func(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
				if len(documentIDs) == 0 {
					return in, &models.ClassifiedError{Stage: "prepare_context", Message: "no documents in run", Kind: models.ErrorKindValidation}
				}
				return in, nil
			},
		},
		{
			Name: "generate_artifact",
			Run: func(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
				result, err := h.Workflow.Run(ctx, wf, documentIDs, variables, func(id uuid.UUID) string { return documentNames[id] })
				if err != nil {
					return in, &models.ClassifiedError{Stage: "generate_artifact", Message: err.Error(), Kind: models.ErrorKindLLM, IsRetryable: true}
				}

				run, getErr := h.workflowRunForJob(ctx, in.JobID)
				if getErr != nil {
					return in, &models.ClassifiedError{Stage: "generate_artifact", Message: getErr.Error(), Kind: models.ErrorKindStorage}
				}

				if completeErr := h.Workflows.CompleteRun(ctx, run.ID, result.Output, result.ContextStats, result.ValidationErrors, len(result.Citations), result.Mode); completeErr != nil {
					return in, &models.ClassifiedError{Stage: "generate_artifact", Message: completeErr.Error(), Kind: models.ErrorKindStorage}
				}

				return in, nil
			},
		},
	}}
}

// workflowRunForJob resolves the WorkflowRun a job owns by job id, since the
// chain's Payload only carries string identifiers across stage boundaries.
func (h *Handler) workflowRunForJob(ctx context.Context, jobID string) (*models.WorkflowRun, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, err
	}
	job, err := h.Jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.Workflows.GetRun(ctx, job.TenantID, *job.WorkflowRunID)
}

func (h *Handler) GetWorkflowRun(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	run, err := h.Workflows.GetRun(c.Request.Context(), tenantID, id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "workflow run not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load workflow run", err)
		return
	}
	c.JSON(http.StatusOK, run)
}
