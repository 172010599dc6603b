package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/parser"
	"github.com/docintel/backend/internal/pipeline"
)

// RegisterExtractionRoutes wires single-document structured extraction
// (spec §4.14): parse the document's stored bytes, then run
// extraction.Pipeline end to end.
func (h *Handler) RegisterExtractionRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/extractions", h.CreateExtraction)
	rg.GET("/extractions/:id", h.GetExtraction)
}

// CreateExtraction creates the Extraction row and its owning Job, then
// enqueues a two-stage chain (summarize_narratives, synthesize_structured)
// that downloads the document's stored bytes, parses them, and runs the
// extraction pipeline.
func (h *Handler) CreateExtraction(c *gin.Context) {
	tenantID, userID, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	documentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	_ = c.ShouldBindJSON(&body)

	ctx := c.Request.Context()
	doc, err := h.Documents.Get(ctx, tenantID, documentID)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "document not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load document", err)
		return
	}

	extraction := &models.Extraction{TenantID: tenantID, UserID: userID, DocumentID: &documentID}
	if err := h.Extractions.Create(ctx, extraction); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create extraction", err)
		return
	}

	job := &models.Job{TenantID: tenantID, ExtractionID: &extraction.ID}
	if err := h.Jobs.Create(ctx, job); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create job", err)
		return
	}

	chain := h.extractionChain(*doc, body.Variables)
	payload := pipeline.Payload{JobID: job.JobID.String(), TenantID: tenantID.String()}
	observer := newExtractionObserver(h.Jobs, h.Extractions, h.Bus, job.JobID, extraction.ID)

	submitCtx, cancel := context.WithTimeout(context.Background(), h.JobTimeout)
	defer cancel()
	if !h.Pool.Submit(submitCtx, pipeline.Job{Chain: chain, Payload: payload, Observer: observer}) {
		writeError(c, http.StatusServiceUnavailable, "extraction queue is full, retry later", nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"extraction": extraction, "job_id": job.JobID})
}

// extractionChain builds the two named stages extractionObserver reports
// progress against. summarize_narratives downloads and parses the document,
// recording a checkpoint before the single expensive-model synthesis call;
// synthesize_structured then runs extraction.Pipeline.Run in full, since the
// pipeline already performs its own internal
// chunk→summarize→combine→extract→red-flag sequence (spec §4.14).
func (h *Handler) extractionChain(doc models.Document, variables map[string]interface{}) pipeline.Chain {
	return pipeline.Chain{Stages: []pipeline.Stage{
		{
			Name: "summarize_narratives",
			Run: func(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
				raw, err := downloadBytes(ctx, h.Storage, doc.FilePath)
				if err != nil {
					return in, fail("summarize_narratives", models.ErrorKindStorage, true, "%v", err)
				}

				p, err := h.Parsers.Resolve(parser.TierFree, parser.DetectPDFType(raw))
				if err != nil {
					return in, fail("summarize_narratives", models.ErrorKindUpgradeRequired, false, "%v", err)
				}
				pages, err := p.Parse(ctx, raw)
				if err != nil {
					return in, fail("summarize_narratives", models.ErrorKindParsing, false, "parse document: %v", err)
				}

				out := in
				out.Data = cloneData(in.Data)
				out.Data["pages"] = pages
				return out, nil
			},
		},
		{
			Name: "synthesize_structured",
			Run: func(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
				pagesTyped, ok := in.Data["pages"].([]llm.PageText)
				if !ok {
					return in, fail("synthesize_structured", models.ErrorKindExtracting, false, "no parsed pages available")
				}

				result, err := h.Extractor.Run(ctx, doc.ID, doc.Filename, pagesTyped, variables)
				if err != nil {
					return in, fail("synthesize_structured", models.ErrorKindExtracting, true, "%v", err)
				}

				extractionID, parseErr := extractionIDForJob(ctx, h.Jobs, in.JobID)
				if parseErr != nil {
					return in, fail("synthesize_structured", models.ErrorKindStorage, false, "%v", parseErr)
				}
				if err := h.Extractions.Complete(ctx, extractionID, result.Data); err != nil {
					return in, fail("synthesize_structured", models.ErrorKindStorage, true, "%v", err)
				}

				return in, nil
			},
		},
	}}
}

func (h *Handler) GetExtraction(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	extraction, err := h.Extractions.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "extraction not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load extraction", err)
		return
	}
	c.JSON(http.StatusOK, extraction)
}

// downloadBytes adapts StorageBackend's local-path-oriented Download to an
// in-memory byte slice by staging through a scratch file, the inverse of
// writeArtifactBytes.
func downloadBytes(ctx context.Context, backend interface {
	Download(ctx context.Context, storageKey, localPath string) error
}, key string) ([]byte, error) {
	tmp, err := os.CreateTemp("", "docintel-download-*")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := backend.Download(ctx, key, tmpName); err != nil {
		return nil, err
	}
	return os.ReadFile(tmpName)
}

// extractionIDForJob resolves the Extraction a job owns by job id, since the
// chain's Payload only carries string identifiers across stage boundaries.
func extractionIDForJob(ctx context.Context, jobs interface {
	Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}, jobID string) (uuid.UUID, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return uuid.Nil, err
	}
	job, err := jobs.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return *job.ExtractionID, nil
}
