package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/parser"
	"github.com/docintel/backend/internal/pipeline"
)

// RegisterDocumentRoutes wires the upload/ingest surface spec §4.1/§4.4
// describe onto an authenticated route group.
func (h *Handler) RegisterDocumentRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.UploadDocument)
	rg.GET("/documents", h.ListDocuments)
	rg.GET("/documents/:id", h.GetDocument)
	rg.DELETE("/documents/:id", h.DeleteDocument)

	rg.POST("/collections", h.CreateCollection)
	rg.GET("/collections", h.ListCollections)
	rg.GET("/collections/:id", h.GetCollection)
	rg.POST("/collections/:id/documents/:document_id", h.LinkDocumentToCollection)
}

// documentTierField is the multipart form field a caller sets to pick the
// parser tier (spec §4.6 Open Question: no tier claim exists on
// auth.Claims, so tier is a per-upload request parameter rather than a
// tenant-persisted attribute; default "free" when omitted).
const documentTierField = "tier"

// UploadDocument validates and hashes the upload, performs the content-hash
// dedup check, and — only for a genuinely new document — enqueues the
// parse→chunk→embed→store_vectors chain onto the shared pipeline.Pool
// (spec §4.1 step "Create", §4.4).
func (h *Handler) UploadDocument(c *gin.Context) {
	tenantID, userID, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "file is required", err)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "could not open uploaded file", err)
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		writeError(c, http.StatusBadRequest, "could not read uploaded file", err)
		return
	}
	if len(raw) == 0 {
		writeError(c, http.StatusBadRequest, "uploaded file is empty", nil)
		return
	}

	tier := parser.Tier(c.PostForm(documentTierField))
	if tier == "" {
		tier = parser.TierFree
	}
	pdfType := parser.DetectPDFType(raw)

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	ctx := c.Request.Context()

	_, err = h.Documents.GetByHash(ctx, tenantID, hash)
	isNew := isNotFound(err)
	if err != nil && !isNew {
		writeError(c, http.StatusInternalServerError, "could not check for duplicate document", err)
		return
	}

	// Content-addressed storage key: identical bytes always resolve to the
	// same object regardless of upload order, sidestepping the
	// document-ID-before-it-exists ordering problem Create's own
	// uuid.New() would otherwise create.
	storageKey := "documents/" + tenantID.String() + "/" + hash
	if err := writeArtifactBytes(ctx, h.Storage, storageKey, raw); err != nil {
		writeError(c, http.StatusInternalServerError, "could not store uploaded file", err)
		return
	}

	doc, err := h.Documents.Create(ctx, tenantID, userID, fileHeader.Filename, storageKey, fileHeader.Size, hash, 0)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not create document", err)
		return
	}

	if !isNew {
		c.JSON(http.StatusOK, doc)
		return
	}

	var collectionID *uuid.UUID
	if raw := c.PostForm("collection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid collection_id", err)
			return
		}
		collectionID = &id
	}

	job := &models.Job{TenantID: tenantID, DocumentID: &doc.ID}
	if err := h.Jobs.Create(ctx, job); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create job", err)
		return
	}

	data := map[string]interface{}{
		"raw":         raw,
		"tier":        tier,
		"pdf_type":    pdfType,
		"document_id": doc.ID,
		"filename":    fileHeader.Filename,
	}
	if collectionID != nil {
		data["collection_id"] = *collectionID
	}

	payload := pipeline.Payload{JobID: job.JobID.String(), TenantID: tenantID.String(), Data: data}
	observer := newJobObserver(h.Jobs, h.Documents, h.Bus, job.JobID, doc.ID)

	submitCtx, cancel := context.WithTimeout(context.Background(), h.JobTimeout)
	defer cancel()
	if !h.Pool.Submit(submitCtx, pipeline.Job{Chain: h.Chunker.Chain(), Payload: payload, Observer: observer}) {
		writeError(c, http.StatusServiceUnavailable, "ingest queue is full, retry later", nil)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"document": doc, "job_id": job.JobID})
}

func (h *Handler) GetDocument(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.Documents.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "document not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load document", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}

	docs, err := h.Documents.List(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not list documents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Documents.Get(ctx, tenantID, id); err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "document not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load document", err)
		return
	}

	if err := h.Documents.Delete(ctx, id); err != nil {
		writeError(c, http.StatusInternalServerError, "could not delete document", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateCollection(c *gin.Context) {
	tenantID, userID, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}

	var body struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	col := &models.Collection{TenantID: tenantID, UserID: userID, Name: body.Name}
	if err := h.Collections.Create(c.Request.Context(), col); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create collection", err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (h *Handler) ListCollections(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}

	cols, err := h.Collections.List(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not list collections", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": cols})
}

func (h *Handler) GetCollection(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	col, err := h.Collections.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "collection not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load collection", err)
		return
	}
	c.JSON(http.StatusOK, col)
}

// LinkDocumentToCollection adds a document to a collection and recomputes
// the collection's derived counters (spec §5 "Counter truth").
func (h *Handler) LinkDocumentToCollection(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	collectionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	documentID, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.Collections.Get(ctx, tenantID, collectionID); err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "collection not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load collection", err)
		return
	}
	if _, err := h.Documents.Get(ctx, tenantID, documentID); err != nil {
		if isNotFound(err) {
			writeError(c, http.StatusNotFound, "document not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load document", err)
		return
	}

	if err := h.Membership.LinkDocumentToCollection(ctx, collectionID, documentID); err != nil {
		writeError(c, http.StatusInternalServerError, "could not link document to collection", err)
		return
	}
	c.Status(http.StatusNoContent)
}
