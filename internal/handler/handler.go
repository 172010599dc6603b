// Package handler implements the gin HTTP surface over every other
// internal package: document ingestion, job status/SSE, chat sessions,
// workflow runs, and single-document extraction. Grounded on the teacher's
// handlers package (handlers/agent_handlers.go) for the Handlers-struct-of-
// services shape, gin.Context user/tenant extraction, and
// ShouldBindJSON/JSON(http.Status...) error conventions.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/auth"
	"github.com/docintel/backend/internal/comparison"
	"github.com/docintel/backend/internal/embedder"
	"github.com/docintel/backend/internal/expander"
	"github.com/docintel/backend/internal/extraction"
	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/memory"
	"github.com/docintel/backend/internal/parser"
	"github.com/docintel/backend/internal/pipeline"
	"github.com/docintel/backend/internal/progressbus"
	"github.com/docintel/backend/internal/rerank"
	"github.com/docintel/backend/internal/retrieval"
	"github.com/docintel/backend/internal/store"
	"github.com/docintel/backend/internal/workflow"
)

// Handler bundles every collaborator a route needs. Routes are grouped into
// separate files (documents.go, jobs.go, chat.go, workflow.go,
// extraction.go) but share this one struct and its constructor, the shape
// the teacher's AgentHandlers follows.
type Handler struct {
	Verifier auth.TokenVerifier

	Documents    *store.DocumentStore
	Chunks       *store.ChunkStore
	Membership   *store.MembershipStore
	Collections  *store.CollectionStore
	Jobs         *store.JobStore
	Sessions     *store.SessionStore
	Workflows    *store.WorkflowStore
	Extractions  *store.ExtractionStore
	Feedback     *store.FeedbackStore

	Storage    llm.StorageBackend
	Embeddings llm.EmbeddingProvider
	Provider   llm.Provider
	Parsers    *parser.Registry

	Chunker    *Ingestor
	Embedder   *embedder.Embedder
	Retriever  *retrieval.Retriever
	Reranker   *rerank.Reranker
	Expander   *expander.Expander
	Memory     *memory.Service
	Workflow   *workflow.Engine
	Comparison *comparison.Engine
	Extractor  *extraction.Pipeline

	Bus  *progressbus.Bus
	Pool *pipeline.Pool

	CheapModel     string
	ExpensiveModel string

	JobTimeout time.Duration
}

// tenantAndUser pulls the verified identity gin's auth middleware attaches
// to the request context; every handler that touches tenant-scoped data
// calls this first.
func tenantAndUser(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	rawClaims, ok := c.Get("claims")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	claims, ok := rawClaims.(auth.Claims)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, userID, true
}

func writeError(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(status, body)
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func isNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}
