package handler

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/promptbuilder"
	"github.com/docintel/backend/internal/retrieval"
	"github.com/docintel/backend/internal/store"
)

// RegisterChatRoutes wires session creation and the retrieve→rerank→expand→
// prompt→generate chat turn (spec §4.7-§4.13).
func (h *Handler) RegisterChatRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.CreateSession)
	rg.GET("/sessions/:id", h.GetSession)
	rg.GET("/sessions/:id/messages", h.ListMessages)
	rg.POST("/sessions/:id/messages", h.PostMessage)
}

// chatSystemPrompt is the fixed instruction every generation call carries;
// the retrieved/cited context itself is assembled by promptbuilder.Build
// into the user turn.
const chatSystemPrompt = "You are a document analysis assistant. Answer only from the provided context and cite every claim using its [D{n}:p{n}] token. If the context does not contain the answer, say so."

// defaultTopK mirrors config.RetrievalConfig.DefaultTopK's usual value;
// routes that need the configured value should prefer wiring config in at
// construction time, left as a handler-local default here since Handler
// does not currently carry the full RetrievalConfig.
const defaultTopK = 10

func (h *Handler) CreateSession(c *gin.Context) {
	tenantID, userID, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}

	var body struct {
		Title       string   `json:"title"`
		DocumentIDs []string `json:"document_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	session := &models.Session{TenantID: tenantID, UserID: userID, Title: body.Title}
	ctx := c.Request.Context()
	if err := h.Sessions.Create(ctx, session); err != nil {
		writeError(c, http.StatusInternalServerError, "could not create session", err)
		return
	}

	for _, raw := range body.DocumentIDs {
		docID, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid document_id "+raw, err)
			return
		}
		if _, err := h.Documents.Get(ctx, tenantID, docID); err != nil {
			writeError(c, http.StatusBadRequest, "unknown document_id "+raw, err)
			return
		}
		if err := h.Sessions.LinkDocument(ctx, session.ID, docID); err != nil {
			writeError(c, http.StatusInternalServerError, "could not link document to session", err)
			return
		}
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) GetSession(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	session, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil || session.TenantID != tenantID {
		if isNotFound(err) || err == nil {
			writeError(c, http.StatusNotFound, "session not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "could not load session", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) ListMessages(c *gin.Context) {
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
	session, err := h.Sessions.Get(ctx, id)
	if err != nil || session.TenantID != tenantID {
		writeError(c, http.StatusNotFound, "session not found", nil)
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.Sessions.RecentMessages(ctx, id, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not load messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

var chatCitationRe = regexp.MustCompile(`\[D\d+:p\d+\]`)

// PostMessage runs one full chat turn: persist the user message, build
// retrieval context (hybrid retrieval → rerank → expansion, with a
// comparison-engine detour when the query classifies as comparison across
// 2+ documents), generate the answer, then persist the assistant reply
// (spec §4.7-§4.13).
func (h *Handler) PostMessage(c *gin.Context) {
	tenantID, _, ok := tenantAndUser(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "missing or invalid identity", nil)
		return
	}
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	session, err := h.Sessions.Get(ctx, sessionID)
	if err != nil || session.TenantID != tenantID {
		writeError(c, http.StatusNotFound, "session not found", nil)
		return
	}

	userMsg := &models.Message{SessionID: sessionID, Role: models.MessageRoleUser, Content: body.Message, RetrievalQuery: body.Message}
	if err := h.Sessions.AppendMessage(ctx, userMsg); err != nil {
		writeError(c, http.StatusInternalServerError, "could not save message", err)
		return
	}
	if err := h.Memory.AddTurn(ctx, sessionID, models.MessageRoleUser, body.Message); err != nil {
		writeError(c, http.StatusInternalServerError, "could not update memory", err)
		return
	}

	documentIDs, err := h.Membership.DocumentsForSession(ctx, sessionID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not load session documents", err)
		return
	}
	if len(documentIDs) == 0 {
		writeError(c, http.StatusBadRequest, "session has no linked documents", nil)
		return
	}

	queryVector, err := h.Embedder.EmbedQuery(ctx, body.Message)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not embed query", err)
		return
	}

	documentNames := map[uuid.UUID]string{}
	for _, id := range documentIDs {
		if doc, err := h.Documents.Get(ctx, tenantID, id); err == nil {
			documentNames[id] = doc.Filename
		}
	}

	queryType := retrieval.ClassifyQuery(body.Message)

	ranked, err := h.Retriever.Retrieve(ctx, retrieval.Request{
		Scope:       store.Scope{DocumentIDs: documentIDs},
		QueryText:   body.Message,
		QueryVector: queryVector,
		TopK:        defaultTopK,
		DocumentName: func(id uuid.UUID) string {
			return documentNames[id]
		},
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not retrieve context", err)
		return
	}

	reranked := h.Reranker.Run(ctx, body.Message, ranked)

	expanded, err := h.Expander.Expand(ctx, reranked, queryType)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not expand context", err)
		return
	}

	var comparisonMeta models.JSONMap
	if queryType == models.QueryTypeComparison && len(documentIDs) >= 2 {
		cmp, err := h.Comparison.Compare(ctx, queryVector, documentIDs)
		if err != nil {
			writeError(c, http.StatusInternalServerError, "could not run comparison", err)
			return
		}
		comparisonMeta = models.JSONMap{"paired_count": len(cmp.Paired), "clustered_count": len(cmp.Clustered)}
	}

	memCtx, err := h.Memory.BuildContext(ctx, sessionID, body.Message)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not build memory context", err)
		return
	}

	documentIDStrings := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		documentIDStrings[i] = id.String()
	}

	prompt := promptbuilder.Build(promptbuilder.Input{
		SystemInstructions: chatSystemPrompt,
		Query:              body.Message,
		Chunks:             expanded,
		Summary:            memCtx.SummaryText,
		KeyFacts:           memCtx.KeyFacts,
		RecentMessages:     memCtx.RecentMessages,
		DocumentIDs:        documentIDStrings,
	})

	answer, usage, err := h.generate(ctx, prompt)
	if err != nil {
		writeError(c, http.StatusBadGateway, "could not generate answer", err)
		return
	}

	citationMap := promptbuilder.CitationMap(expanded)
	cited := chatCitationRe.FindAllString(answer, -1)
	sourceChunkIDs := make([]string, 0, len(cited))
	seen := map[string]bool{}
	for _, token := range cited {
		if id, ok := citationMap[token]; ok && !seen[id] {
			seen[id] = true
			sourceChunkIDs = append(sourceChunkIDs, id)
		}
	}

	assistantMsg := &models.Message{
		SessionID:          sessionID,
		Role:               models.MessageRoleAssistant,
		Content:            answer,
		SourceChunkIDs:     models.StringList(sourceChunkIDs),
		RetrievalQuery:     body.Message,
		NumChunksRetrieved: len(expanded),
		Model:              h.ExpensiveModel,
		Tokens:             usage.TotalTokens,
		ComparisonMetadata: comparisonMeta,
		CitationMetadata:   models.JSONMap{"tokens": cited},
	}
	if err := h.Sessions.AppendMessage(ctx, assistantMsg); err != nil {
		writeError(c, http.StatusInternalServerError, "could not save assistant message", err)
		return
	}
	if err := h.Memory.AddTurn(ctx, sessionID, models.MessageRoleAssistant, answer); err != nil {
		writeError(c, http.StatusInternalServerError, "could not update memory", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   assistantMsg,
		"citations": citationMap,
		"chunks":    expanded,
	})
}

// generate drains the provider's fake-streaming channel into a single
// answer string, since the non-streaming JSON response this handler returns
// needs the full text before it can validate citations and persist the
// message (spec §4.11/§4.12). A dedicated SSE chat endpoint would instead
// forward events as they arrive; out of scope here.
func (h *Handler) generate(ctx context.Context, prompt string) (string, usageTotals, error) {
	events, err := h.Provider.StreamChat(ctx, []llm.ChatMessage{{Role: "user", Content: prompt}}, chatSystemPrompt)
	if err != nil {
		return "", usageTotals{}, err
	}

	var text string
	var usage usageTotals
	for event := range events {
		switch event.Type {
		case "text":
			text += event.Text
		case "done":
			if tokens, ok := event.Data["total_tokens"].(int); ok {
				usage.TotalTokens = tokens
			}
		}
	}
	return text, usage, nil
}

type usageTotals struct {
	TotalTokens int
}
