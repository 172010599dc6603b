// Package llm defines the external collaborator interfaces spec §6 names —
// Storage backend, Embedding provider, LLM provider — plus the concrete
// HTTP-based implementations used as their process-wide defaults, grounded
// on the teacher's raw net/http-to-router-base-URL pattern
// (services/memory/consolidation.go GenerateSummary/ExtractFacts,
// services/impl/document_context_impl.go RetrieveVectorContext).
package llm

import "context"

// ChatMessage is one turn passed to a chat-style LLM call.
type ChatMessage struct {
	Role    string
	Content string
}

// Usage records token accounting for a single LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ExtractResult is the outcome of a structured-extraction call (spec §6).
type ExtractResult struct {
	RawText string
	Data    map[string]interface{}
	Usage   Usage
}

// StreamEvent is one element of the async sequence stream_chat yields.
type StreamEvent struct {
	Type string // "text" | "data" | "done"
	Text string
	Data map[string]interface{}
}

// PageText is one page of narrative/table text submitted for batch
// summarization (spec §6 summarize_chunks_batch).
type PageText struct {
	Page int
	Text string
}

// Provider is the LLM external interface spec §6 names: structured
// extraction, streaming chat, and batch summarization. Implementations must
// honor the configured timeout and surface rate-limit/overload errors as
// retryable (wrapped as *models.ClassifiedError by callers).
type Provider interface {
	ExtractStructuredData(ctx context.Context, userText, systemPrompt string, jsonContext map[string]interface{}, useCache bool) (*ExtractResult, error)
	StreamChat(ctx context.Context, messages []ChatMessage, systemPrompt string) (<-chan StreamEvent, error)
	SummarizeChunksBatch(ctx context.Context, pages []PageText, model string) ([]string, error)
}

// EmbeddingProvider is spec §6's embedding provider interface. Dimension
// must match the configured column width; callers treat a mismatch at store
// time as a hard error (spec §6).
type EmbeddingProvider interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

// StorageBackend is spec §6's uniform object-store/filesystem interface.
// Keys use the prefixes documents/, templates/, fills/; any other path is
// treated as a legacy local path.
type StorageBackend interface {
	Upload(ctx context.Context, localPath, storageKey string) (string, error)
	Download(ctx context.Context, storageKey, localPath string) error
	GeneratePresignedURL(ctx context.Context, storageKey string, ttlSeconds int) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	StorageType() string // "remote" | "local"
}
