package models

// QueryType classifies a retrieval query, driving metadata boosting (§4.7)
// and context expansion (§4.9). Grounded on the teacher's document-context
// request shaping, generalized to the five query types the spec names.
type QueryType string

const (
	QueryTypeDataExtraction QueryType = "data_extraction"
	QueryTypeSummarization  QueryType = "summarization"
	QueryTypeEntityLookup   QueryType = "entity_lookup"
	QueryTypeGeneralQA      QueryType = "general_qa"
	QueryTypeComparison     QueryType = "comparison"
)

// RetrievalScope selects either a collection (joined through membership) or
// an explicit set of document ids. Exactly one must be set (spec §4.2).
type RetrievalScope struct {
	CollectionID string
	DocumentIDs  []string
}

// RetrievedChunk is a chunk as it flows through retrieval/rerank/expansion,
// carrying every score and provenance field those stages attach. Grounded on
// the teacher's models.RetrievedChunk (document_context.go) extended with
// the hybrid/rerank/expansion fields spec §4.7-§4.9 require.
type RetrievedChunk struct {
	ID             string                 `json:"id"`
	DocumentID     string                 `json:"document_id"`
	DocumentName   string                 `json:"document_name"`
	Content        string                 `json:"content"`
	ChunkNumber    int                    `json:"chunk_number"`
	TotalChunks    int                    `json:"total_chunks,omitempty"`
	PageNumber     *int                   `json:"page_number,omitempty"`
	ContentType    string                 `json:"content_type,omitempty"`
	Language       string                 `json:"language,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IsTabular      bool                   `json:"is_tabular,omitempty"`

	// Hybrid fusion (§4.7)
	SemanticScore  float64 `json:"semantic_score,omitempty"`
	SemanticRank   int     `json:"semantic_rank,omitempty"`
	KeywordScore   float64 `json:"keyword_score,omitempty"`
	KeywordRank    int     `json:"keyword_rank,omitempty"`
	HybridScore    float64 `json:"hybrid_score,omitempty"`

	// Rerank + compression (§4.8)
	RerankScore        float64 `json:"rerank_score,omitempty"`
	CompressionMethod   string  `json:"compression_method,omitempty"`
	OriginalTokens      int     `json:"original_tokens,omitempty"`
	CompressedTokens    int     `json:"compressed_tokens,omitempty"`
	CompressionRatio    float64 `json:"compression_ratio,omitempty"`

	// Expansion (§4.9)
	ExpansionReason string `json:"expansion_reason,omitempty"`
	ExpandedFrom    string `json:"expanded_from,omitempty"`

	// Citation (§4.11/§4.12/§6)
	CitationToken string `json:"citation_token,omitempty"`
}

// Score returns the chunk's effective ranking score: rerank score if the
// reranker ran, otherwise the hybrid fusion score (spec §4.8 "If the
// reranker is disabled, hybrid_score is used").
func (c *RetrievedChunk) Score() float64 {
	if c.RerankScore != 0 {
		return c.RerankScore
	}
	return c.HybridScore
}
