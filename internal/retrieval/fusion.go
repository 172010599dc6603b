package retrieval

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/store"
)

// rrfK is the Reciprocal Rank Fusion damping constant spec §4.7 names
// ("rrf_k≈60") — the standard TREC value, left as a constant rather than a
// config knob since the spec gives it as a fixed point, not a tunable.
// config.RetrievalConfig.RRFK is not read here.
const rrfK = 60.0

// narrativeBoost is the bounded metadata-match multiplier spec §4.7 step 4
// describes ("bounded factors", not unbounded reweighting); the table boost
// is a constant inside ChunkStore.KeywordSearch.
const narrativeBoost = 1.08

// Retriever runs the Hybrid Retriever pipeline over a single store.ChunkStore:
// dense + lexical fan-out, min-max normalization (performed per-list inside
// store.ChunkStore), Reciprocal Rank Fusion, and metadata boosting.
type Retriever struct {
	chunks *store.ChunkStore
}

func NewRetriever(chunks *store.ChunkStore) *Retriever {
	return &Retriever{chunks: chunks}
}

// Request bundles one retrieval call's parameters.
type Request struct {
	Scope        store.Scope
	QueryText    string
	QueryVector  []float32
	TopK         int
	DocumentName func(documentID uuid.UUID) string
}

// Retrieve runs dense and lexical search against the same scope, classifies
// the query, fuses the two ranked lists with RRF, applies the bounded
// narrative-content boost, and returns the top TopK as models.RetrievedChunk,
// rerank-ready (spec §4.7).
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]models.RetrievedChunk, error) {
	qt := ClassifyQuery(req.QueryText)
	prefs := PreferencesFor(qt)

	fetchK := req.TopK * 4
	if fetchK < 40 {
		fetchK = 40
	}

	dense, err := r.chunks.SemanticSearch(ctx, req.QueryVector, req.Scope, fetchK, nil)
	if err != nil {
		return nil, err
	}
	lexical, err := r.chunks.KeywordSearch(ctx, req.QueryText, req.Scope, fetchK, prefs.PreferTables)
	if err != nil {
		return nil, err
	}

	fused := reciprocalRankFusion(dense, lexical)

	out := make([]models.RetrievedChunk, 0, len(fused))
	for rank, fc := range fused {
		name := ""
		if req.DocumentName != nil {
			name = req.DocumentName(fc.chunk.DocumentID)
		}
		store.NormalizeChunk(&fc.chunk, name)

		rc := toRetrievedChunk(fc.chunk, qt)
		rc.HybridScore = fc.score * boostFactor(fc.chunk, prefs)
		rc.SemanticRank = fc.denseRank
		rc.KeywordRank = fc.lexicalRank
		_ = rank
		out = append(out, rc)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].HybridScore > out[j].HybridScore })
	if len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

func toRetrievedChunk(c models.Chunk, qt models.QueryType) models.RetrievedChunk {
	var page *int
	if c.PageNumber > 0 {
		p := c.PageNumber
		page = &p
	}
	contentType := "narrative"
	if c.IsTabular {
		contentType = "table"
	}
	return models.RetrievedChunk{
		ID:           c.ID.String(),
		DocumentID:   c.DocumentID.String(),
		DocumentName: c.DocumentFilename,
		Content:      c.Text,
		ChunkNumber:  c.ChunkIndex,
		PageNumber:   page,
		ContentType:  contentType,
		IsTabular:    c.IsTabular,
		Metadata: map[string]interface{}{
			"section_heading": c.SectionHeading,
			"section_path":    c.Metadata.SectionPath,
			"query_type":      qt,
		},
	}
}

type fusedCandidate struct {
	chunk       models.Chunk
	score       float64
	denseRank   int
	lexicalRank int
}

// reciprocalRankFusion combines two independently ranked candidate lists
// using RRF: score(d) = sum(1 / (rrf_k + rank_i(d))) over every list the
// document appears in. Chunks present in both lists accumulate both terms,
// which is the mechanism by which agreement between dense and lexical search
// outranks a single-source hit — the property spec §4.7 calls out.
func reciprocalRankFusion(dense, lexical []store.ScoredChunk) []fusedCandidate {
	scores := make(map[uuid.UUID]float64)
	chunks := make(map[uuid.UUID]models.Chunk)
	denseRank := make(map[uuid.UUID]int)
	lexicalRank := make(map[uuid.UUID]int)

	for rank, sc := range dense {
		scores[sc.Chunk.ID] += 1.0 / (rrfK + float64(rank+1))
		chunks[sc.Chunk.ID] = sc.Chunk
		denseRank[sc.Chunk.ID] = rank + 1
	}
	for rank, sc := range lexical {
		scores[sc.Chunk.ID] += 1.0 / (rrfK + float64(rank+1))
		chunks[sc.Chunk.ID] = sc.Chunk
		lexicalRank[sc.Chunk.ID] = rank + 1
	}

	out := make([]fusedCandidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedCandidate{
			chunk:       chunks[id],
			score:       score,
			denseRank:   denseRank[id],
			lexicalRank: lexicalRank[id],
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// boostFactor applies the bounded narrative-content multiplier for
// summarization queries; table boosting already happens inside
// ChunkStore.KeywordSearch for data-extraction queries, so it is not
// duplicated here.
func boostFactor(c models.Chunk, prefs ContentPreferences) float64 {
	if prefs.PreferNarrative && !c.IsTabular {
		return narrativeBoost
	}
	return 1.0
}
