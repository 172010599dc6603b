// Package expander implements the Context Expander (spec §4.9): given a
// ranked retrieval result, pulls in structurally related chunks (parent
// section, sibling continuations, linked tables) the ranked list alone would
// miss, tagging each addition with its reason and dampening its inherited
// score so expanded content never outranks a genuine retrieval hit.
package expander

import (
	"context"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/store"
)

// dampenFactor maps an expansion reason to its inherited-score multiplier,
// the named values spec §4.9 gives: 0.90 for tables, 0.85 for linked tables,
// 0.75 for continuation parents. sibling_continuation and linked_narrative
// reuse the nearest-named factor the spec doesn't separately enumerate.
func dampenFactor(reason string) float64 {
	switch reason {
	case "linked_table":
		return 0.85
	case "linked_narrative":
		return 0.90
	case "parent_section", "sibling_continuation":
		return 0.75
	default:
		return 0.75
	}
}

// Plan describes which expansion moves a query type authorizes (spec §4.9
// step 1, "query-type-driven batch expansion plan").
type Plan struct {
	IncludeParent          bool
	IncludeSiblings        bool
	IncludeLinkedTables    bool
	IncludeLinkedNarrative bool
	// MaxPerChunk bounds how many expansion chunks a single origin chunk
	// may contribute; 0 means unbounded (spec §4.9: "general_qa/comparison
	// ... bounded by max_expansion_per_chunk (default 2)").
	MaxPerChunk int
}

// DefaultMaxExpansionPerChunk mirrors config.RetrievalConfig.
// MaxExpansionPerChunk's default (spec §4.9).
const DefaultMaxExpansionPerChunk = 2

// PlanFor derives the expansion plan from the query type classification the
// retriever already attached to each chunk (spec §4.9):
//   - data_extraction: tables fetch their narrative, narratives fetch up to
//     2 linked tables, continuations fetch their parent.
//   - summarization: only continuation parents.
//   - entity_lookup: tables fetch narrative only, no extra tables.
//   - general_qa/comparison: both directions, bounded by MaxPerChunk.
func PlanFor(qt models.QueryType) Plan {
	switch qt {
	case models.QueryTypeDataExtraction:
		return Plan{IncludeParent: true, IncludeLinkedTables: true, IncludeLinkedNarrative: true, MaxPerChunk: DefaultMaxExpansionPerChunk}
	case models.QueryTypeSummarization:
		return Plan{IncludeParent: true}
	case models.QueryTypeEntityLookup:
		return Plan{IncludeLinkedNarrative: true}
	case models.QueryTypeGeneralQA, models.QueryTypeComparison:
		return Plan{IncludeParent: true, IncludeSiblings: true, IncludeLinkedTables: true, IncludeLinkedNarrative: true, MaxPerChunk: DefaultMaxExpansionPerChunk}
	default:
		return Plan{}
	}
}

type Expander struct {
	chunks *store.ChunkStore
}

func NewExpander(chunks *store.ChunkStore) *Expander {
	return &Expander{chunks: chunks}
}

// Expand fetches every structurally related chunk the plan authorizes for
// the given ranked result, in one batch query covering every related id
// (after one batch query for the ranked chunks' own rows) (spec §4.9:
// "single-batch-query fetch", not one round trip per chunk), and
// appends them with `_expansion_reason`/`_expanded_from` tags and a
// dampened inherited score.
func (e *Expander) Expand(ctx context.Context, ranked []models.RetrievedChunk, qt models.QueryType) ([]models.RetrievedChunk, error) {
	plan := PlanFor(qt)
	if !plan.IncludeParent && !plan.IncludeSiblings && !plan.IncludeLinkedTables && !plan.IncludeLinkedNarrative {
		return ranked, nil
	}

	seen := make(map[string]bool, len(ranked))
	for _, c := range ranked {
		seen[c.ID] = true
	}

	var toFetch []uuid.UUID
	reasons := make(map[uuid.UUID]string)
	expandedFrom := make(map[uuid.UUID]string)
	sourceScore := make(map[uuid.UUID]float64)

	// Relationship ids live on the originating models.Chunk, which the
	// retriever does not currently thread through RetrievedChunk.Metadata
	// as typed fields — expansion therefore re-fetches the source chunks to
	// read their relationship pointers, a second batch query rather than a
	// per-candidate one.
	sourceIDs := make([]uuid.UUID, 0, len(ranked))
	for _, c := range ranked {
		id, err := uuid.Parse(c.ID)
		if err != nil {
			continue
		}
		sourceIDs = append(sourceIDs, id)
	}
	sources, err := e.chunks.FetchMany(ctx, sourceIDs)
	if err != nil {
		return nil, err
	}
	scoreByID := make(map[string]float64, len(ranked))
	for _, c := range ranked {
		scoreByID[c.ID] = c.Score()
	}

	for _, src := range sources {
		srcScore := scoreByID[src.ID.String()]
		budget := plan.MaxPerChunk
		contributed := 0
		take := func(id uuid.UUID, reason string) {
			if budget > 0 && contributed >= budget {
				return
			}
			if queueRelated(&toFetch, reasons, expandedFrom, sourceScore, seen,
				id, reason, src.ID.String(), srcScore) {
				contributed++
			}
		}

		if plan.IncludeParent && src.Metadata.ParentChunkID != "" {
			if id, err := uuid.Parse(src.Metadata.ParentChunkID); err == nil {
				take(id, "parent_section")
			}
		}
		if plan.IncludeSiblings {
			for _, sib := range src.Metadata.SiblingChunkIDs {
				if id, err := uuid.Parse(sib); err == nil {
					take(id, "sibling_continuation")
				}
			}
		}
		if plan.IncludeLinkedTables {
			for _, tbl := range src.Metadata.LinkedTableIDs {
				if id, err := uuid.Parse(tbl); err == nil {
					take(id, "linked_table")
				}
			}
		}
		if plan.IncludeLinkedNarrative && src.Metadata.LinkedNarrativeID != "" {
			if id, err := uuid.Parse(src.Metadata.LinkedNarrativeID); err == nil {
				take(id, "linked_narrative")
			}
		}
	}

	if len(toFetch) == 0 {
		return ranked, nil
	}

	expanded, err := e.chunks.FetchMany(ctx, toFetch)
	if err != nil {
		return nil, err
	}

	out := append([]models.RetrievedChunk{}, ranked...)
	for _, c := range expanded {
		if seen[c.ID.String()] {
			continue
		}
		seen[c.ID.String()] = true

		rc := fromChunk(c)
		rc.HybridScore = sourceScore[c.ID] * dampenFactor(reasons[c.ID])
		rc.ExpansionReason = reasons[c.ID]
		rc.ExpandedFrom = expandedFrom[c.ID]
		out = append(out, rc)
	}
	return out, nil
}

// queueRelated adds id to the fetch batch unless it's already in the
// original ranked set (seen) or already queued (tracked via reasons), so a
// chunk reachable by two different relationship edges is only fetched once
// and only counts once against a plan's MaxPerChunk budget.
func queueRelated(toFetch *[]uuid.UUID, reasons, expandedFrom map[uuid.UUID]string, sourceScore map[uuid.UUID]float64, seen map[string]bool, id uuid.UUID, reason, fromID string, score float64) bool {
	if seen[id.String()] {
		return false
	}
	if _, queued := reasons[id]; queued {
		return false
	}
	*toFetch = append(*toFetch, id)
	reasons[id] = reason
	expandedFrom[id] = fromID
	sourceScore[id] = score
	return true
}

func fromChunk(c models.Chunk) models.RetrievedChunk {
	var page *int
	if c.PageNumber > 0 {
		p := c.PageNumber
		page = &p
	}
	return models.RetrievedChunk{
		ID:           c.ID.String(),
		DocumentID:   c.DocumentID.String(),
		DocumentName: c.DocumentFilename,
		Content:      c.Text,
		ChunkNumber:  c.ChunkIndex,
		PageNumber:   page,
		IsTabular:    c.IsTabular,
	}
}
