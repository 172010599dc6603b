// Package retrieval implements the Hybrid Retriever (spec §4.7): dense +
// lexical search, Reciprocal Rank Fusion, and metadata boosting. The fusion
// and scoring shape is grounded on the teacher's HybridContextBuilder
// (services/impl/hybrid_context.go) — a weighted-sum combiner over
// independently scored candidate lists — generalized here from a two-source
// (vector/full-doc) blend to RRF over two ranked lists plus a bounded
// metadata-match multiplier.
package retrieval

import (
	"strings"

	"github.com/docintel/backend/internal/models"
)

// ClassifyQuery maps free text to one of the five query types spec §4.7
// names, by lightweight keyword heuristics — the same shape of
// classification original_source's hybrid_retriever.py performs, expressed
// without a learned classifier since the concrete model is out of scope.
func ClassifyQuery(query string) models.QueryType {
	q := strings.ToLower(query)

	switch {
	case containsAny(q, "compare", "comparison", "versus", "vs.", "difference between"):
		return models.QueryTypeComparison
	case containsAny(q, "summarize", "summary", "overview", "tl;dr"):
		return models.QueryTypeSummarization
	case containsAny(q, "revenue", "margin", "ebitda", "table", "figure", "number", "total", "percentage", "%"):
		return models.QueryTypeDataExtraction
	case containsAny(q, "who is", "what is", "define", "when did", "where is"):
		return models.QueryTypeEntityLookup
	default:
		return models.QueryTypeGeneralQA
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ContentPreferences records the query-type-driven retrieval preferences
// spec §4.7 step 1 names.
type ContentPreferences struct {
	PreferTables    bool
	PreferNarrative bool
}

func PreferencesFor(qt models.QueryType) ContentPreferences {
	switch qt {
	case models.QueryTypeDataExtraction:
		return ContentPreferences{PreferTables: true}
	case models.QueryTypeSummarization:
		return ContentPreferences{PreferNarrative: true}
	default:
		return ContentPreferences{}
	}
}
