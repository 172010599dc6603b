// Package workflow implements the Workflow Engine (spec §4.12):
// per-section retrieval with diversity filtering, a direct-synthesis-vs-
// map-reduce decision driven by retrieved token volume, the map (per-
// section, cheap-model summarization) and reduce (expensive-model
// synthesis) stages, output normalization, and citation-closure
// validation. Grounded on original_source's
// app/services/workflows/normalization.py for the normalization rules and
// app/core/rag/workflow_engine's retrieve-then-synthesize shape, expressed
// here as a composition of the existing retrieval/rerank/expander/llm
// packages rather than a standalone orchestrator.
package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/expander"
	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/rerank"
	"github.com/docintel/backend/internal/retrieval"
	"github.com/docintel/backend/internal/store"
	"github.com/docintel/backend/internal/utils"
)

// Config holds the engine's process-wide tunables (spec §4.12, §5
// "Embedding batch size... diversity ratio are process-wide
// configuration").
type Config struct {
	DirectThresholdTokens int
	DiversityRatio        float64
	CheapModel            string
	SynthesisModel        string
}

func DefaultConfig() Config {
	return Config{DirectThresholdTokens: 10000, DiversityRatio: 0.5, CheapModel: "cheap", SynthesisModel: "synthesis"}
}

// EmbedQuery mirrors embedder.Embedder.EmbedQuery, kept as a narrow
// interface so the engine doesn't import the whole embedder package.
type EmbedQuery interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Engine struct {
	retriever *retrieval.Retriever
	reranker  *rerank.Reranker
	expander  *expander.Expander
	embedder  EmbedQuery
	provider  llm.Provider
	cfg       Config
}

func NewEngine(retriever *retrieval.Retriever, reranker *rerank.Reranker, exp *expander.Expander, emb EmbedQuery, provider llm.Provider, cfg Config) *Engine {
	return &Engine{retriever: retriever, reranker: reranker, expander: exp, embedder: emb, provider: provider, cfg: cfg}
}

// SectionResult is one retrieval_spec entry's assembled, map-stage output.
type SectionResult struct {
	Key        string
	Title      string
	Chunks     []models.RetrievedChunk
	Summary    string
	KeyMetrics []string
	Tables     []models.RetrievedChunk
}

// Result is the engine's complete output for one workflow run.
type Result struct {
	Mode            models.WorkflowRunMode
	Sections        []SectionResult
	Output          models.JSONMap
	ContextStats    models.ContextStats
	ValidationErrors []string
	Citations       []string
}

// Run executes the full per-section retrieval → mode decision → map/reduce
// pipeline for one workflow run over a fixed document set.
func (e *Engine) Run(ctx context.Context, wf models.Workflow, documentIDs []uuid.UUID, variables map[string]interface{}, documentName func(uuid.UUID) string) (*Result, error) {
	docIDStrings := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		docIDStrings[i] = id.String()
	}

	sections := make([]SectionResult, 0, len(wf.RetrievalSpec))
	totalTokens := 0
	perSectionChunks := make(map[string]int, len(wf.RetrievalSpec))

	for _, spec := range wf.RetrievalSpec {
		ranked, err := e.retrieveSection(ctx, spec, documentIDs, documentName)
		if err != nil {
			return nil, fmt.Errorf("workflow: retrieve section %q: %w", spec.Key, err)
		}
		filtered := diversityFilter(ranked, spec.MaxChunks, e.cfg.DiversityRatio)
		tagCitations(filtered, &docIDStrings)

		sec := SectionResult{Key: spec.Key, Title: spec.Title}
		for _, c := range filtered {
			if c.IsTabular {
				sec.Tables = append(sec.Tables, c)
			} else {
				sec.Chunks = append(sec.Chunks, c)
			}
			totalTokens += utils.EstimateTokensMax(c.Content)
		}
		perSectionChunks[spec.Key] = len(filtered)
		sections = append(sections, sec)
	}

	mode := models.WorkflowRunModeDirect
	if totalTokens > e.cfg.DirectThresholdTokens {
		mode = models.WorkflowRunModeMapReduce
	}

	var droppedCitations []string
	if mode == models.WorkflowRunModeMapReduce {
		for i := range sections {
			dropped, err := e.mapSection(ctx, &sections[i])
			if err != nil {
				return nil, fmt.Errorf("workflow: map section %q: %w", sections[i].Key, err)
			}
			droppedCitations = append(droppedCitations, dropped...)
		}
	}

	output, err := e.reduce(ctx, wf, variables, sections, mode)
	if err != nil {
		return nil, fmt.Errorf("workflow: reduce: %w", err)
	}

	allCitations := allowedCitations(sections)
	normalized, invalid := Normalize(output, wf.Name, allCitations)

	validationErrors := append([]string{}, droppedCitations...)
	if len(invalid) > 0 {
		validationErrors = append(validationErrors, fmt.Sprintf("invalid_citations: %s", strings.Join(invalid, ", ")))
	}

	refs, _ := normalized["references"].([]string)

	return &Result{
		Mode:     mode,
		Sections: sections,
		Output:   normalized,
		ContextStats: models.ContextStats{
			TokenCount:       totalTokens,
			SectionCount:     len(sections),
			PerSectionChunks: perSectionChunks,
		},
		ValidationErrors: validationErrors,
		Citations:        refs,
	}, nil
}

// retrieveSection runs every query in the spec, merges candidates by the
// best score seen for a given chunk across queries, then reranks with the
// concatenated query text standing in for "combined-query intent" (spec
// §4.12: "reranks with a combined-query intent").
func (e *Engine) retrieveSection(ctx context.Context, spec models.RetrievalSpecEntry, documentIDs []uuid.UUID, documentName func(uuid.UUID) string) ([]models.RetrievedChunk, error) {
	fetchK := spec.MaxChunks * 2
	if fetchK < 20 {
		fetchK = 20
	}

	merged := make(map[string]models.RetrievedChunk)
	for _, q := range spec.Queries {
		vec, err := e.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return nil, err
		}
		results, err := e.retriever.Retrieve(ctx, retrieval.Request{
			Scope:        store.Scope{DocumentIDs: documentIDs},
			QueryText:    q,
			QueryVector:  vec,
			TopK:         fetchK,
			DocumentName: documentName,
		})
		if err != nil {
			return nil, err
		}
		for _, c := range results {
			if existing, ok := merged[c.ID]; !ok || c.Score() > existing.Score() {
				merged[c.ID] = c
			}
		}
	}

	candidates := make([]models.RetrievedChunk, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}

	combinedQuery := strings.Join(spec.Queries, " ")
	candidates, err := e.expander.Expand(ctx, candidates, models.QueryTypeSummarization)
	if err != nil {
		return nil, err
	}
	ranked := e.reranker.Run(ctx, combinedQuery, candidates)
	return ranked, nil
}

// diversityFilter caps how many of a section's surviving chunks come from
// any single document to at most diversityRatio*maxChunks (spec §4.12),
// preserving rank order.
func diversityFilter(ranked []models.RetrievedChunk, maxChunks int, diversityRatio float64) []models.RetrievedChunk {
	if maxChunks <= 0 {
		maxChunks = len(ranked)
	}
	perDocCap := int(float64(maxChunks) * diversityRatio)
	if perDocCap < 1 {
		perDocCap = 1
	}

	counts := make(map[string]int)
	var out []models.RetrievedChunk
	for _, c := range ranked {
		if len(out) >= maxChunks {
			break
		}
		if counts[c.DocumentID] >= perDocCap {
			continue
		}
		counts[c.DocumentID]++
		out = append(out, c)
	}
	return out
}

// tagCitations assigns each chunk its wire-exact citation token based on
// its document's position within docIDs, appending newly seen documents.
func tagCitations(chunks []models.RetrievedChunk, docIDs *[]string) {
	for i := range chunks {
		idx := indexOrAppend(docIDs, chunks[i].DocumentID)
		page := 0
		if chunks[i].PageNumber != nil {
			page = *chunks[i].PageNumber
		}
		chunks[i].CitationToken = fmt.Sprintf("[D%d:p%d]", idx, page)
	}
}

func indexOrAppend(ids *[]string, id string) int {
	for i, existing := range *ids {
		if existing == id {
			return i + 1
		}
	}
	*ids = append(*ids, id)
	return len(*ids)
}

func allowedCitations(sections []SectionResult) map[string]bool {
	set := make(map[string]bool)
	for _, s := range sections {
		for _, c := range s.Chunks {
			set[c.CitationToken] = true
		}
		for _, c := range s.Tables {
			set[c.CitationToken] = true
		}
	}
	return set
}

// mapSection summarizes a section's narrative chunks with the cheap model
// (tables pass through verbatim per spec §4.12), extracts a deterministic
// key_metrics snapshot, and reports any citation that appeared in the
// input but not the summary text.
func (e *Engine) mapSection(ctx context.Context, sec *SectionResult) ([]string, error) {
	if len(sec.Chunks) == 0 {
		return nil, nil
	}
	pages := make([]llm.PageText, len(sec.Chunks))
	for i, c := range sec.Chunks {
		page := 0
		if c.PageNumber != nil {
			page = *c.PageNumber
		}
		pages[i] = llm.PageText{Page: page, Text: fmt.Sprintf("%s %s", c.CitationToken, c.Content)}
	}

	summaries, err := e.provider.SummarizeChunksBatch(ctx, pages, e.cfg.CheapModel)
	if err != nil {
		return nil, err
	}
	sec.Summary = strings.Join(summaries, "\n")
	sec.KeyMetrics = extractKeyMetrics(sec.Summary)

	var dropped []string
	for _, c := range sec.Chunks {
		if c.CitationToken != "" && !strings.Contains(sec.Summary, c.CitationToken) {
			dropped = append(dropped, fmt.Sprintf("%s:%s dropped from section %q summary", c.CitationToken, c.ID, sec.Key))
		}
	}
	return dropped, nil
}

// reduce assembles the per-section synthesis context and calls the
// synthesis model for a direct run, or the already-summarized sections for
// map-reduce, enforcing the workflow's output_schema as the jsonContext
// hint the structured-extraction call is built around.
func (e *Engine) reduce(ctx context.Context, wf models.Workflow, variables map[string]interface{}, sections []SectionResult, mode models.WorkflowRunMode) (models.JSONMap, error) {
	var b strings.Builder
	for _, sec := range sections {
		fmt.Fprintf(&b, "## %s\n", sec.Title)
		if mode == models.WorkflowRunModeMapReduce {
			b.WriteString(sec.Summary)
			b.WriteString("\n")
			if len(sec.KeyMetrics) > 0 {
				fmt.Fprintf(&b, "Metrics: %s\n", strings.Join(sec.KeyMetrics, "; "))
			}
		} else {
			for _, c := range sec.Chunks {
				fmt.Fprintf(&b, "%s %s\n", c.CitationToken, c.Content)
			}
		}
		for _, t := range sec.Tables {
			fmt.Fprintf(&b, "%s %s\n", t.CitationToken, t.Content)
		}
		b.WriteString("\n")
	}

	jsonContext := map[string]interface{}{"variables": variables, "output_schema": map[string]interface{}(wf.OutputSchema)}
	result, err := e.provider.ExtractStructuredData(ctx, b.String(), wf.PromptTemplate, jsonContext, false)
	if err != nil {
		return nil, err
	}
	return models.JSONMap(result.Data), nil
}

// extractKeyMetrics is a deterministic scan for standalone numeric tokens
// carrying a currency or percent marker, standing in for the cheap model's
// structured key_metrics extraction (spec §4.12) without a second LLM
// round trip per section.
var metricRe = regexp.MustCompile(`[$€£]\s?[\d,]+(?:\.\d+)?(?:[MBK%]|million|billion)?|\d+(?:\.\d+)?%`)

func extractKeyMetrics(text string) []string {
	matches := metricRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
