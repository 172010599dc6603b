package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/chunker"
	"github.com/docintel/backend/internal/embedder"
	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/utils"
)

// SummaryBatchSize mirrors spec §4.14 step 3, "batches of ~10".
const SummaryBatchSize = 10

// RetryBackoffs is the extraction LLM call's retry schedule (spec §4.14
// step 5: "exponential backoff (≈2, 4, 8 s), up to 3 attempts").
var RetryBackoffs = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// DomainSystemPrompt is the structured-extraction call's system prompt.
// Kept as a package constant rather than configuration since it encodes
// the JSON output contract of the structured-extraction call.
const DomainSystemPrompt = "You are a financial analyst extracting structured diligence data from document summaries and tables. Return strict JSON matching the requested schema. Every numeric field you cannot support from the provided context must be omitted rather than guessed."

// Pipeline runs the single-document structured extraction flow.
type Pipeline struct {
	Chunker  *chunker.Chunker
	Embedder *embedder.Embedder
	Provider llm.Provider
	CheapModel string
	ExpensiveModel string
}

// Result is the pipeline's full output for one document.
type Result struct {
	CombinedContext   string
	CompressionRatio  float64
	Data              models.JSONMap
	RedFlags          []models.RedFlag
	Usage             llm.Usage
}

// Run executes chunk→summarize→combine→extract→red-flag-detect over a
// single document's pages (spec §4.14). Parsing itself is the caller's
// responsibility (internal/parser); Run starts from page text. The model's
// JSON result is passed to red-flag detection as returned: Run does no
// schema normalization or confidence clamping of it.
func (p *Pipeline) Run(ctx context.Context, documentID uuid.UUID, documentFilename string, pages []llm.PageText, variables map[string]interface{}) (*Result, error) {
	chunks := p.Chunker.ChunkDocument(documentID, documentFilename, pages)

	var narrative, tables []models.Chunk
	for _, c := range chunks {
		if c.IsTabular {
			tables = append(tables, c)
		} else {
			narrative = append(narrative, c)
		}
	}

	summaries, err := p.summarizeNarratives(ctx, narrative)
	if err != nil {
		return nil, fmt.Errorf("extraction: summarize narratives: %w", err)
	}

	combined, ratio := buildCombinedContext(summaries, narrative, tables)

	data, usage, err := p.extractWithRetry(ctx, combined, variables)
	if err != nil {
		return nil, fmt.Errorf("extraction: structured extraction: %w", err)
	}

	snapshot := snapshotFromResult(data)
	flags := DetectRedFlags(snapshot)
	data["red_flags"] = redFlagsToMaps(flags)

	return &Result{
		CombinedContext:  combined,
		CompressionRatio: ratio,
		Data:             data,
		RedFlags:         flags,
		Usage:            usage,
	}, nil
}

type pageSummary struct {
	Page int
	Text string
}

// summarizeNarratives batches narrative chunks ~10 at a time and calls the
// cheap model's batch summarizer per batch (spec §4.14 step 3). Each batch
// is independent, so a later stage can resume from whichever batches
// already completed by job id (the store-level resumable artifact paths
// on models.Job carry that, not this function).
func (p *Pipeline) summarizeNarratives(ctx context.Context, narrative []models.Chunk) ([]pageSummary, error) {
	var out []pageSummary
	for start := 0; start < len(narrative); start += SummaryBatchSize {
		end := start + SummaryBatchSize
		if end > len(narrative) {
			end = len(narrative)
		}
		batch := narrative[start:end]

		pages := make([]llm.PageText, len(batch))
		for i, c := range batch {
			pages[i] = llm.PageText{Page: c.PageNumber, Text: c.Text}
		}

		summaries, err := p.Provider.SummarizeChunksBatch(ctx, pages, p.CheapModel)
		if err != nil {
			return nil, err
		}
		for i, s := range summaries {
			out = append(out, pageSummary{Page: batch[i].PageNumber, Text: s})
		}
	}
	return out, nil
}

// buildCombinedContext assembles the wire-exact section layout spec §4.14
// step 4 specifies, and records the achieved compression ratio (summarized
// narrative size over original narrative size).
func buildCombinedContext(summaries []pageSummary, narrative, tables []models.Chunk) (string, float64) {
	var b strings.Builder
	b.WriteString("=== DOCUMENT SUMMARIES ===\n")
	originalTokens, summaryTokens := 0, 0
	for _, c := range narrative {
		originalTokens += utils.EstimateTokensMax(c.Text)
	}
	for _, s := range summaries {
		fmt.Fprintf(&b, "[Page %d]\n%s\n", s.Page, s.Text)
		summaryTokens += utils.EstimateTokensMax(s.Text)
	}

	b.WriteString("=== FINANCIAL TABLES ===\n")
	tablesByPage := groupByPage(tables)
	for _, page := range sortedPages(tablesByPage) {
		group := tablesByPage[page]
		fmt.Fprintf(&b, "[Page %d - %d tables]\n", page, len(group))
		for _, t := range group {
			b.WriteString(t.Text)
			b.WriteString("\n")
		}
	}

	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(summaryTokens) / float64(originalTokens)
	}
	return b.String(), ratio
}

func groupByPage(chunks []models.Chunk) map[int][]models.Chunk {
	m := make(map[int][]models.Chunk)
	for _, c := range chunks {
		m[c.PageNumber] = append(m[c.PageNumber], c)
	}
	return m
}

func sortedPages(m map[int][]models.Chunk) []int {
	pages := make([]int, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j] < pages[j-1]; j-- {
			pages[j], pages[j-1] = pages[j-1], pages[j]
		}
	}
	return pages
}

// extractWithRetry calls the expensive model, retrying on a retryable
// error (a *models.ClassifiedError with IsRetryable set, which
// llm.HTTPProvider reports for rate-limit/overload failures), waiting
// RetryBackoffs[attempt] between attempts, up to 3 attempts total (spec
// §4.14 step 5). Any other error is returned at once.
func (p *Pipeline) extractWithRetry(ctx context.Context, combinedContext string, variables map[string]interface{}) (models.JSONMap, llm.Usage, error) {
	jsonContext := map[string]interface{}{"variables": variables}

	var lastErr error
	for attempt := 0; attempt < len(RetryBackoffs); attempt++ {
		result, err := p.Provider.ExtractStructuredData(ctx, combinedContext, DomainSystemPrompt, jsonContext, false)
		if err == nil {
			return models.JSONMap(result.Data), result.Usage, nil
		}
		lastErr = err
		var classified *models.ClassifiedError
		if !errors.As(err, &classified) || !classified.IsRetryable || attempt == len(RetryBackoffs)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, llm.Usage{}, ctx.Err()
		case <-time.After(RetryBackoffs[attempt]):
		}
	}
	return nil, llm.Usage{}, lastErr
}

func redFlagsToMaps(flags []models.RedFlag) []map[string]interface{} {
	out := make([]map[string]interface{}, len(flags))
	for i, f := range flags {
		out[i] = map[string]interface{}{
			"rule":        f.Rule,
			"severity":    f.Severity,
			"description": f.Description,
			"evidence":    map[string]interface{}(f.Evidence),
			"source":      "automated_detection",
		}
	}
	return out
}

// snapshotFromResult leniently pulls the typed fields red-flag detection
// needs out of the LLM's free-form extraction JSON, tolerating any of them
// being absent (spec §4.14: extraction schema is domain-defined, not fixed
// at compile time).
func snapshotFromResult(data models.JSONMap) FinancialSnapshot {
	financials, _ := data["financials"].(map[string]interface{})
	ratios, _ := data["financial_ratios"].(map[string]interface{})
	operating, _ := data["operating_metrics"].(map[string]interface{})
	growth, _ := data["growth_analysis"].(map[string]interface{})
	customers, _ := data["customers"].(map[string]interface{})

	return FinancialSnapshot{
		GrossMarginByYear:        floatMap(financials, "gross_margin_by_year"),
		FCFByYear:                floatMap(operating, "fcf_by_year"),
		DebtToEquity:             floatPtr(ratios, "debt_to_equity"),
		NetDebtToEBITDA:          floatPtr(ratios, "net_debt_to_ebitda"),
		HistoricalCAGR:           floatPtr(growth, "historical_cagr"),
		CurrentRatio:             floatPtr(ratios, "current_ratio"),
		EBITDAMargin:             floatPtr(ratios, "ebitda_margin"),
		CustomerConcentrationPct: floatPtr(customers, "top_customer_concentration_pct"),
		CapexPctRevenue:          floatPtr(ratios, "capex_pct_revenue"),
	}
}

func floatMap(m map[string]interface{}, key string) map[string]float64 {
	raw, ok := m[key].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := asFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

func floatPtr(m map[string]interface{}, key string) *float64 {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
