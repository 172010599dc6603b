// Package parser implements the Parser Registry (spec §4.6): a tier-aware
// lookup from (user_tier, pdf_type) to a concrete Parser, refusing silent
// downgrade when a tenant's tier can't reach the parser a document needs.
// Grounded on the teacher's tier-gated routing in config.RouterConfig
// (config/config.go) — a capability/tier table looked up by key rather than
// a chain of conditionals.
package parser

import (
	"context"
	"fmt"

	"github.com/docintel/backend/internal/llm"
)

// PDFType is detected by presence of extractable text/fonts, not by file
// extension (spec §4.6).
type PDFType string

const (
	PDFTypeDigital PDFType = "digital"
	PDFTypeScanned PDFType = "scanned"
)

// Tier is a subscription tier gating parser access.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{TierFree: 0, TierPro: 1, TierEnterprise: 2}

// Page is one parsed page of text, grounded on llm.PageText.
type Page = llm.PageText

// Parser extracts page text (and, for scanned documents, runs OCR) from a
// raw document.
type Parser interface {
	Name() string
	Parse(ctx context.Context, data []byte) ([]Page, error)
}

// ErrUpgradeRequired is returned, never a silent fallback to a lesser
// parser, when the caller's tier can't reach the parser the document's
// pdf_type requires (spec §4.6).
type ErrUpgradeRequired struct {
	PDFType      PDFType
	RequiredTier Tier
	ActualTier   Tier
}

func (e *ErrUpgradeRequired) Error() string {
	return fmt.Sprintf("parsing %s PDFs requires tier %q or above, caller is on %q", e.PDFType, e.RequiredTier, e.ActualTier)
}

type registryEntry struct {
	parser       Parser
	requiredTier Tier
}

// Registry maps pdf_type to the parser that handles it plus the minimum
// tier required to use it.
type Registry struct {
	entries map[PDFType]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[PDFType]registryEntry)}
}

// Register binds a parser to a pdf_type and its minimum tier.
func (r *Registry) Register(pdfType PDFType, requiredTier Tier, p Parser) {
	r.entries[pdfType] = registryEntry{parser: p, requiredTier: requiredTier}
}

// Resolve looks up the parser for (tier, pdfType), returning
// ErrUpgradeRequired rather than degrading to a different parser when the
// tier is insufficient.
func (r *Registry) Resolve(tier Tier, pdfType PDFType) (Parser, error) {
	entry, ok := r.entries[pdfType]
	if !ok {
		return nil, fmt.Errorf("no parser registered for pdf_type %q", pdfType)
	}
	if tierRank[tier] < tierRank[entry.requiredTier] {
		return nil, &ErrUpgradeRequired{PDFType: pdfType, RequiredTier: entry.requiredTier, ActualTier: tier}
	}
	return entry.parser, nil
}

// DetectPDFType inspects the raw bytes for an extractable text/font
// indicator; a real implementation would parse the PDF's font/text object
// streams. This heuristic treats the presence of the PDF text-showing
// operators as "digital" and anything else as "scanned", which is
// sufficient to drive registry selection without a full PDF parser
// dependency in scope here.
func DetectPDFType(data []byte) PDFType {
	const sample = 65536
	n := len(data)
	if n > sample {
		n = sample
	}
	for _, op := range [][]byte{[]byte("Tj"), []byte("TJ"), []byte("/Font")} {
		if contains(data[:n], op) {
			return PDFTypeDigital
		}
	}
	return PDFTypeScanned
}

func contains(haystack, needle []byte) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
