package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// textShowRe matches the PDF text-showing operator `(...)Tj`. Strings
// inside the array form `[...]TJ` are not matched, so text shown only that
// way is not recovered. No PDF object-model library is wired for this pack (none
// of the example repos import one), so text recovery is a direct regex
// sweep over the raw content stream rather than a full parse tree.
var textShowRe = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)

var pageBreakRe = regexp.MustCompile(`/Type\s*/Page[^s]`)

// DigitalParser extracts page text from PDFs that carry extractable
// text/font streams, grounded on original_source's PyMuPDF-backed digital
// parser (app/core/parsers/base.py) — generalized here to a dependency-free
// stream sweep since the example pack carries no Go PDF library.
type DigitalParser struct{}

func NewDigitalParser() *DigitalParser { return &DigitalParser{} }

func (p *DigitalParser) Name() string { return "digital" }

func (p *DigitalParser) Parse(ctx context.Context, data []byte) ([]Page, error) {
	pageBoundaries := pageBreakRe.FindAllIndex(data, -1)
	if len(pageBoundaries) == 0 {
		return []Page{{Page: 1, Text: extractText(data)}}, nil
	}

	pages := make([]Page, 0, len(pageBoundaries))
	for i, b := range pageBoundaries {
		start := b[0]
		end := len(data)
		if i+1 < len(pageBoundaries) {
			end = pageBoundaries[i+1][0]
		}
		pages = append(pages, Page{Page: i + 1, Text: extractText(data[start:end])})
	}
	return pages, nil
}

func extractText(segment []byte) string {
	matches := textShowRe.FindAllSubmatch(segment, -1)
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(unescapePDFString(m[1]))
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

func unescapePDFString(raw []byte) string {
	replacer := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, " ", `\r`, " ")
	return replacer.Replace(string(raw))
}

// ErrNoText is returned when a document registered as digital yields no
// extractable text at all, signaling the caller should re-route it through
// the scanned/OCR parser instead of silently indexing an empty document.
var ErrNoText = fmt.Errorf("digital parser found no extractable text")

// RequireText rejects a parse that recovered no text at all, signaling the
// caller should re-route the document through the scanned/OCR parser
// instead of silently indexing an empty document.
func RequireText(pages []Page) error {
	for _, pg := range pages {
		if strings.TrimSpace(pg.Text) != "" {
			return nil
		}
	}
	return ErrNoText
}
