// Package promptbuilder assembles the final LLM prompt from retrieved
// chunks and conversation state (spec §4.11). Every function here is pure:
// no I/O, no store/provider dependency, so the assembly logic is testable
// without a database or network call — the shape the teacher's
// document_context_impl.go request-building helpers follow.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/docintel/backend/internal/memory"
	"github.com/docintel/backend/internal/models"
)

// Input bundles everything a prompt needs: the user's question, the ranked
// context chunks, and whatever conversation memory exists.
type Input struct {
	SystemInstructions string
	Query              string
	Chunks             []models.RetrievedChunk
	Summary            string
	KeyFacts           []string
	RecentMessages     []memory.Entry
	// DocumentIDs is the run's ordered document_ids list; a chunk's
	// citation token encodes its document's 1-based position in this list,
	// not its position in Chunks (spec §4.11/§6: "[D{doc_index}:p{page}]",
	// regex `\[D\d+:p\d+\]`).
	DocumentIDs []string
}

// docIndex returns the 1-based position of documentID within ids, appending
// it if not already present so a chunk whose document wasn't part of the
// caller-supplied ordering still gets a stable, unique index.
func docIndex(ids *[]string, documentID string) int {
	for i, id := range *ids {
		if id == documentID {
			return i + 1
		}
	}
	*ids = append(*ids, documentID)
	return len(*ids)
}

// Build renders the full prompt: system instructions, a SUMMARY section, a
// KEY FACTS section, a RECENT MESSAGES section, the citation-tagged chunks
// under CONTEXT, then the query.
// Citation tokens use the wire-exact format [D{doc_index}:p{page_number}]
// so downstream citation validation (spec §4.12) can map a token back to
// both its chunk and its source document.
func Build(in Input) string {
	var b strings.Builder

	if in.SystemInstructions != "" {
		b.WriteString(in.SystemInstructions)
		b.WriteString("\n\n")
	}

	if in.Summary != "" {
		b.WriteString("SUMMARY:\n")
		b.WriteString(in.Summary)
		b.WriteString("\n\n")
	}
	if len(in.KeyFacts) > 0 {
		b.WriteString("KEY FACTS:\n")
		for _, f := range in.KeyFacts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(in.RecentMessages) > 0 {
		b.WriteString("RECENT MESSAGES:\n")
		for _, m := range in.RecentMessages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}

	if len(in.Chunks) > 0 {
		docIDs := append([]string{}, in.DocumentIDs...)
		b.WriteString("CONTEXT:\n")
		for i, c := range in.Chunks {
			idx := docIndex(&docIDs, c.DocumentID)
			token := fmt.Sprintf("[D%d:p%d]", idx, citationPage(c.PageNumber))
			c.CitationToken = token
			in.Chunks[i] = c
			fmt.Fprintf(&b, "%s (%s, page %s):\n%s\n\n", token, c.DocumentName, pageLabel(c.PageNumber), c.Content)
		}
	}

	b.WriteString("QUESTION:\n")
	b.WriteString(in.Query)

	return b.String()
}

func pageLabel(p *int) string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *p)
}

// citationPage returns the page number to embed in a citation token. The
// wire format requires a digit (regex `\[D\d+:p\d+\]`), so a chunk with no
// page (e.g. a synthesized expansion chunk) cites as page 0 rather than
// breaking the format.
func citationPage(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// CitationMap returns chunk ID keyed by citation token, for validating that
// every citation in a generated answer maps back to a chunk that was
// actually in context (spec §4.12).
func CitationMap(chunks []models.RetrievedChunk) map[string]string {
	m := make(map[string]string, len(chunks))
	for _, c := range chunks {
		if c.CitationToken != "" {
			m[c.CitationToken] = c.ID
		}
	}
	return m
}
