// Package chunker implements the Smart Chunker (spec §4.6): it walks a
// parsed document in reading order, groups paragraphs under their heading
// hierarchy into sections, splits oversize narratives into a linked
// continuation sequence, and emits table chunks verbatim with a link back
// to the nearest preceding narrative. Grounded on original_source's
// app/utils/chunk_metadata.py (ChunkMetadataBuilder: section/sequence/
// continuation/sibling/table fields) and app/services/tasks/
// document_processor.py for the page-walk shape; the concrete structural
// parser is out of scope (spec §1), so section/table detection here runs
// over the plain page text the Parser Registry returns.
package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/utils"
)

// Config holds the chunker's tunables (spec §4.6 names MAX_NARRATIVE_TOKENS
// ≈ 500 as the one fixed constant).
type Config struct {
	MaxNarrativeTokens int
}

func DefaultConfig() Config {
	return Config{MaxNarrativeTokens: 500}
}

// Chunker splits a parsed document's pages into narrative and table chunks.
type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

var (
	headingRe   = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	numberedRe  = regexp.MustCompile(`^(\d+(\.\d+)*)\s+[A-Z].{0,80}$`)
	allCapsRe   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 &/,.'-]{2,78}$`)
	tableRowRe  = regexp.MustCompile(`\|`)
	whitespaceN = regexp.MustCompile(`\s{2,}`)
)

// block is one reading-order unit detected on a page: either a heading, a
// narrative paragraph, or a table.
type blockKind int

const (
	blockHeading blockKind = iota
	blockParagraph
	blockTable
)

type block struct {
	kind  blockKind
	text  string
	level int // heading depth; 0 for non-headings
	rows  [][]string
	page  int
}

// ChunkDocument walks every page's text in order, builds the section tree,
// and returns the document's chunks with chunk_index 0..N-1 (spec §3/§8
// "chunk monotonicity").
func (c *Chunker) ChunkDocument(documentID uuid.UUID, documentFilename string, pages []llm.PageText) []models.Chunk {
	blocks := blocksFromPages(pages)

	var (
		chunks       []models.Chunk
		headingStack []string
		lastNarrativeID uuid.UUID
		lastNarrativeIdx = -1
		sectionID       = uuid.New().String()
	)

	nextIndex := 0
	newID := func() uuid.UUID { return uuid.New() }

	for _, b := range blocks {
		switch b.kind {
		case blockHeading:
			headingStack = setHeadingLevel(headingStack, b.level, b.text)
			sectionID = uuid.New().String()

		case blockTable:
			id := newID()
			chunk := models.Chunk{
				ID:               id,
				DocumentID:       documentID,
				ChunkIndex:       nextIndex,
				Text:             renderTable(b.rows),
				IsTabular:        true,
				PageNumber:       b.page,
				SectionHeading:   currentHeading(headingStack),
				DocumentFilename: documentFilename,
				TokenCount:       utils.EstimateTokensMax(renderTable(b.rows)),
				Metadata: models.ChunkMetadata{
					SectionID:        sectionID,
					IsTable:          true,
					ContentType:      "table",
					HeadingHierarchy: append([]string{}, headingStack...),
					DocumentFilename: documentFilename,
					TableCaption:     tableCaption(headingStack),
					TableContext:     b.text,
					TableRowCount:    len(b.rows),
					TableColumnCount: maxCols(b.rows),
				},
			}
			if lastNarrativeIdx >= 0 {
				chunk.Metadata.LinkedNarrativeID = lastNarrativeID.String()
				chunks[lastNarrativeIdx].Metadata.LinkedTableIDs = append(chunks[lastNarrativeIdx].Metadata.LinkedTableIDs, id.String())
			}
			chunks = append(chunks, chunk)
			nextIndex++

		case blockParagraph:
			narrativeChunks := splitNarrative(b.text, c.cfg.MaxNarrativeTokens)
			n := len(narrativeChunks)
			firstID := uuid.UUID{}
			siblingIDs := make([]string, n)
			ids := make([]uuid.UUID, n)
			for i := range narrativeChunks {
				ids[i] = newID()
				siblingIDs[i] = ids[i].String()
			}
			if n > 0 {
				firstID = ids[0]
			}

			for i, text := range narrativeChunks {
				meta := models.ChunkMetadata{
					SectionID:            sectionID,
					ChunkSequence:        i + 1,
					TotalChunksInSection: n,
					HeadingHierarchy:     append([]string{}, headingStack...),
					ContentType:          "narrative",
					DocumentFilename:     documentFilename,
					FirstSentence:        firstSentence(text),
					ContentSummary:       summarize(text),
				}
				if n > 1 {
					meta.SiblingChunkIDs = siblingSansSelf(siblingIDs, i)
				}
				if i > 0 {
					meta.IsContinuation = true
					meta.ParentChunkID = firstID.String()
					meta.ContinuationOfID = firstID.String()
				}

				chunk := models.Chunk{
					ID:               ids[i],
					DocumentID:       documentID,
					ChunkIndex:       nextIndex,
					Text:             text,
					NarrativeText:    text,
					PageNumber:       b.page,
					SectionHeading:   currentHeading(headingStack),
					SectionType:      "narrative",
					DocumentFilename: documentFilename,
					TokenCount:       utils.EstimateTokensMax(text),
					Metadata:         meta,
				}
				chunks = append(chunks, chunk)
				lastNarrativeID = ids[i]
				lastNarrativeIdx = len(chunks) - 1
				nextIndex++
			}
		}
	}

	return chunks
}

func blocksFromPages(pages []llm.PageText) []block {
	var blocks []block
	for _, p := range pages {
		lines := strings.Split(p.Text, "\n")
		var (
			paraBuf   []string
			tableBuf  []string
			inTable   bool
		)
		flushPara := func() {
			if len(paraBuf) == 0 {
				return
			}
			text := strings.TrimSpace(strings.Join(paraBuf, " "))
			paraBuf = nil
			if text == "" {
				return
			}
			blocks = append(blocks, block{kind: blockParagraph, text: text, page: p.Page})
		}
		flushTable := func() {
			if len(tableBuf) == 0 {
				return
			}
			rows := parseTableRows(tableBuf)
			tableBuf = nil
			if len(rows) == 0 {
				return
			}
			context := ""
			if len(blocks) > 0 && blocks[len(blocks)-1].kind == blockParagraph {
				context = lastSentence(blocks[len(blocks)-1].text)
			}
			blocks = append(blocks, block{kind: blockTable, text: context, rows: rows, page: p.Page})
		}

		for _, raw := range lines {
			line := strings.TrimRight(raw, " \t\r")
			trimmed := strings.TrimSpace(line)

			if trimmed == "" {
				flushPara()
				if inTable {
					flushTable()
					inTable = false
				}
				continue
			}

			if level, heading, ok := detectHeading(trimmed); ok {
				flushPara()
				if inTable {
					flushTable()
					inTable = false
				}
				blocks = append(blocks, block{kind: blockHeading, text: heading, level: level, page: p.Page})
				continue
			}

			if isTableLine(trimmed) {
				if !inTable {
					flushPara()
					inTable = true
				}
				tableBuf = append(tableBuf, trimmed)
				continue
			}

			if inTable {
				flushTable()
				inTable = false
			}
			paraBuf = append(paraBuf, trimmed)
		}
		flushPara()
		if inTable {
			flushTable()
		}
	}
	return blocks
}

// detectHeading recognizes markdown-style (#), numbered ("1.2 Title"), and
// short all-caps lines as section headings, returning an approximate
// nesting level used to build heading_hierarchy breadcrumbs.
func detectHeading(line string) (level int, text string, ok bool) {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		depth := strings.IndexFunc(line, func(r rune) bool { return r != '#' })
		return depth, strings.TrimSpace(m[1]), true
	}
	if m := numberedRe.FindStringSubmatch(line); m != nil {
		depth := strings.Count(m[1], ".") + 1
		return depth, line, true
	}
	if len(line) <= 80 && allCapsRe.MatchString(line) && strings.ToUpper(line) == line {
		return 1, line, true
	}
	return 0, "", false
}

// isTableLine treats pipe-delimited rows and multi-column whitespace-
// aligned rows as table content, the two shapes a text-extraction parser
// commonly emits for tabular layout.
func isTableLine(line string) bool {
	if tableRowRe.MatchString(line) && strings.Count(line, "|") >= 2 {
		return true
	}
	return len(whitespaceN.Split(line, -1)) >= 3
}

func parseTableRows(lines []string) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		var cells []string
		if strings.Contains(l, "|") {
			for _, c := range strings.Split(l, "|") {
				c = strings.TrimSpace(c)
				if c != "" {
					cells = append(cells, c)
				}
			}
		} else {
			cells = whitespaceN.Split(l, -1)
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}

func renderTable(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func maxCols(rows [][]string) int {
	max := 0
	for _, r := range rows {
		if len(r) > max {
			max = len(r)
		}
	}
	return max
}

// splitNarrative splits text into a sequence of chunks, breaking only on
// sentence boundaries (spec §4.6: "Oversize narratives are split into a
// sequence"). Each chunk stays within maxTokens*4 characters except where a
// single sentence is longer than that: such a sentence is not split and
// becomes one oversized chunk.
func splitNarrative(text string, maxTokens int) []string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return []string{text}
	}

	sentences := splitSentences(text)
	var out []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+len(s) > maxChars {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		cur.WriteString(s)
		cur.WriteString(" ")
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	if len(out) == 0 {
		out = []string{text}
	}
	return out
}

var sentenceBoundary = regexp.MustCompile(`(?:[.!?])\s+`)

func splitSentences(text string) []string {
	idxs := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, idx := range idxs {
		out = append(out, text[start:idx[1]])
		start = idx[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func firstSentence(text string) string {
	s := splitSentences(text)
	if len(s) == 0 {
		return ""
	}
	return strings.TrimSpace(s[0])
}

func lastSentence(text string) string {
	s := splitSentences(text)
	if len(s) == 0 {
		return ""
	}
	return strings.TrimSpace(s[len(s)-1])
}

func summarize(text string) string {
	const maxLen = 160
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return strings.TrimSpace(text[:maxLen]) + "..."
}

func tableCaption(headingStack []string) string {
	h := currentHeading(headingStack)
	if h == "" {
		return "Table"
	}
	return h + " — Table"
}

func currentHeading(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1]
}

// setHeadingLevel maintains a breadcrumb stack keyed by nesting depth:
// a heading at level L replaces everything at or below L.
func setHeadingLevel(stack []string, level int, text string) []string {
	if level <= 0 {
		level = 1
	}
	if level > len(stack) {
		for len(stack) < level-1 {
			stack = append(stack, "")
		}
		return append(stack, text)
	}
	out := append([]string{}, stack[:level-1]...)
	return append(out, text)
}

func siblingSansSelf(ids []string, skip int) []string {
	out := make([]string, 0, len(ids)-1)
	for i, id := range ids {
		if i == skip {
			continue
		}
		out = append(out, id)
	}
	return out
}
