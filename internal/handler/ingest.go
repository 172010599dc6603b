package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/docintel/backend/internal/chunker"
	"github.com/docintel/backend/internal/embedder"
	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/parser"
	"github.com/docintel/backend/internal/pipeline"
	"github.com/docintel/backend/internal/store"
)

// Ingestor builds and drives the chat-indexing pipeline tail spec §4.4
// names: parse → chunk → embed → store_vectors. It is the worker-plane
// counterpart to the Ingest HTTP handler, which only validates the upload,
// performs the content-hash dedup check, and enqueues the chain onto the
// shared pipeline.Pool.
type Ingestor struct {
	Parsers    *parser.Registry
	Chunker    *chunker.Chunker
	Embedder   *embedder.Embedder
	Chunks     *store.ChunkStore
	Documents  *store.DocumentStore
	Membership *store.MembershipStore
	Storage    llm.StorageBackend
}

func NewIngestor(parsers *parser.Registry, ck *chunker.Chunker, emb *embedder.Embedder, chunks *store.ChunkStore, documents *store.DocumentStore, membership *store.MembershipStore, storage llm.StorageBackend) *Ingestor {
	return &Ingestor{Parsers: parsers, Chunker: ck, Embedder: emb, Chunks: chunks, Documents: documents, Membership: membership, Storage: storage}
}

// chunkDTO is the durable artifact shape for the chunk stage: every field
// the embed stage needs to reconstruct a models.Chunk except the dense
// vector itself, which embedding produces. Excluding it sidesteps the
// pgvector.Vector JSON-encoding question entirely for a value that doesn't
// exist yet at chunk time.
type chunkDTO struct {
	ID               uuid.UUID            `json:"id"`
	DocumentID       uuid.UUID            `json:"document_id"`
	ChunkIndex       int                  `json:"chunk_index"`
	Text             string               `json:"text"`
	PageNumber       int                  `json:"page_number"`
	SectionType      string               `json:"section_type"`
	SectionHeading   string               `json:"section_heading"`
	IsTabular        bool                 `json:"is_tabular"`
	TokenCount       int                  `json:"token_count"`
	DocumentFilename string               `json:"document_filename"`
	Metadata         models.ChunkMetadata `json:"metadata"`
}

func toDTO(c models.Chunk) chunkDTO {
	return chunkDTO{
		ID: c.ID, DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex, Text: c.Text,
		PageNumber: c.PageNumber, SectionType: c.SectionType, SectionHeading: c.SectionHeading,
		IsTabular: c.IsTabular, TokenCount: c.TokenCount, DocumentFilename: c.DocumentFilename,
		Metadata: c.Metadata,
	}
}

func fromDTO(d chunkDTO) models.Chunk {
	return models.Chunk{
		ID: d.ID, DocumentID: d.DocumentID, ChunkIndex: d.ChunkIndex, Text: d.Text,
		PageNumber: d.PageNumber, SectionType: d.SectionType, SectionHeading: d.SectionHeading,
		IsTabular: d.IsTabular, TokenCount: d.TokenCount, DocumentFilename: d.DocumentFilename,
		Metadata: d.Metadata,
	}
}

// artifactKey names a job's addressable intermediate artifact, spec §4.4
// step 2 ("save any bulky intermediate to an addressable artifact").
func artifactKey(jobID, name string) string {
	return fmt.Sprintf("artifacts/%s/%s.json", jobID, name)
}

func (g *Ingestor) writeArtifact(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", key, err)
	}
	return uploadBytes(ctx, g.Storage, key, data)
}

// Chain builds the four-stage chat-indexing tail. Each stage reads its
// input from the in-memory payload (the chain runs within a single worker
// goroutine per job); the parse and chunk stages also persist a durable
// artifact so a crashed worker's replacement could, in principle, resume
// from that artifact rather than the in-memory value. The embed and
// store_vectors stages write no artifact.
func (g *Ingestor) Chain() pipeline.Chain {
	return pipeline.Chain{Stages: []pipeline.Stage{
		{Name: "parse", Run: g.parseStage},
		{Name: "chunk", Run: g.chunkStage},
		{Name: "embed", Run: g.embedStage},
		{Name: "store_vectors", Run: g.storeVectorsStage},
	}}
}

func fail(stage string, kind models.ErrorKind, retryable bool, format string, args ...interface{}) *models.ClassifiedError {
	return &models.ClassifiedError{Stage: stage, Message: fmt.Sprintf(format, args...), Kind: kind, IsRetryable: retryable}
}

func (g *Ingestor) parseStage(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
	raw, _ := in.Data["raw"].([]byte)
	tier, _ := in.Data["tier"].(parser.Tier)
	pdfType, _ := in.Data["pdf_type"].(parser.PDFType)

	p, err := g.Parsers.Resolve(tier, pdfType)
	if err != nil {
		return in, fail("parse", models.ErrorKindUpgradeRequired, false, "%v", err)
	}

	pages, err := p.Parse(ctx, raw)
	if err != nil {
		return in, fail("parse", models.ErrorKindParsing, false, "parse document: %v", err)
	}

	key := artifactKey(in.JobID, "raw_parser_text")
	if err := g.writeArtifact(ctx, key, pages); err != nil {
		return in, fail("parse", models.ErrorKindStorage, true, "%v", err)
	}

	out := in
	out.ArtifactPath = key
	out.Data = cloneData(in.Data)
	out.Data["pages"] = pages
	out.Data["parser_name"] = p.Name()
	return out, nil
}

func (g *Ingestor) chunkStage(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
	pages, _ := in.Data["pages"].([]llm.PageText)
	documentID, _ := in.Data["document_id"].(uuid.UUID)
	filename, _ := in.Data["filename"].(string)

	chunks := g.Chunker.ChunkDocument(documentID, filename, pages)
	if len(chunks) == 0 {
		return in, fail("chunk", models.ErrorKindChunking, false, "document produced zero chunks")
	}

	dtos := make([]chunkDTO, len(chunks))
	for i, c := range chunks {
		dtos[i] = toDTO(c)
	}
	key := artifactKey(in.JobID, "chunks")
	if err := g.writeArtifact(ctx, key, dtos); err != nil {
		return in, fail("chunk", models.ErrorKindStorage, true, "%v", err)
	}

	out := in
	out.ArtifactPath = key
	out.Data = cloneData(in.Data)
	out.Data["chunks"] = chunks
	return out, nil
}

func (g *Ingestor) embedStage(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
	chunks, _ := in.Data["chunks"].([]models.Chunk)

	if err := g.Embedder.EmbedChunks(ctx, chunks); err != nil {
		return in, fail("embed", models.ErrorKindEmbedding, true, "%v", err)
	}

	out := in
	out.Data = cloneData(in.Data)
	out.Data["chunks"] = chunks
	return out, nil
}

func (g *Ingestor) storeVectorsStage(ctx context.Context, in pipeline.Payload) (pipeline.Payload, *models.ClassifiedError) {
	chunks, _ := in.Data["chunks"].([]models.Chunk)
	documentID, _ := in.Data["document_id"].(uuid.UUID)
	parserName, _ := in.Data["parser_name"].(string)
	pages, _ := in.Data["pages"].([]llm.PageText)

	if err := g.Chunks.BulkInsert(ctx, chunks); err != nil {
		return in, fail("store_vectors", models.ErrorKindStorage, true, "%v", err)
	}

	if err := g.Documents.MarkCompleted(ctx, documentID, len(chunks), len(pages), 0, parserName); err != nil {
		return in, fail("store_vectors", models.ErrorKindStorage, true, "%v", err)
	}

	if collectionID, ok := in.Data["collection_id"].(uuid.UUID); ok {
		if err := g.Membership.LinkDocumentToCollection(ctx, collectionID, documentID); err != nil {
			return in, fail("store_vectors", models.ErrorKindStorage, true, "%v", err)
		}
	}

	return in, nil
}

func cloneData(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func uploadBytes(ctx context.Context, backend llm.StorageBackend, key string, data []byte) error {
	return writeArtifactBytes(ctx, backend, key, data)
}

// writeArtifactBytes adapts StorageBackend's local-path-oriented Upload to
// an in-memory byte slice by staging through a scratch file, since neither
// the remote nor local backend implementation accepts a byte payload
// directly (spec §6's StorageBackend is a path/key interface, grounded on
// original_source's storage_factory local/remote duality).
func writeArtifactBytes(ctx context.Context, backend llm.StorageBackend, key string, data []byte) error {
	tmp, err := os.CreateTemp("", "docintel-artifact-*")
	if err != nil {
		return fmt.Errorf("stage artifact %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write staged artifact %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close staged artifact %s: %w", key, err)
	}

	_, err = backend.Upload(ctx, tmp.Name(), key)
	return err
}
