package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// MembershipStore implements spec §4's Membership Graph operations:
// collection<->document and session<->document edges, tenant scoping, and
// the counter-truth invariant (spec §5/§8): collection.document_count and
// collection.total_chunks are always recomputed by aggregate inside the
// same transaction that mutated membership, never incremented. A chunk
// insert (ChunkStore.BulkInsert) does not recompute them itself.
type MembershipStore struct {
	db *gorm.DB
}

func NewMembershipStore(db *gorm.DB) *MembershipStore {
	return &MembershipStore{db: db}
}

// LinkDocumentToCollection is idempotent: linking an already-linked document
// is a no-op that still recomputes counters (keeps the invariant true even
// if counters had drifted for an unrelated reason).
func (s *MembershipStore) LinkDocumentToCollection(ctx context.Context, collectionID, documentID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edge := models.CollectionDocument{CollectionID: collectionID, DocumentID: documentID, LinkedAt: time.Now()}
		if err := tx.Clauses(onConflictDoNothing()).Create(&edge).Error; err != nil {
			return fmt.Errorf("link document to collection: %w", err)
		}
		return recomputeCollectionCounters(tx, collectionID)
	})
}

func (s *MembershipStore) UnlinkDocumentFromCollection(ctx context.Context, collectionID, documentID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection_id = ? AND document_id = ?", collectionID, documentID).Delete(&models.CollectionDocument{}).Error; err != nil {
			return err
		}
		return recomputeCollectionCounters(tx, collectionID)
	})
}

// recomputeCollectionCounters is the single place document_count/total_chunks
// are written — always derived, never incremented (spec §5 "Counter truth").
func recomputeCollectionCounters(tx *gorm.DB, collectionID uuid.UUID) error {
	var documentCount int64
	if err := tx.Model(&models.CollectionDocument{}).Where("collection_id = ?", collectionID).Count(&documentCount).Error; err != nil {
		return fmt.Errorf("count collection documents: %w", err)
	}

	var totalChunks int64
	err := tx.Model(&models.Chunk{}).
		Where("document_id IN (SELECT document_id FROM collection_documents WHERE collection_id = ?)", collectionID).
		Count(&totalChunks).Error
	if err != nil {
		return fmt.Errorf("count collection chunks: %w", err)
	}

	return tx.Model(&models.Collection{}).Where("id = ?", collectionID).Updates(map[string]interface{}{
		"document_count": documentCount,
		"total_chunks":   totalChunks,
		"updated_at":     time.Now(),
	}).Error
}

// RecomputeCollectionCounters recomputes a collection's counters in a
// transaction of its own. No pipeline stage calls it: the ingest chain's
// store_vectors stage recomputes through LinkDocumentToCollection after its
// chunk insert.
func (s *MembershipStore) RecomputeCollectionCounters(ctx context.Context, collectionID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return recomputeCollectionCounters(tx, collectionID)
	})
}

func (s *MembershipStore) LinkDocumentToSession(ctx context.Context, sessionID, documentID uuid.UUID) error {
	edge := models.SessionDocument{SessionID: sessionID, DocumentID: documentID, LinkedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(onConflictDoNothing()).Create(&edge).Error
}

func (s *MembershipStore) DocumentsForSession(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.SessionDocument{}).Where("session_id = ?", sessionID).Pluck("document_id", &ids).Error
	return ids, err
}

func (s *MembershipStore) DocumentsForCollection(ctx context.Context, collectionID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.CollectionDocument{}).Where("collection_id = ?", collectionID).Pluck("document_id", &ids).Error
	return ids, err
}
