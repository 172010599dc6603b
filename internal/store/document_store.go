// Package store is the repository layer: gorm.DB-backed stores mirroring
// the teacher's ExecutionServiceImpl idiom (services/impl/execution_service_impl.go) —
// Where/Preload chains, map-based Updates, RowsAffected checks translated to
// gorm.ErrRecordNotFound.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// DocumentStore implements spec §4.1's Document Store operations.
type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// GetByHash is scoped by tenant; cross-tenant hash collisions are
// independent documents (spec §4.1).
func (s *DocumentStore) GetByHash(ctx context.Context, tenantID uuid.UUID, hash string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND content_hash = ?", tenantID, hash).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create returns the existing row on a hash conflict (read-after-conflict)
// rather than inserting a duplicate per tenant (spec §4.1 contract).
func (s *DocumentStore) Create(ctx context.Context, tenantID, userID uuid.UUID, filename, filePath string, size int64, hash string, pageCount int) (*models.Document, error) {
	var created *models.Document

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.getByHashTx(tx, tenantID, hash)
		if err == nil {
			created = existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		doc := &models.Document{
			ID:          uuid.New(),
			TenantID:    tenantID,
			UserID:      userID,
			Filename:    filename,
			FilePath:    filePath,
			SizeBytes:   size,
			ContentHash: hash,
			PageCount:   pageCount,
			Status:      models.DocumentStatusProcessing,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := tx.Create(doc).Error; err != nil {
			// A concurrent insert may have won the race on the unique
			// (tenant_id, content_hash) index; fall back to read-after-conflict.
			existing, getErr := s.getByHashTx(tx, tenantID, hash)
			if getErr == nil {
				created = existing
				return nil
			}
			return fmt.Errorf("create document: %w", err)
		}
		created = doc
		return nil
	})

	return created, err
}

// Get fetches a single document scoped to its owning tenant.
func (s *DocumentStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns every document owned by the tenant, most recent first.
func (s *DocumentStore) List(ctx context.Context, tenantID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

func (s *DocumentStore) getByHashTx(tx *gorm.DB, tenantID uuid.UUID, hash string) (*models.Document, error) {
	var doc models.Document
	err := tx.Where("tenant_id = ? AND content_hash = ?", tenantID, hash).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) MarkCompleted(ctx context.Context, id uuid.UUID, chunkCount, pages int, timeMs int64, parser string) error {
	result := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":             models.DocumentStatusCompleted,
		"chunk_count":        chunkCount,
		"page_count":         pages,
		"processing_time_ms": timeMs,
		"parser_used":        parser,
		"updated_at":         time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *DocumentStore) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	result := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          models.DocumentStatusFailed,
		"failure_message": truncate(message, 2000),
		"updated_at":      time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete cascades to chunks, membership edges, and jobs pointing at the
// document, but nulls document_id on Extractions rather than deleting them —
// they are audit trail (spec §4.1, Design Notes §9). WorkflowRuns, which list
// their documents in a document_ids array, are not touched.
func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Chunk{}).Error; err != nil {
			return fmt.Errorf("cascade delete chunks: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.CollectionDocument{}).Error; err != nil {
			return fmt.Errorf("cascade delete collection membership: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.SessionDocument{}).Error; err != nil {
			return fmt.Errorf("cascade delete session membership: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.Job{}).Error; err != nil {
			return fmt.Errorf("cascade delete jobs: %w", err)
		}
		if err := tx.Model(&models.Extraction{}).Where("document_id = ?", id).Update("document_id", nil).Error; err != nil {
			return fmt.Errorf("null extraction document_id: %w", err)
		}

		now := time.Now()
		if err := tx.Model(&models.Document{}).Where("id = ?", id).Update("deleted_at", &now).Error; err != nil {
			return fmt.Errorf("soft delete document: %w", err)
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
