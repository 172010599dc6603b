package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// ExtractionStore covers Extraction CRUD (spec §3/§4.14).
type ExtractionStore struct {
	db *gorm.DB
}

func NewExtractionStore(db *gorm.DB) *ExtractionStore {
	return &ExtractionStore{db: db}
}

func (s *ExtractionStore) Create(ctx context.Context, e *models.Extraction) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = models.ExtractionStatusQueued
	e.CreatedAt = time.Now()
	e.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(e).Error
}

func (s *ExtractionStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Extraction, error) {
	var e models.Extraction
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *ExtractionStore) Complete(ctx context.Context, id uuid.UUID, result models.JSONMap) error {
	return s.db.WithContext(ctx).Model(&models.Extraction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     models.ExtractionStatusCompleted,
		"result":     result,
		"updated_at": time.Now(),
	}).Error
}

func (s *ExtractionStore) Fail(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Extraction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     models.ExtractionStatusFailed,
		"updated_at": time.Now(),
	}).Error
}
