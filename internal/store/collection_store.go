package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// CollectionStore covers Collection CRUD; counters are owned by
// MembershipStore.recomputeCollectionCounters, never written here directly.
type CollectionStore struct {
	db *gorm.DB
}

func NewCollectionStore(db *gorm.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func (s *CollectionStore) Create(ctx context.Context, c *models.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *CollectionStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Collection, error) {
	var c models.Collection
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CollectionStore) List(ctx context.Context, tenantID uuid.UUID) ([]models.Collection, error) {
	var cs []models.Collection
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&cs).Error
	return cs, err
}
