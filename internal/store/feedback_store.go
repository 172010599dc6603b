package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// FeedbackStore persists ratings/comments over any one operation type,
// enforcing the same exactly-one-owner discipline JobStore uses (spec §3).
type FeedbackStore struct {
	db *gorm.DB
}

func NewFeedbackStore(db *gorm.DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

var ErrInvalidFeedbackTarget = fmt.Errorf("feedback must reference exactly one operation entity")

func (s *FeedbackStore) Create(ctx context.Context, f *models.Feedback) error {
	if f.OwnerCount() != 1 {
		return ErrInvalidFeedbackTarget
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = time.Now()
	return s.db.WithContext(ctx).Create(f).Error
}

func (s *FeedbackStore) ListForSession(ctx context.Context, tenantID uuid.UUID, messageIDs []uuid.UUID) ([]models.Feedback, error) {
	var items []models.Feedback
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND message_id IN ?", tenantID, messageIDs).Find(&items).Error
	return items, err
}

// TemplateFillStore covers the Template/TemplateFillRun boundary state
// machine (spec §3, "covered for boundary only").
type TemplateFillStore struct {
	db *gorm.DB
}

func NewTemplateFillStore(db *gorm.DB) *TemplateFillStore {
	return &TemplateFillStore{db: db}
}

func (s *TemplateFillStore) Create(ctx context.Context, run *models.TemplateFillRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.TemplateFillStatusQueued
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *TemplateFillStore) TransitionToReview(ctx context.Context, id uuid.UUID, resultPath string) error {
	return s.transition(ctx, id, models.TemplateFillStatusProcessing, models.TemplateFillStatusAwaitingReview, map[string]interface{}{
		"result_path": resultPath,
	})
}

func (s *TemplateFillStore) ResumeAfterReview(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, models.TemplateFillStatusAwaitingReview, models.TemplateFillStatusProcessing, nil)
}

func (s *TemplateFillStore) Complete(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, models.TemplateFillStatusProcessing, models.TemplateFillStatusCompleted, nil)
}

func (s *TemplateFillStore) transition(ctx context.Context, id uuid.UUID, from, to models.TemplateFillRunStatus, extra map[string]interface{}) error {
	fields := map[string]interface{}{"status": to, "updated_at": time.Now()}
	for k, v := range extra {
		fields[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.TemplateFillRun{}).Where("id = ? AND status = ?", id, from).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("template fill run %s is not in status %q", id, from)
	}
	return nil
}
