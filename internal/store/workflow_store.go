package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// WorkflowStore covers Workflow template and WorkflowRun persistence
// (spec §3/§4.12).
type WorkflowStore struct {
	db *gorm.DB
}

func NewWorkflowStore(db *gorm.DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

func (s *WorkflowStore) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	var wf models.Workflow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&wf).Error; err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *WorkflowStore) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.WorkflowRunStatusQueued
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *WorkflowStore) GetRun(ctx context.Context, tenantID, id uuid.UUID) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *WorkflowStore) CompleteRun(ctx context.Context, id uuid.UUID, result models.JSONMap, stats models.ContextStats, validationErrors []string, citationsCount int, mode models.WorkflowRunMode) error {
	return s.db.WithContext(ctx).Model(&models.WorkflowRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":            models.WorkflowRunStatusCompleted,
		"artifact":          result,
		"context_stats":     stats,
		"validation_errors": models.StringList(validationErrors),
		"citations_count":   citationsCount,
		"mode":              mode,
		"updated_at":        time.Now(),
	}).Error
}

func (s *WorkflowStore) FailRun(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.WorkflowRun{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     models.WorkflowRunStatusFailed,
		"updated_at": time.Now(),
	}).Error
}
