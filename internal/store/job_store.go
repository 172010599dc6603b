package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/models"
)

// JobStore implements spec §4.3's Job Ledger, grounded on the teacher's
// ExecutionServiceImpl (services/impl/execution_service_impl.go) Where/
// Updates/RowsAffected idiom, generalized from a single owner (AgentID) to
// the four-way owner union spec §3/§8 require.
type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// ErrInvalidOwnership is returned by Create when a Job has zero or more than
// one owner set (spec §4.3 "Exactly one owner"). Update does not check
// ownership.
var ErrInvalidOwnership = fmt.Errorf("job must have exactly one owning entity")

func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	if job.OwnerCount() != 1 {
		return ErrInvalidOwnership
	}
	if job.JobID == uuid.Nil {
		job.JobID = uuid.New()
	}
	job.Status = models.JobStatusQueued
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Update applies a partial field set. progress_percent is clamped to never
// decrease within a job (spec §8 "Progress monotonicity").
func (s *JobStore) Update(ctx context.Context, jobID uuid.UUID, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pct, ok := fields["progress_percent"]; ok {
			var current models.Job
			if err := tx.Select("progress_percent").Where("job_id = ?", jobID).First(&current).Error; err != nil {
				return err
			}
			if newPct, ok := pct.(int); ok && newPct < current.ProgressPercent {
				delete(fields, "progress_percent")
			}
		}
		fields["updated_at"] = time.Now()

		result := tx.Model(&models.Job{}).Where("job_id = ?", jobID).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ResetForRetry clears error_* fields and sets status=queued; only
// permitted when a resumable artifact path is recorded (spec §4.3/§4.4).
func (s *JobStore) ResetForRetry(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !hasResumableArtifact(job) {
		return fmt.Errorf("job %s has no resumable artifact; retry requires full re-upload", jobID)
	}

	return s.Update(ctx, jobID, map[string]interface{}{
		"status":             models.JobStatusQueued,
		"error_stage":        "",
		"error_message":      "",
		"error_type":         "",
		"error_is_retryable": false,
	})
}

func hasResumableArtifact(job *models.Job) bool {
	return job.RawParserTextPath != "" || job.ChunkJSONPath != "" || job.SummariesJSONPath != "" || job.CombinedContextPath != ""
}

func (s *JobStore) MarkCompleted(ctx context.Context, jobID uuid.UUID, message string) error {
	now := time.Now()
	return s.Update(ctx, jobID, map[string]interface{}{
		"status":           models.JobStatusCompleted,
		"progress_percent": 100,
		"message":          message,
		"completed_at":     &now,
	})
}

func (s *JobStore) MarkFailed(ctx context.Context, jobID uuid.UUID, failure *models.ClassifiedError) error {
	now := time.Now()
	return s.Update(ctx, jobID, map[string]interface{}{
		"status":             models.JobStatusFailed,
		"error_stage":        failure.Stage,
		"error_message":      truncate(failure.Message, 2000),
		"error_type":         failure.Kind,
		"error_is_retryable": failure.IsRetryable,
		"completed_at":       &now,
	})
}
