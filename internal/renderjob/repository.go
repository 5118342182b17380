package renderjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gfxrelay/internal/protocol"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound      = errors.New("render job not found")
	ErrDuplicateRequest = errors.New("render request already recorded")
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, job *RenderJob) error
	FindByRequestID(ctx context.Context, requestID string) (*RenderJob, error)
	FindByJobID(ctx context.Context, jobID string) (*RenderJob, error)
	UpdateStatus(ctx context.Context, id uint, jobID string, status protocol.RenderJobStatus, progress float64, eta *float64) error
	MarkCompleted(ctx context.Context, id uint, jobID string, output protocol.RenderOutput) error
	MarkFailed(ctx context.Context, id uint, jobID string, code protocol.RenderErrorCode, message string, retryable bool) error
	ListActive(ctx context.Context) ([]RenderJob, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Create inserts a new job
func (r *repository) Create(ctx context.Context, job *RenderJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, job.RequestID)
		}
		return fmt.Errorf("failed to create render job: %w", err)
	}
	return nil
}

func (r *repository) FindByRequestID(ctx context.Context, requestID string) (*RenderJob, error) {
	return r.findOne(ctx, "request_id = ?", requestID)
}

// FindByJobID returns the most recent job the Sub dashboard reported under jobID
func (r *repository) FindByJobID(ctx context.Context, jobID string) (*RenderJob, error) {
	return r.findOne(ctx, "job_id = ?", jobID)
}

func (r *repository) findOne(ctx context.Context, query string, arg string) (*RenderJob, error) {
	var job RenderJob
	err := r.db.WithContext(ctx).Where(query, arg).Order("created_at DESC").First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uint, jobID string, status protocol.RenderJobStatus, progress float64, eta *float64) error {
	updates := map[string]any{
		"status":              status,
		"progress":            progress,
		"estimated_remaining": eta,
	}
	if jobID != "" {
		updates["job_id"] = jobID
	}
	return r.update(ctx, id, updates)
}

func (r *repository) MarkCompleted(ctx context.Context, id uint, jobID string, output protocol.RenderOutput) error {
	now := time.Now()
	updates := map[string]any{
		"status":              protocol.RenderCompleted,
		"progress":            100.0,
		"estimated_remaining": nil,
		"output_path":         output.OutputPath,
		"duration":            output.Duration,
		"frame_count":         output.FrameCount,
		"file_size":           output.FileSize,
		"completed_at":        &now,
	}
	if jobID != "" {
		updates["job_id"] = jobID
	}
	return r.update(ctx, id, updates)
}

func (r *repository) MarkFailed(ctx context.Context, id uint, jobID string, code protocol.RenderErrorCode, message string, retryable bool) error {
	now := time.Now()
	updates := map[string]any{
		"status":              protocol.RenderFailed,
		"estimated_remaining": nil,
		"error_code":          string(code),
		"error_message":       message,
		"retryable":           retryable,
		"completed_at":        &now,
	}
	if jobID != "" {
		updates["job_id"] = jobID
	}
	return r.update(ctx, id, updates)
}

func (r *repository) update(ctx context.Context, id uint, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&RenderJob{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update render job %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListActive returns unfinished jobs, highest priority first
func (r *repository) ListActive(ctx context.Context) ([]RenderJob, error) {
	var jobs []RenderJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", ActiveStatuses).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
