package renderjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gfxrelay/internal/protocol"

	"github.com/google/uuid"
)

// RequestSender puts a render_request on the wire and returns its request ID.
// *peer.MainClient satisfies it.
type RequestSender interface {
	SendRenderRequest(p protocol.RenderRequest) (string, error)
}

// Tracker journals render requests and the progress Sub dashboards report
// back. It subscribes to the Main client; the client never knows about it.
type Tracker struct {
	repo    Repository
	sender  RequestSender
	logger  *slog.Logger
	timeout time.Duration // per handler call
}

var _ protocol.SubToMainHandler = (*Tracker)(nil)

func NewTracker(repo Repository, sender RequestSender, logger *slog.Logger) *Tracker {
	return &Tracker{
		repo:    repo,
		sender:  sender,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Request records req as pending and then sends it. A send failure marks
// the job failed and is returned.
func (t *Tracker) Request(ctx context.Context, req protocol.RenderRequest) (*RenderJob, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	job := &RenderJob{
		RequestID:       req.RequestID,
		CompositionName: req.CompositionName,
		HandID:          req.HandID,
		Priority:        req.Priority,
		Status:          protocol.RenderPending,
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := t.sender.SendRenderRequest(req); err != nil {
		t.logger.Warn("render_request_send_failed",
			"request_id", req.RequestID,
			"error", err.Error(),
		)
		if mErr := t.repo.MarkFailed(ctx, job.ID, "", protocol.ErrCodeUnknown, err.Error(), true); mErr != nil {
			t.logger.Error("render_job_update_failed", "request_id", req.RequestID, "error", mErr.Error())
		}
		return job, fmt.Errorf("send render request %s: %w", req.RequestID, err)
	}

	t.logger.Info("render_requested",
		"request_id", req.RequestID,
		"composition", req.CompositionName,
		"hand_id", req.HandID,
	)
	return job, nil
}

// Active lists jobs that have not finished yet.
func (t *Tracker) Active(ctx context.Context) ([]RenderJob, error) {
	return t.repo.ListActive(ctx)
}

func (t *Tracker) OnRenderStatusUpdate(m protocol.RenderStatusUpdate) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	job, err := t.resolve(ctx, m.RequestID, m.JobID)
	if err != nil || job == nil {
		return err
	}
	return t.repo.UpdateStatus(ctx, job.ID, m.JobID, m.Status, clampProgress(m.Progress), m.EstimatedRemaining)
}

func (t *Tracker) OnRenderComplete(m protocol.RenderComplete) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	job, err := t.resolve(ctx, m.RequestID, m.JobID)
	if err != nil || job == nil {
		return err
	}
	if err := t.repo.MarkCompleted(ctx, job.ID, m.JobID, m.Output); err != nil {
		return err
	}
	t.logger.Info("render_completed",
		"request_id", job.RequestID,
		"job_id", m.JobID,
		"output_path", m.Output.OutputPath,
	)
	return nil
}

func (t *Tracker) OnRenderError(m protocol.RenderError) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	job, err := t.resolve(ctx, m.RequestID, m.JobID)
	if err != nil || job == nil {
		return err
	}
	if err := t.repo.MarkFailed(ctx, job.ID, m.JobID, m.ErrorCode, m.ErrorMessage, m.Retryable); err != nil {
		return err
	}
	t.logger.Warn("render_failed",
		"request_id", job.RequestID,
		"job_id", m.JobID,
		"error_code", m.ErrorCode,
		"retryable", m.Retryable,
	)
	return nil
}

func (t *Tracker) OnMappingChanged(m protocol.MappingChanged) error {
	t.logger.Debug("mapping_changed", "composition", m.CompositionName, "mapping_id", m.MappingID)
	return nil
}

func (t *Tracker) OnCompositionSelected(m protocol.CompositionSelected) error {
	t.logger.Debug("composition_selected", "composition", m.CompositionName)
	return nil
}

func (t *Tracker) OnHeartbeatAck(protocol.HeartbeatAck) error {
	return nil
}

// resolve finds the job an update refers to, by request ID first and job ID
// second. A job first seen through a Sub report is adopted so the journal
// also covers renders requested by other Main dashboards. Finished jobs
// yield (nil, nil).
func (t *Tracker) resolve(ctx context.Context, requestID, jobID string) (*RenderJob, error) {
	job, err := t.find(ctx, requestID, jobID)
	if errors.Is(err, ErrJobNotFound) {
		return t.adopt(ctx, requestID, jobID)
	}
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		t.logger.Debug("late_render_update_ignored", "request_id", job.RequestID, "status", job.Status)
		return nil, nil
	}
	return job, nil
}

func (t *Tracker) find(ctx context.Context, requestID, jobID string) (*RenderJob, error) {
	var (
		job *RenderJob
		err = ErrJobNotFound
	)
	if requestID != "" {
		job, err = t.repo.FindByRequestID(ctx, requestID)
	}
	if errors.Is(err, ErrJobNotFound) && jobID != "" {
		job, err = t.repo.FindByJobID(ctx, jobID)
	}
	return job, err
}

// adopt records a job the tracker did not request. Without a request ID the
// job ID stands in for it.
func (t *Tracker) adopt(ctx context.Context, requestID, jobID string) (*RenderJob, error) {
	key := requestID
	if key == "" {
		key = jobID
	}
	if key == "" {
		t.logger.Warn("unknown_render_job", "request_id", requestID, "job_id", jobID)
		return nil, nil
	}

	job := &RenderJob{
		RequestID: key,
		JobID:     jobID,
		Status:    protocol.RenderQueued,
	}
	err := t.repo.Create(ctx, job)
	if errors.Is(err, ErrDuplicateRequest) {
		// another report for the same job got there first
		return t.repo.FindByRequestID(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	t.logger.Info("render_job_adopted", "request_id", key, "job_id", jobID)
	return job, nil
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
