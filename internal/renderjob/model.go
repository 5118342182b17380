package renderjob

import (
	"time"

	"gfxrelay/internal/protocol"
)

// RenderJob is one render request issued by the Main dashboard, followed
// through the progress reported back by a Sub dashboard.
type RenderJob struct {
	ID                 uint                     `json:"id" gorm:"primaryKey;autoIncrement"`
	RequestID          string                   `json:"request_id" gorm:"type:varchar(64);not null;uniqueIndex"`
	JobID              string                   `json:"job_id,omitempty" gorm:"type:varchar(64);index"`
	CompositionName    string                   `json:"composition_name" gorm:"not null"`
	HandID             string                   `json:"hand_id" gorm:"type:varchar(64);index"`
	Priority           int                      `json:"priority"`
	Status             protocol.RenderJobStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	Progress           float64                  `json:"progress"`
	EstimatedRemaining *float64                 `json:"estimated_remaining,omitempty"`
	OutputPath         string                   `json:"output_path,omitempty"`
	Duration           float64                  `json:"duration,omitempty"`
	FrameCount         int                      `json:"frame_count,omitempty"`
	FileSize           int64                    `json:"file_size,omitempty"`
	ErrorCode          string                   `json:"error_code,omitempty" gorm:"type:varchar(32)"`
	ErrorMessage       string                   `json:"error_message,omitempty"`
	Retryable          bool                     `json:"retryable"`
	CreatedAt          time.Time                `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time                `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt        *time.Time               `json:"completed_at,omitempty"`
}

func (RenderJob) TableName() string {
	return "render_jobs"
}

// IsTerminal reports whether no further updates apply to the job.
func (j RenderJob) IsTerminal() bool {
	switch j.Status {
	case protocol.RenderCompleted, protocol.RenderFailed, protocol.RenderCancelled:
		return true
	}
	return false
}

// ActiveStatuses are the states ListActive returns.
var ActiveStatuses = []protocol.RenderJobStatus{
	protocol.RenderPending,
	protocol.RenderQueued,
	protocol.RenderRendering,
}
