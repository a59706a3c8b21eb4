package entities

import (
	"time"

	"github.com/google/uuid"
	"poker-pipeline/constant"
)

// AnalysisJob is one dispatch attempt against the analysis service. The ID is
// the opaque job identifier issued by the remote service. Jobs become
// immutable once terminal; superseded jobs are kept for audit.
type AnalysisJob struct {
	ID           string             `json:"id" gorm:"type:varchar(255);primary_key"`
	StreamID     uuid.UUID          `json:"stream_id" gorm:"type:uuid;not null;index:idx_analysis_jobs_stream_id"`
	Segments     SegmentList        `json:"segments" gorm:"type:jsonb;not null"`
	Status       constant.JobStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index:idx_analysis_jobs_status"`
	Progress     int                `json:"progress" gorm:"type:integer;not null;default:0"`
	ErrorMessage *string            `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time          `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty" gorm:"type:timestamptz"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}
