package entities

import (
	"time"

	"github.com/google/uuid"
	"poker-pipeline/constant"
)

// Stream is the per-video analysis record. The pipeline fields are mutated
// only through the repository's conditional updates so that two dispatchers
// can never both move the same stream into ANALYZING.
type Stream struct {
	ID               uuid.UUID               `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name             string                  `json:"name" gorm:"type:varchar(255);not null"`
	VideoLocator     string                  `json:"video_locator" gorm:"type:varchar(1000);not null;index:idx_streams_video_locator"`
	Platform         string                  `json:"platform" gorm:"type:varchar(50)"`
	PipelineStatus   constant.PipelineStatus `json:"pipeline_status" gorm:"type:varchar(20);not null;default:'PENDING';index:idx_streams_pipeline_status"`
	PipelineProgress int                     `json:"pipeline_progress" gorm:"type:integer;not null;default:0"`
	PipelineError    *string                 `json:"pipeline_error,omitempty" gorm:"type:text"`
	CurrentJobID     *string                 `json:"current_job_id,omitempty" gorm:"type:varchar(255)"`
	AnalysisAttempts int                     `json:"analysis_attempts" gorm:"type:integer;not null;default:0"`
	HandCount        int                     `json:"hand_count" gorm:"type:integer;not null;default:0"`
	CreatedAt        time.Time               `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time               `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Stream) TableName() string {
	return "streams"
}
