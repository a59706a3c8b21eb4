package entities

import (
	"time"

	"github.com/google/uuid"
)

// Hand is one extracted poker hand anchored to a timestamp range in the
// source video. Number is 1-based and dense in temporal order after
// reconciliation.
type Hand struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	StreamID            uuid.UUID `json:"stream_id" gorm:"type:uuid;not null;index:idx_hands_stream_id"`
	Number              int       `json:"number" gorm:"type:integer;not null"`
	VideoTimestampStart float64   `json:"video_timestamp_start" gorm:"type:double precision;not null"`
	VideoTimestampEnd   float64   `json:"video_timestamp_end" gorm:"type:double precision;not null"`
	CreatedAt           time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Hand) TableName() string {
	return "hands"
}
