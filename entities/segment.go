package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Segment is one bounded time range of a video submitted for analysis.
// Start and End are seconds into the source video, End > Start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SegmentList stores a job's ordered segment plan as a jsonb column.
type SegmentList []Segment

func (l SegmentList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *SegmentList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SegmentList", src)
	}
	return json.Unmarshal(b, l)
}
