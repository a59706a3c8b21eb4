package planner

import (
	"poker-pipeline/apperror"
	"poker-pipeline/entities"
)

const (
	// DefaultSegmentCap is the maximum length of a single analysis segment.
	DefaultSegmentCap = 1800.0

	minTotalDuration = 60.0
	maxTotalDuration = 86400.0
)

// Input describes what to plan: either the total duration of the video or an
// explicit list of time ranges. Exactly one of the two must be set.
type Input struct {
	TotalDurationSeconds float64
	Ranges               []entities.Segment
}

// Plan cuts the requested duration or ranges into ordered segments no longer
// than cap seconds, covering the input exactly with no gaps or overlaps.
// If cap <= 0 DefaultSegmentCap is used. Plan has no side effects.
func Plan(input Input, capSeconds float64) ([]entities.Segment, error) {
	if capSeconds <= 0 {
		capSeconds = DefaultSegmentCap
	}

	if len(input.Ranges) > 0 {
		if input.TotalDurationSeconds != 0 {
			return nil, apperror.Validation("either total duration or explicit ranges may be given, not both")
		}
		return planRanges(input.Ranges, capSeconds)
	}

	total := input.TotalDurationSeconds
	if total < minTotalDuration || total > maxTotalDuration {
		return nil, apperror.Validation("total duration %.0fs out of range [%.0f, %.0f]", total, minTotalDuration, maxTotalDuration)
	}
	return split(entities.Segment{Start: 0, End: total}, capSeconds, nil), nil
}

func planRanges(ranges []entities.Segment, capSeconds float64) ([]entities.Segment, error) {
	var out []entities.Segment
	for i, r := range ranges {
		if r.Start < 0 {
			return nil, apperror.Validation("range %d: start %.2f must be non-negative", i, r.Start)
		}
		if r.End <= r.Start {
			return nil, apperror.Validation("range %d: end %.2f must be greater than start %.2f", i, r.End, r.Start)
		}
		out = split(r, capSeconds, out)
	}
	return out, nil
}

// split walks r from its start in steps of cap. A range whose length is
// exactly cap yields a single segment.
func split(r entities.Segment, capSeconds float64, out []entities.Segment) []entities.Segment {
	for cursor := r.Start; cursor < r.End; cursor += capSeconds {
		end := cursor + capSeconds
		if end > r.End {
			end = r.End
		}
		out = append(out, entities.Segment{Start: cursor, End: end})
	}
	return out
}
