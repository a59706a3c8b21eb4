package dto

import "poker-pipeline/entities"

// JobStatusMessage is published by the analysis service on the status queue
// whenever a job changes state. The consumer re-reads authoritative status
// from the service, so the message only needs to carry the job id.
type JobStatusMessage struct {
	JobID string `json:"jobId"`
}

// DispatchRequest starts analysis for a video. Either StreamId (existing
// stream) or VideoLocator (a new stream is created from it) must be set.
// Exactly one of TotalDurationSeconds or Ranges describes what to analyze.
type DispatchRequest struct {
	StreamId             string             `json:"streamId,omitempty"`
	VideoLocator         string             `json:"videoLocator,omitempty"`
	PlatformHint         string             `json:"platformHint,omitempty"`
	TotalDurationSeconds float64            `json:"totalDurationSeconds,omitempty"`
	Ranges               []entities.Segment `json:"ranges,omitempty"`
}

type DispatchResponse struct {
	StreamId string `json:"streamId"`
	JobId    string `json:"jobId"`
}

// StreamView is what the UI reads: pipeline status and error only, never job
// internals.
type StreamView struct {
	Id               string  `json:"id"`
	Name             string  `json:"name"`
	VideoLocator     string  `json:"videoLocator"`
	PipelineStatus   string  `json:"pipelineStatus"`
	PipelineProgress int     `json:"pipelineProgress"`
	PipelineError    *string `json:"pipelineError,omitempty"`
	AnalysisAttempts int     `json:"analysisAttempts"`
	HandCount        int     `json:"handCount"`
}
