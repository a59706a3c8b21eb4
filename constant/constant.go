package constant

// PipelineStatus is the lifecycle state of a stream's analysis pipeline.
type PipelineStatus string

const (
	PipelinePending   PipelineStatus = "PENDING"
	PipelineAnalyzing PipelineStatus = "ANALYZING"
	PipelineCompleted PipelineStatus = "COMPLETED"
	PipelinePublished PipelineStatus = "PUBLISHED"
	PipelineFailed    PipelineStatus = "FAILED"
)

func (s PipelineStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the pipeline state machine allows moving
// from s to next. PUBLISHED is terminal. FAILED only leaves via an explicit
// operator reset (to PENDING) or a retry dispatch (to ANALYZING).
func (s PipelineStatus) CanTransitionTo(next PipelineStatus) bool {
	switch s {
	case PipelinePending:
		return next == PipelineAnalyzing
	case PipelineAnalyzing:
		return next == PipelineCompleted || next == PipelineFailed
	case PipelineCompleted:
		return next == PipelinePublished
	case PipelinePublished:
		return false
	case PipelineFailed:
		return next == PipelinePending || next == PipelineAnalyzing
	default:
		return false
	}
}

// JobStatus is the state of a single analysis job dispatch attempt.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusExecuting JobStatus = "EXECUTING"
	JobStatusSuccess   JobStatus = "SUCCESS"
	JobStatusFailure   JobStatus = "FAILURE"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
