package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"poker-pipeline/analysis"
	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/entities"
	"poker-pipeline/metrics"
	"poker-pipeline/repository"
)

// TrackerService observes analysis jobs until they reach a terminal state
// and is the only component allowed to move a stream out of ANALYZING.
type TrackerService interface {
	// Reconcile fetches the job's remote status and applies it. Reconciling
	// an already-terminal job is a no-op, so duplicate callbacks are safe.
	Reconcile(ctx context.Context, jobId string) error
	// Poll reconciles on an interval until the job is terminal or ctx is
	// cancelled. Transient remote errors are logged and retried.
	Poll(ctx context.Context, jobId string) error
	// Resume restarts a Poll watcher for every stream left ANALYZING by a
	// previous process. It returns how many watchers were started.
	Resume(ctx context.Context) (int, error)
}

type tracker struct {
	repo         repository.PipelineRepository
	client       analysis.Client
	reconciler   HandReconciler
	metrics      *metrics.Metrics
	pollInterval time.Duration
}

func NewTrackerService(repo repository.PipelineRepository, client analysis.Client, reconciler HandReconciler, m *metrics.Metrics, pollInterval time.Duration) TrackerService {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &tracker{
		repo:         repo,
		client:       client,
		reconciler:   reconciler,
		metrics:      m,
		pollInterval: pollInterval,
	}
}

func (t *tracker) Reconcile(ctx context.Context, jobId string) error {
	_, err := t.reconcile(ctx, jobId)
	return err
}

func (t *tracker) Poll(ctx context.Context, jobId string) error {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		terminal, err := t.reconcile(ctx, jobId)
		if err != nil {
			if !apperror.IsRemoteService(err) {
				return err
			}
			zerolog.Ctx(ctx).Warn().Err(err).Str("job_id", jobId).Msg("status poll failed, will retry")
		}
		if terminal {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *tracker) reconcile(ctx context.Context, jobId string) (terminal bool, err error) {
	job, err := t.repo.FindJobById(ctx, jobId)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return true, t.repairStream(ctx, job)
	}

	remote, err := t.client.Status(ctx, jobId)
	if err != nil {
		// The stream stays ANALYZING; a later poll or callback picks it up.
		return false, err
	}

	status, err := analysis.MapStatus(remote.Status)
	if err != nil {
		return false, apperror.RemoteService("unusable status response", err)
	}
	progress := clampProgress(remote.Progress)

	switch status {
	case constant.JobStatusPending, constant.JobStatusExecuting:
		if err := t.repo.UpdateJobStatus(ctx, jobId, status, progress, nil, nil); err != nil {
			return false, err
		}
		if err := t.repo.UpdateStreamPipeline(ctx, job.StreamID, constant.PipelineAnalyzing, progress, nil); err != nil {
			return false, err
		}
		return false, nil

	case constant.JobStatusSuccess:
		return true, t.finalizeSuccess(ctx, job, remote)

	case constant.JobStatusFailure:
		return true, t.finalizeFailure(ctx, job, remote, progress)

	default:
		return false, apperror.RemoteService("unhandled job status "+status.String(), nil)
	}
}

// finalizeSuccess commits the terminal job row, the reconciliation pass and
// the stream outcome in one transaction, so the stream can never be left
// ANALYZING behind a terminal job.
func (t *tracker) finalizeSuccess(ctx context.Context, job *entities.AnalysisJob, remote *analysis.StatusResponse) error {
	completedAt := time.Now()
	if remote.CompletedAt != nil {
		completedAt = *remote.CompletedAt
	}

	var recErr error
	err := t.repo.Transaction(ctx, func(txCtx context.Context) error {
		if err := t.repo.UpdateJobStatus(txCtx, job.ID, constant.JobStatusSuccess, 100, nil, &completedAt); err != nil {
			return err
		}
		// Reconciliation runs before the stream is marked COMPLETED; a failing
		// pass must not leave a false success behind.
		if _, err := t.reconciler.Reconcile(txCtx, job.StreamID); err != nil {
			recErr = err
			msg := err.Error()
			return t.repo.UpdateStreamPipeline(txCtx, job.StreamID, constant.PipelineFailed, 100, &msg)
		}
		return t.repo.UpdateStreamPipeline(txCtx, job.StreamID, constant.PipelineCompleted, 100, nil)
	})
	if err != nil {
		return err
	}
	if recErr != nil {
		return recErr
	}

	if t.metrics != nil {
		t.metrics.JobsCompletedTotal.Inc()
	}
	zerolog.Ctx(ctx).Info().Str("job_id", job.ID).Str("stream_id", job.StreamID.String()).Msg("analysis job completed")
	return nil
}

func (t *tracker) finalizeFailure(ctx context.Context, job *entities.AnalysisJob, remote *analysis.StatusResponse, progress int) error {
	msg := remote.ErrorMessage
	if msg == "" {
		msg = "analysis failed"
	}
	completedAt := time.Now()
	if remote.CompletedAt != nil {
		completedAt = *remote.CompletedAt
	}

	err := t.repo.Transaction(ctx, func(txCtx context.Context) error {
		if err := t.repo.UpdateJobStatus(txCtx, job.ID, constant.JobStatusFailure, progress, &msg, &completedAt); err != nil {
			return err
		}
		// currentJobId stays pointed at the failed job for diagnostics.
		return t.repo.UpdateStreamPipeline(txCtx, job.StreamID, constant.PipelineFailed, progress, &msg)
	})
	if err != nil {
		return err
	}

	if t.metrics != nil {
		t.metrics.JobsFailedTotal.Inc()
	}
	zerolog.Ctx(ctx).Warn().Str("job_id", job.ID).Str("stream_id", job.StreamID.String()).Str("error", msg).Msg("analysis job failed")
	return nil
}

// repairStream re-applies the terminal stream outcome when a crash or store
// error left the stream ANALYZING after its job already finished. Converged
// streams are left untouched.
func (t *tracker) repairStream(ctx context.Context, job *entities.AnalysisJob) error {
	stream, err := t.repo.FindStreamById(ctx, job.StreamID)
	if err != nil {
		return err
	}
	if stream.PipelineStatus != constant.PipelineAnalyzing || stream.CurrentJobID == nil || *stream.CurrentJobID != job.ID {
		return nil
	}

	if job.Status == constant.JobStatusFailure {
		msg := "analysis failed"
		if job.ErrorMessage != nil {
			msg = *job.ErrorMessage
		}
		zerolog.Ctx(ctx).Warn().Str("job_id", job.ID).Str("stream_id", job.StreamID.String()).Msg("repairing stream left analyzing by failed job")
		return t.repo.UpdateStreamPipeline(ctx, job.StreamID, constant.PipelineFailed, job.Progress, &msg)
	}

	// The job succeeded; rerun the idempotent reconciliation and complete.
	zerolog.Ctx(ctx).Warn().Str("job_id", job.ID).Str("stream_id", job.StreamID.String()).Msg("repairing stream left analyzing by completed job")
	if _, err := t.reconciler.Reconcile(ctx, job.StreamID); err != nil {
		msg := err.Error()
		if updateErr := t.repo.UpdateStreamPipeline(ctx, job.StreamID, constant.PipelineFailed, 100, &msg); updateErr != nil {
			return updateErr
		}
		return err
	}
	return t.repo.UpdateStreamPipeline(ctx, job.StreamID, constant.PipelineCompleted, 100, nil)
}

func (t *tracker) Resume(ctx context.Context) (int, error) {
	streams, err := t.repo.FindStreamsByPipelineStatus(ctx, constant.PipelineAnalyzing)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, s := range streams {
		if s.CurrentJobID == nil {
			continue
		}
		jobId := *s.CurrentJobID
		started++
		go func() {
			if err := t.Poll(ctx, jobId); err != nil && !errors.Is(err, context.Canceled) {
				zerolog.Ctx(ctx).Error().Err(err).Str("job_id", jobId).Msg("resumed polling stopped")
			}
		}()
	}
	if started > 0 {
		zerolog.Ctx(ctx).Info().Int("count", started).Msg("resumed polling for in-flight jobs")
	}
	return started, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
