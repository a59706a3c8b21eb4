package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"poker-pipeline/analysis"
	"poker-pipeline/apperror"
	"poker-pipeline/config"
	"poker-pipeline/constant"
	"poker-pipeline/dto"
	"poker-pipeline/entities"
	"poker-pipeline/metrics"
	"poker-pipeline/planner"
	"poker-pipeline/repository"
)

// DispatchService starts analysis jobs. It is the only component allowed to
// move a stream into ANALYZING and the only one that may create a stream as
// a side effect of starting analysis.
type DispatchService interface {
	Dispatch(ctx context.Context, req dto.DispatchRequest) (*dto.DispatchResponse, error)
	Retry(ctx context.Context, streamId uuid.UUID) (*dto.DispatchResponse, error)
}

type dispatchService struct {
	repo    repository.PipelineRepository
	client  analysis.Client
	storage *minio.Client
	bucket  string
	cfg     *config.Config
	metrics *metrics.Metrics
}

func NewDispatchService(repo repository.PipelineRepository, client analysis.Client, cfg *config.Config, m *metrics.Metrics) DispatchService {
	return &dispatchService{
		repo:    repo,
		client:  client,
		storage: cfg.Storage,
		bucket:  cfg.MinIOBucket,
		cfg:     cfg,
		metrics: m,
	}
}

func (s *dispatchService) Dispatch(ctx context.Context, req dto.DispatchRequest) (res *dto.DispatchResponse, err error) {
	defer func() {
		if err != nil && s.metrics != nil {
			kind := "internal"
			var appErr *apperror.Error
			if errors.As(err, &appErr) {
				kind = appErr.Kind.String()
			}
			s.metrics.DispatchFailuresTotal.WithLabelValues(kind).Inc()
		}
	}()

	// Checked before any write so a missing endpoint can never leave a
	// half-created stream behind.
	if s.cfg.Analysis.URL == "" {
		return nil, apperror.Configuration("analysis service url is not configured")
	}

	// Plan before resolving the stream: a malformed request must fail
	// without creating anything.
	segments, err := planner.Plan(planner.Input{
		TotalDurationSeconds: req.TotalDurationSeconds,
		Ranges:               req.Ranges,
	}, s.cfg.Pipeline.SegmentDurationCap)
	if err != nil {
		return nil, err
	}

	stream, err := s.ensureStream(ctx, req)
	if err != nil {
		return nil, err
	}

	locator := stream.VideoLocator
	if locator == "" {
		return nil, apperror.Validation("stream %s has no video locator", stream.ID)
	}

	if !stream.PipelineStatus.CanTransitionTo(constant.PipelineAnalyzing) {
		return nil, apperror.Conflict("stream %s cannot be dispatched from state %s", stream.ID, stream.PipelineStatus)
	}

	active, err := s.repo.FindActiveJobByStreamId(ctx, stream.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperror.Conflict("stream %s already has active job %s", stream.ID, active.ID)
	}

	if err := s.checkSource(ctx, locator); err != nil {
		return nil, err
	}

	// Nothing has been persisted yet: a failure from here up to the claim
	// leaves the stream exactly as it was, eligible for retry.
	submitted, err := s.client.Submit(ctx, analysis.SubmitRequest{
		StreamId:     stream.ID.String(),
		VideoLocator: locator,
		Segments:     segments,
		PlatformHint: req.PlatformHint,
	})
	if err != nil {
		return nil, err
	}

	job := &entities.AnalysisJob{
		ID:        submitted.JobId,
		StreamID:  stream.ID,
		Segments:  segments,
		Status:    constant.JobStatusPending,
		CreatedAt: time.Now(),
	}

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateJob(ctx, job); err != nil {
			return err
		}
		return s.repo.ClaimStreamForDispatch(ctx, stream.ID, job.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DispatchesTotal.Inc()
	}
	zerolog.Ctx(ctx).Info().
		Str("stream_id", stream.ID.String()).
		Str("job_id", job.ID).
		Int("segments", len(segments)).
		Msg("analysis job dispatched")

	return &dto.DispatchResponse{StreamId: stream.ID.String(), JobId: job.ID}, nil
}

// Retry re-dispatches a stream using its stored locator and the segment plan
// of its most recent job.
func (s *dispatchService) Retry(ctx context.Context, streamId uuid.UUID) (*dto.DispatchResponse, error) {
	stream, err := s.repo.FindStreamById(ctx, streamId)
	if err != nil {
		return nil, err
	}
	if stream.CurrentJobID == nil {
		return nil, apperror.Validation("stream %s has never been dispatched", streamId)
	}
	job, err := s.repo.FindJobById(ctx, *stream.CurrentJobID)
	if err != nil {
		return nil, err
	}
	return s.Dispatch(ctx, dto.DispatchRequest{
		StreamId: streamId.String(),
		Ranges:   []entities.Segment(job.Segments),
	})
}

// ensureStream resolves the request to an existing stream, or creates one
// from the video locator when no stream matches it yet.
func (s *dispatchService) ensureStream(ctx context.Context, req dto.DispatchRequest) (*entities.Stream, error) {
	if req.StreamId != "" {
		id, err := uuid.Parse(req.StreamId)
		if err != nil {
			return nil, apperror.Validation("invalid stream id %q", req.StreamId)
		}
		return s.repo.FindStreamById(ctx, id)
	}

	if req.VideoLocator == "" {
		return nil, apperror.Validation("either streamId or videoLocator is required")
	}

	stream, err := s.repo.FindStreamByLocator(ctx, req.VideoLocator)
	if err == nil {
		return stream, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}

	stream = &entities.Stream{
		ID:             uuid.New(),
		Name:           nameFromLocator(req.VideoLocator),
		VideoLocator:   req.VideoLocator,
		Platform:       req.PlatformHint,
		PipelineStatus: constant.PipelinePending,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.repo.CreateStream(ctx, stream); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("stream_id", stream.ID.String()).
		Str("video_locator", req.VideoLocator).
		Msg("created stream for new video")
	return stream, nil
}

// checkSource verifies object-storage locators before submitting, so a
// missing upload fails fast instead of burning a remote job. External
// platform URLs are left to the analysis service to resolve.
func (s *dispatchService) checkSource(ctx context.Context, locator string) error {
	if s.storage == nil || !strings.HasPrefix(locator, "s3://") {
		return nil
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(locator, "s3://"), "/")
	if !ok || object == "" {
		return apperror.Validation("malformed object locator %q", locator)
	}
	if bucket == "" {
		bucket = s.bucket
	}
	_, err := s.storage.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == 404 {
			return apperror.Validation("source video %q not found in object storage", locator)
		}
		return apperror.RemoteService("object storage check failed", err)
	}
	return nil
}

func nameFromLocator(locator string) string {
	trimmed := strings.TrimRight(locator, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if trimmed == "" {
		return locator
	}
	return trimmed
}
