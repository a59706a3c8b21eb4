package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/dto"
	"poker-pipeline/repository"
)

// StreamService is the operator-facing surface over stream pipeline state.
type StreamService interface {
	Get(ctx context.Context, streamId uuid.UUID) (*dto.StreamView, error)
	// Reset force-transitions a FAILED stream back to PENDING and clears its
	// error and job pointer. This is the deliberate manual gate for retries.
	Reset(ctx context.Context, streamId uuid.UUID) error
	// Publish marks a COMPLETED stream as PUBLISHED after human review.
	Publish(ctx context.Context, streamId uuid.UUID) error
	// Delete removes the stream together with its hands and jobs. Streams
	// that are mid-analysis cannot be deleted.
	Delete(ctx context.Context, streamId uuid.UUID) error
}

type streamService struct {
	repo repository.PipelineRepository
}

func NewStreamService(repo repository.PipelineRepository) StreamService {
	return &streamService{repo: repo}
}

func (s *streamService) Get(ctx context.Context, streamId uuid.UUID) (*dto.StreamView, error) {
	stream, err := s.repo.FindStreamById(ctx, streamId)
	if err != nil {
		return nil, err
	}
	return &dto.StreamView{
		Id:               stream.ID.String(),
		Name:             stream.Name,
		VideoLocator:     stream.VideoLocator,
		PipelineStatus:   stream.PipelineStatus.String(),
		PipelineProgress: stream.PipelineProgress,
		PipelineError:    stream.PipelineError,
		AnalysisAttempts: stream.AnalysisAttempts,
		HandCount:        stream.HandCount,
	}, nil
}

func (s *streamService) Reset(ctx context.Context, streamId uuid.UUID) error {
	if _, err := s.repo.FindStreamById(ctx, streamId); err != nil {
		return err
	}
	if err := s.repo.ResetStream(ctx, streamId); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("stream_id", streamId.String()).Msg("stream reset to pending")
	return nil
}

func (s *streamService) Publish(ctx context.Context, streamId uuid.UUID) error {
	stream, err := s.repo.FindStreamById(ctx, streamId)
	if err != nil {
		return err
	}
	if !stream.PipelineStatus.CanTransitionTo(constant.PipelinePublished) {
		return apperror.Conflict("stream %s cannot be published from state %s", streamId, stream.PipelineStatus)
	}
	if err := s.repo.UpdateStreamPipeline(ctx, streamId, constant.PipelinePublished, 100, nil); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("stream_id", streamId.String()).Msg("stream published")
	return nil
}

func (s *streamService) Delete(ctx context.Context, streamId uuid.UUID) error {
	stream, err := s.repo.FindStreamById(ctx, streamId)
	if err != nil {
		return err
	}
	if stream.PipelineStatus == constant.PipelineAnalyzing {
		return apperror.Conflict("stream %s is analyzing and cannot be deleted", streamId)
	}
	if err := s.repo.DeleteStream(ctx, streamId); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("stream_id", streamId.String()).Msg("stream deleted")
	return nil
}
