package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/entities"
)

// PipelineRepository is the durable state store for streams, analysis jobs
// and hands. All pipeline mutations go through here; it is the single source
// of truth shared across dispatcher, tracker and reconciler.
type PipelineRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error

	CreateStream(ctx context.Context, stream *entities.Stream) error
	FindStreamById(ctx context.Context, id uuid.UUID) (*entities.Stream, error)
	FindStreamByLocator(ctx context.Context, locator string) (*entities.Stream, error)
	FindStreamsByPipelineStatus(ctx context.Context, status constant.PipelineStatus) ([]*entities.Stream, error)
	// ClaimStreamForDispatch atomically moves the stream into ANALYZING and
	// records the new job. It is a conditional update; if another dispatch
	// already holds the stream the claim fails with a conflict error.
	ClaimStreamForDispatch(ctx context.Context, streamId uuid.UUID, jobId string) error
	UpdateStreamPipeline(ctx context.Context, streamId uuid.UUID, status constant.PipelineStatus, progress int, pipelineError *string) error
	ResetStream(ctx context.Context, streamId uuid.UUID) error
	UpdateStreamHandCount(ctx context.Context, streamId uuid.UUID, count int) error
	// DeleteStream removes the stream and its hands and jobs in one
	// transaction; a stream is never left referenced by orphaned children.
	DeleteStream(ctx context.Context, streamId uuid.UUID) error

	CreateJob(ctx context.Context, job *entities.AnalysisJob) error
	FindJobById(ctx context.Context, id string) (*entities.AnalysisJob, error)
	FindActiveJobByStreamId(ctx context.Context, streamId uuid.UUID) (*entities.AnalysisJob, error)
	UpdateJobStatus(ctx context.Context, id string, status constant.JobStatus, progress int, errorMessage *string, completedAt *time.Time) error

	GetHandsByStreamId(ctx context.Context, streamId uuid.UUID) ([]*entities.Hand, error)
	UpdateHandNumber(ctx context.Context, handId uuid.UUID, number int) error
	DeleteHands(ctx context.Context, ids []uuid.UUID) error
}

type txKey struct{}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) PipelineRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// conn returns the transaction handle carried by ctx, or the root handle.
// Repository calls made inside Transaction join the surrounding transaction.
func (r *repo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) CreateStream(ctx context.Context, stream *entities.Stream) error {
	return r.conn(ctx).Create(stream).Error
}

func (r *repo) FindStreamById(ctx context.Context, id uuid.UUID) (*entities.Stream, error) {
	stream := &entities.Stream{}
	err := r.conn(ctx).First(stream, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("stream %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *repo) FindStreamByLocator(ctx context.Context, locator string) (*entities.Stream, error) {
	stream := &entities.Stream{}
	err := r.conn(ctx).First(stream, "video_locator = ?", locator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("no stream for locator %s", locator)
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *repo) FindStreamsByPipelineStatus(ctx context.Context, status constant.PipelineStatus) ([]*entities.Stream, error) {
	var streams []*entities.Stream
	if err := r.conn(ctx).Where("pipeline_status = ?", status).Find(&streams).Error; err != nil {
		return nil, err
	}
	return streams, nil
}

func (r *repo) ClaimStreamForDispatch(ctx context.Context, streamId uuid.UUID, jobId string) error {
	res := r.conn(ctx).Model(&entities.Stream{}).
		Where("id = ? AND pipeline_status <> ?", streamId, constant.PipelineAnalyzing).
		Updates(map[string]interface{}{
			"pipeline_status":   constant.PipelineAnalyzing,
			"pipeline_progress": 0,
			"pipeline_error":    nil,
			"current_job_id":    jobId,
			"analysis_attempts": gorm.Expr("analysis_attempts + 1"),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("stream %s is already analyzing", streamId)
	}
	return nil
}

func (r *repo) UpdateStreamPipeline(ctx context.Context, streamId uuid.UUID, status constant.PipelineStatus, progress int, pipelineError *string) error {
	return r.conn(ctx).Model(&entities.Stream{}).
		Where("id = ?", streamId).
		Updates(map[string]interface{}{
			"pipeline_status":   status,
			"pipeline_progress": progress,
			"pipeline_error":    pipelineError,
			"updated_at":        time.Now(),
		}).Error
}

func (r *repo) ResetStream(ctx context.Context, streamId uuid.UUID) error {
	res := r.conn(ctx).Model(&entities.Stream{}).
		Where("id = ? AND pipeline_status = ?", streamId, constant.PipelineFailed).
		Updates(map[string]interface{}{
			"pipeline_status":   constant.PipelinePending,
			"pipeline_progress": 0,
			"pipeline_error":    nil,
			"current_job_id":    nil,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("stream %s is not in a failed state", streamId)
	}
	return nil
}

func (r *repo) UpdateStreamHandCount(ctx context.Context, streamId uuid.UUID, count int) error {
	return r.conn(ctx).Model(&entities.Stream{}).
		Where("id = ?", streamId).
		Updates(map[string]interface{}{
			"hand_count": count,
			"updated_at": time.Now(),
		}).Error
}

func (r *repo) DeleteStream(ctx context.Context, streamId uuid.UUID) error {
	return r.Transaction(ctx, func(txCtx context.Context) error {
		if err := r.conn(txCtx).Where("stream_id = ?", streamId).Delete(&entities.Hand{}).Error; err != nil {
			return err
		}
		if err := r.conn(txCtx).Where("stream_id = ?", streamId).Delete(&entities.AnalysisJob{}).Error; err != nil {
			return err
		}
		res := r.conn(txCtx).Where("id = ?", streamId).Delete(&entities.Stream{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("stream %s not found", streamId)
		}
		return nil
	})
}

func (r *repo) CreateJob(ctx context.Context, job *entities.AnalysisJob) error {
	return r.conn(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id string) (*entities.AnalysisJob, error) {
	job := &entities.AnalysisJob{}
	err := r.conn(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("analysis job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) FindActiveJobByStreamId(ctx context.Context, streamId uuid.UUID) (*entities.AnalysisJob, error) {
	job := &entities.AnalysisJob{}
	err := r.conn(ctx).
		Where("stream_id = ? AND status IN ?", streamId, []constant.JobStatus{constant.JobStatusPending, constant.JobStatusExecuting}).
		First(job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) UpdateJobStatus(ctx context.Context, id string, status constant.JobStatus, progress int, errorMessage *string, completedAt *time.Time) error {
	return r.conn(ctx).Model(&entities.AnalysisJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"progress":      progress,
			"error_message": errorMessage,
			"completed_at":  completedAt,
		}).Error
}

func (r *repo) GetHandsByStreamId(ctx context.Context, streamId uuid.UUID) ([]*entities.Hand, error) {
	var hands []*entities.Hand
	err := r.conn(ctx).
		Where("stream_id = ?", streamId).
		Order("video_timestamp_start ASC").
		Find(&hands).Error
	if err != nil {
		return nil, err
	}
	return hands, nil
}

func (r *repo) UpdateHandNumber(ctx context.Context, handId uuid.UUID, number int) error {
	return r.conn(ctx).Model(&entities.Hand{}).
		Where("id = ?", handId).
		Update("number", number).Error
}

func (r *repo) DeleteHands(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(ctx).Delete(&entities.Hand{}, "id IN ?", ids).Error
}
