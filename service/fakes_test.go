package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"poker-pipeline/analysis"
	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/entities"
)

// fakeRepo is an in-memory PipelineRepository for service tests.
type fakeRepo struct {
	mu      sync.Mutex
	streams map[uuid.UUID]*entities.Stream
	jobs    map[string]*entities.AnalysisJob
	hands   map[uuid.UUID]*entities.Hand

	handNumberWrites int
	deletedHands     []uuid.UUID

	getHandsErr         error
	updateStreamErrOnce error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		streams: make(map[uuid.UUID]*entities.Stream),
		jobs:    make(map[string]*entities.AnalysisJob),
		hands:   make(map[uuid.UUID]*entities.Hand),
	}
}

func (r *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return callback(ctx)
}

func (r *fakeRepo) CreateStream(ctx context.Context, stream *entities.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *stream
	r.streams[stream.ID] = &cp
	return nil
}

func (r *fakeRepo) FindStreamById(ctx context.Context, id uuid.UUID) (*entities.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, apperror.NotFound("stream %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) FindStreamByLocator(ctx context.Context, locator string) (*entities.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.streams {
		if s.VideoLocator == locator {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("no stream for locator %s", locator)
}

func (r *fakeRepo) FindStreamsByPipelineStatus(ctx context.Context, status constant.PipelineStatus) ([]*entities.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var streams []*entities.Stream
	for _, s := range r.streams {
		if s.PipelineStatus == status {
			cp := *s
			streams = append(streams, &cp)
		}
	}
	return streams, nil
}

func (r *fakeRepo) ClaimStreamForDispatch(ctx context.Context, streamId uuid.UUID, jobId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[streamId]
	if !ok || s.PipelineStatus == constant.PipelineAnalyzing {
		return apperror.Conflict("stream %s is already analyzing", streamId)
	}
	s.PipelineStatus = constant.PipelineAnalyzing
	s.PipelineProgress = 0
	s.PipelineError = nil
	s.CurrentJobID = &jobId
	s.AnalysisAttempts++
	return nil
}

func (r *fakeRepo) UpdateStreamPipeline(ctx context.Context, streamId uuid.UUID, status constant.PipelineStatus, progress int, pipelineError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateStreamErrOnce != nil {
		err := r.updateStreamErrOnce
		r.updateStreamErrOnce = nil
		return err
	}
	s, ok := r.streams[streamId]
	if !ok {
		return apperror.NotFound("stream %s not found", streamId)
	}
	s.PipelineStatus = status
	s.PipelineProgress = progress
	s.PipelineError = pipelineError
	return nil
}

func (r *fakeRepo) ResetStream(ctx context.Context, streamId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[streamId]
	if !ok || s.PipelineStatus != constant.PipelineFailed {
		return apperror.Conflict("stream %s is not in a failed state", streamId)
	}
	s.PipelineStatus = constant.PipelinePending
	s.PipelineProgress = 0
	s.PipelineError = nil
	s.CurrentJobID = nil
	return nil
}

func (r *fakeRepo) UpdateStreamHandCount(ctx context.Context, streamId uuid.UUID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams[streamId]; ok {
		s.HandCount = count
	}
	return nil
}

func (r *fakeRepo) DeleteStream(ctx context.Context, streamId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[streamId]; !ok {
		return apperror.NotFound("stream %s not found", streamId)
	}
	for id, h := range r.hands {
		if h.StreamID == streamId {
			delete(r.hands, id)
		}
	}
	for id, j := range r.jobs {
		if j.StreamID == streamId {
			delete(r.jobs, id)
		}
	}
	delete(r.streams, streamId)
	return nil
}

func (r *fakeRepo) CreateJob(ctx context.Context, job *entities.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) FindJobById(ctx context.Context, id string) (*entities.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperror.NotFound("analysis job %s not found", id)
	}
	cp := *j
	return &cp, nil
}

func (r *fakeRepo) FindActiveJobByStreamId(ctx context.Context, streamId uuid.UUID) (*entities.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.StreamID == streamId && !j.Status.Terminal() {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) UpdateJobStatus(ctx context.Context, id string, status constant.JobStatus, progress int, errorMessage *string, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return apperror.NotFound("analysis job %s not found", id)
	}
	j.Status = status
	j.Progress = progress
	j.ErrorMessage = errorMessage
	j.CompletedAt = completedAt
	return nil
}

func (r *fakeRepo) GetHandsByStreamId(ctx context.Context, streamId uuid.UUID) ([]*entities.Hand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getHandsErr != nil {
		return nil, r.getHandsErr
	}
	var hands []*entities.Hand
	for _, h := range r.hands {
		if h.StreamID == streamId {
			cp := *h
			hands = append(hands, &cp)
		}
	}
	sort.Slice(hands, func(i, j int) bool {
		return hands[i].VideoTimestampStart < hands[j].VideoTimestampStart
	})
	return hands, nil
}

func (r *fakeRepo) UpdateHandNumber(ctx context.Context, handId uuid.UUID, number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hands[handId]
	if !ok {
		return apperror.NotFound("hand %s not found", handId)
	}
	h.Number = number
	r.handNumberWrites++
	return nil
}

func (r *fakeRepo) DeleteHands(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.hands, id)
		r.deletedHands = append(r.deletedHands, id)
	}
	return nil
}

func (r *fakeRepo) addStream(s *entities.Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.ID] = s
}

func (r *fakeRepo) addJob(j *entities.AnalysisJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
}

func (r *fakeRepo) addHand(h *entities.Hand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hands[h.ID] = h
}

func (r *fakeRepo) stream(id uuid.UUID) entities.Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.streams[id]
}

func (r *fakeRepo) job(id string) entities.AnalysisJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

func (r *fakeRepo) jobCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// fakeAnalysisClient records submits and serves canned statuses.
type fakeAnalysisClient struct {
	mu          sync.Mutex
	submitErr   error
	nextJobId   string
	submits     []analysis.SubmitRequest
	statuses    map[string]*analysis.StatusResponse
	statusErr   error
	statusCalls int
}

func newFakeClient() *fakeAnalysisClient {
	return &fakeAnalysisClient{
		nextJobId: "job-1",
		statuses:  make(map[string]*analysis.StatusResponse),
	}
}

func (c *fakeAnalysisClient) Submit(ctx context.Context, req analysis.SubmitRequest) (*analysis.SubmitResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	c.submits = append(c.submits, req)
	return &analysis.SubmitResponse{JobId: c.nextJobId}, nil
}

func (c *fakeAnalysisClient) Status(ctx context.Context, jobId string) (*analysis.StatusResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	st, ok := c.statuses[jobId]
	if !ok {
		return nil, apperror.RemoteService("unknown job "+jobId, nil)
	}
	return st, nil
}
