package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"poker-pipeline/analysis"
	"poker-pipeline/apperror"
	"poker-pipeline/config"
	"poker-pipeline/constant"
	"poker-pipeline/dto"
	jobHandler "poker-pipeline/handler"
	"poker-pipeline/metrics"
	"poker-pipeline/pkg/rabbitmq"
	"poker-pipeline/repository"
	"poker-pipeline/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)
	m := metrics.New()
	client := analysis.NewClient(cfg.Analysis.URL, cfg.Analysis.SubmitTimeout)
	reconciler := service.NewHandReconciler(repo, cfg.Pipeline.DedupThreshold, m)
	trackerService := service.NewTrackerService(repo, client, reconciler, m, cfg.Analysis.PollInterval)
	dispatchService := service.NewDispatchService(repo, client, cfg, m)
	streamService := service.NewStreamService(repo)

	serviceDeps := jobHandler.ServiceDependencies{
		Tracker: trackerService,
		Metrics: m,
	}

	// Status messages pushed by the analysis service over the queue.
	if conn != nil {
		statusConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, cfg.Server.Workers, jobHandler.JobStatusHandler)
		go func() {
			err := statusConsumer.Consume(ctx, serviceDeps)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Status consumer error")
			}
		}()
	}

	r := gin.Default()
	addHealth(r)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	routes := &routes{
		ctx:      ctx,
		dispatch: dispatchService,
		tracker:  trackerService,
		streams:  streamService,
		metrics:  m,
	}
	routes.register(r)

	// Streams left ANALYZING by a previous process get their watchers back,
	// so a restart does not depend on pushed callbacks.
	if _, err := trackerService.Resume(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("could not resume in-flight jobs")
	}

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

type routes struct {
	ctx      context.Context
	dispatch service.DispatchService
	tracker  service.TrackerService
	streams  service.StreamService
	metrics  *metrics.Metrics
}

func (rt *routes) register(r *gin.Engine) {
	r.POST("/streams/dispatch", rt.dispatchStream)
	r.GET("/streams/:id", rt.getStream)
	r.POST("/streams/:id/retry", rt.retryStream)
	r.POST("/streams/:id/reset", rt.resetStream)
	r.POST("/streams/:id/publish", rt.publishStream)
	r.DELETE("/streams/:id", rt.deleteStream)
	r.POST("/callbacks/jobs/:id", rt.jobCallback)
}

func (rt *routes) dispatchStream(c *gin.Context) {
	var req dto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := rt.dispatch.Dispatch(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	rt.startPolling(res.JobId)
	c.JSON(http.StatusAccepted, res)
}

func (rt *routes) getStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	view, err := rt.streams.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (rt *routes) retryStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	res, err := rt.dispatch.Retry(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	rt.startPolling(res.JobId)
	c.JSON(http.StatusAccepted, res)
}

func (rt *routes) resetStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	if err := rt.streams.Reset(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (rt *routes) publishStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	if err := rt.streams.Publish(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "published"})
}

func (rt *routes) deleteStream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream id"})
		return
	}
	if err := rt.streams.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (rt *routes) jobCallback(c *gin.Context) {
	jobId := c.Param("id")
	if rt.metrics != nil {
		rt.metrics.StatusCallbacksTotal.Inc()
	}
	if err := rt.tracker.Reconcile(c.Request.Context(), jobId); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// startPolling watches the new job on the server's root context, so the loop
// survives the request but stops on shutdown or when the job is terminal.
func (rt *routes) startPolling(jobId string) {
	go func() {
		if err := rt.tracker.Poll(rt.ctx, jobId); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(rt.ctx).Error().Err(err).Str("job_id", jobId).Msg("job polling stopped")
		}
	}()
}

func writeError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var status int
	switch appErr.Kind {
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindConflict:
		status = http.StatusConflict
	case apperror.KindRemoteService:
		status = http.StatusBadGateway
	case apperror.KindConfiguration:
		status = http.StatusServiceUnavailable
	case apperror.KindReconciliation:
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": appErr.Error(), "kind": appErr.Kind.String()})
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
