package handler

import (
	"context"
	"encoding/json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"poker-pipeline/dto"
	"poker-pipeline/metrics"
	"poker-pipeline/service"
)

type ServiceDependencies struct {
	Tracker service.TrackerService
	Metrics *metrics.Metrics
}

// JobStatusHandler consumes job status messages pushed by the analysis
// service and reconciles the named job. Duplicate deliveries are harmless;
// reconciling a terminal job is a no-op.
func JobStatusHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	if deps.Metrics != nil {
		deps.Metrics.StatusCallbacksTotal.Inc()
	}

	var status dto.JobStatusMessage
	if err := json.Unmarshal(msg.Body, &status); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal job status message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", status.JobID).
		Msg("received job status message")

	if err := deps.Tracker.Reconcile(ctx, status.JobID); err != nil {
		return err
	}

	return nil
}
