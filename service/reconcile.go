package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"poker-pipeline/apperror"
	"poker-pipeline/entities"
	"poker-pipeline/metrics"
	"poker-pipeline/repository"
)

// DefaultDedupThreshold is the window, in seconds, within which two detected
// hand starts are treated as duplicate detections of the same hand.
const DefaultDedupThreshold = 5.0

// ReconcileResult reports what a reconciliation pass did.
type ReconcileResult struct {
	Kept    int
	Removed int
}

// HandReconciler deduplicates and renumbers the hands extracted for a
// stream, and updates the stream's authoritative hand count.
type HandReconciler interface {
	Reconcile(ctx context.Context, streamId uuid.UUID) (ReconcileResult, error)
}

type handReconciler struct {
	repo      repository.PipelineRepository
	threshold float64
	metrics   *metrics.Metrics
}

func NewHandReconciler(repo repository.PipelineRepository, threshold float64, m *metrics.Metrics) HandReconciler {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}
	return &handReconciler{
		repo:      repo,
		threshold: threshold,
		metrics:   m,
	}
}

// Reconcile runs in a single repository transaction so a concurrent dispatch
// cannot reset the stream mid-pass. The clustering is a greedy single pass
// over the hands sorted by start timestamp: a hand starting within the
// threshold of the last kept hand is a duplicate, and the detection with the
// larger end timestamp survives.
func (r *handReconciler) Reconcile(ctx context.Context, streamId uuid.UUID) (ReconcileResult, error) {
	var result ReconcileResult

	err := r.repo.Transaction(ctx, func(ctx context.Context) error {
		hands, err := r.repo.GetHandsByStreamId(ctx, streamId)
		if err != nil {
			return err
		}

		kept, removed := cluster(hands, r.threshold)

		for i, h := range kept {
			number := i + 1
			if h.Number == number {
				continue
			}
			if err := r.repo.UpdateHandNumber(ctx, h.ID, number); err != nil {
				return err
			}
		}

		if err := r.repo.DeleteHands(ctx, removed); err != nil {
			return err
		}

		if err := r.repo.UpdateStreamHandCount(ctx, streamId, len(kept)); err != nil {
			return err
		}

		result = ReconcileResult{Kept: len(kept), Removed: len(removed)}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, apperror.Reconciliation("hand reconciliation failed", err)
	}

	if r.metrics != nil {
		r.metrics.HandsRemovedTotal.Add(float64(result.Removed))
	}
	zerolog.Ctx(ctx).Info().
		Str("stream_id", streamId.String()).
		Int("kept", result.Kept).
		Int("removed", result.Removed).
		Msg("hands reconciled")

	return result, nil
}

// cluster expects hands sorted by VideoTimestampStart ascending, which the
// repository guarantees. When a duplicate wins over the current survivor the
// survivor is replaced in place, so the anchor for the next comparison is
// always the hand that will actually be kept.
func cluster(hands []*entities.Hand, threshold float64) (kept []*entities.Hand, removed []uuid.UUID) {
	for _, h := range hands {
		if len(kept) == 0 {
			kept = append(kept, h)
			continue
		}
		last := kept[len(kept)-1]
		if h.VideoTimestampStart-last.VideoTimestampStart >= threshold {
			kept = append(kept, h)
			continue
		}
		if h.VideoTimestampEnd > last.VideoTimestampEnd {
			removed = append(removed, last.ID)
			kept[len(kept)-1] = h
		} else {
			removed = append(removed, h.ID)
		}
	}
	return kept, removed
}
