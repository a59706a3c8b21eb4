package service

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"poker-pipeline/apperror"
	"poker-pipeline/constant"
	"poker-pipeline/entities"
)

func reconcilerFixture() (*fakeRepo, HandReconciler, uuid.UUID) {
	repo := newFakeRepo()
	streamId := uuid.New()
	repo.addStream(&entities.Stream{ID: streamId, PipelineStatus: constant.PipelineAnalyzing})
	return repo, NewHandReconciler(repo, 5, nil), streamId
}

func addHands(repo *fakeRepo, streamId uuid.UUID, spans [][2]float64) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(spans))
	for _, span := range spans {
		id := uuid.New()
		repo.addHand(&entities.Hand{
			ID:                  id,
			StreamID:            streamId,
			VideoTimestampStart: span[0],
			VideoTimestampEnd:   span[1],
		})
		ids = append(ids, id)
	}
	return ids
}

func sortedHands(repo *fakeRepo, streamId uuid.UUID) []*entities.Hand {
	hands, _ := repo.GetHandsByStreamId(context.Background(), streamId)
	sort.Slice(hands, func(i, j int) bool {
		return hands[i].VideoTimestampStart < hands[j].VideoTimestampStart
	})
	return hands
}

func TestReconcileHands_dedupClusters(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	// {10,12} and {300,303} are duplicate detections, {50} stands alone.
	addHands(repo, streamId, [][2]float64{
		{10, 40}, {12, 45}, {50, 90}, {300, 340}, {303, 330},
	})

	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 3 || res.Removed != 2 {
		t.Fatalf("kept=%d removed=%d", res.Kept, res.Removed)
	}

	hands := sortedHands(repo, streamId)
	if len(hands) != 3 {
		t.Fatalf("surviving rows: %d", len(hands))
	}
	for i, h := range hands {
		if h.Number != i+1 {
			t.Errorf("hand %d numbered %d", i, h.Number)
		}
	}
	// {10,40} vs {12,45}: the longer detection (end 45) survives.
	if hands[0].VideoTimestampEnd != 45 {
		t.Errorf("first cluster survivor end: %v", hands[0].VideoTimestampEnd)
	}
	// {300,340} vs {303,330}: the earlier detection has the larger end.
	if hands[2].VideoTimestampEnd != 340 {
		t.Errorf("last cluster survivor end: %v", hands[2].VideoTimestampEnd)
	}

	if got := repo.stream(streamId); got.HandCount != 3 {
		t.Errorf("stream hand count: %d", got.HandCount)
	}
}

func TestReconcileHands_chainCollapsesToOneSurvivor(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	// Each start is within the threshold of the surviving anchor before it.
	addHands(repo, streamId, [][2]float64{{0, 30}, {4, 35}, {8, 40}})

	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 1 || res.Removed != 2 {
		t.Fatalf("kept=%d removed=%d", res.Kept, res.Removed)
	}
	hands := sortedHands(repo, streamId)
	if hands[0].VideoTimestampEnd != 40 || hands[0].Number != 1 {
		t.Errorf("survivor: %+v", hands[0])
	}
}

func TestReconcileHands_startsExactlyThresholdApartAreDistinct(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	addHands(repo, streamId, [][2]float64{{10, 40}, {15, 50}})

	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 2 || res.Removed != 0 {
		t.Errorf("kept=%d removed=%d", res.Kept, res.Removed)
	}
}

func TestReconcileHands_renumberingStability(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	ids := addHands(repo, streamId, [][2]float64{{10, 40}, {100, 150}, {400, 460}})
	for i, id := range ids {
		repo.hands[id].Number = i + 1
	}

	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 3 || res.Removed != 0 {
		t.Errorf("kept=%d removed=%d", res.Kept, res.Removed)
	}
	if repo.handNumberWrites != 0 {
		t.Errorf("already-correct hands were rewritten %d times", repo.handNumberWrites)
	}
}

func TestReconcileHands_emptyStream(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()

	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Kept != 0 || res.Removed != 0 {
		t.Errorf("kept=%d removed=%d", res.Kept, res.Removed)
	}
	if got := repo.stream(streamId); got.HandCount != 0 {
		t.Errorf("hand count: %d", got.HandCount)
	}
}

func TestReconcileHands_idempotent(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	addHands(repo, streamId, [][2]float64{{10, 40}, {12, 45}, {50, 90}})

	if _, err := rec.Reconcile(context.Background(), streamId); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	res, err := rec.Reconcile(context.Background(), streamId)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if res.Kept != 2 || res.Removed != 0 {
		t.Errorf("second pass should find nothing to remove: kept=%d removed=%d", res.Kept, res.Removed)
	}
}

func TestReconcileHands_storeErrorWrapped(t *testing.T) {
	repo, rec, streamId := reconcilerFixture()
	repo.getHandsErr = errors.New("connection reset")

	_, err := rec.Reconcile(context.Background(), streamId)
	if !apperror.IsReconciliation(err) {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
}
