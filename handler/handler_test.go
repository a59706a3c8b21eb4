package handler

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"

	"poker-pipeline/metrics"
	"poker-pipeline/service"
)

type fakeTracker struct {
	reconciled []string
	err        error
}

func (f *fakeTracker) Reconcile(ctx context.Context, jobId string) error {
	f.reconciled = append(f.reconciled, jobId)
	return f.err
}

func (f *fakeTracker) Poll(ctx context.Context, jobId string) error {
	return nil
}

func (f *fakeTracker) Resume(ctx context.Context) (int, error) {
	return 0, nil
}

var _ service.TrackerService = (*fakeTracker)(nil)

func TestJobStatusHandler(t *testing.T) {
	tracker := &fakeTracker{}
	m := metrics.New()
	deps := ServiceDependencies{Tracker: tracker, Metrics: m}

	msg := amqp.Delivery{Body: []byte(`{"jobId":"remote-42"}`)}
	if err := JobStatusHandler(context.Background(), msg, deps); err != nil {
		t.Fatalf("JobStatusHandler: %v", err)
	}
	if len(tracker.reconciled) != 1 || tracker.reconciled[0] != "remote-42" {
		t.Errorf("reconciled: %v", tracker.reconciled)
	}
	if got := testutil.ToFloat64(m.StatusCallbacksTotal); got != 1 {
		t.Errorf("status callbacks counted: %v", got)
	}
}

func TestJobStatusHandler_badPayload(t *testing.T) {
	tracker := &fakeTracker{}
	deps := ServiceDependencies{Tracker: tracker}

	msg := amqp.Delivery{Body: []byte(`not json`)}
	if err := JobStatusHandler(context.Background(), msg, deps); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if len(tracker.reconciled) != 0 {
		t.Errorf("tracker should not be called on bad payload")
	}
}
