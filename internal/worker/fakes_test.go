package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lead-gateway/internal/delivery"
	"lead-gateway/internal/models"
	"lead-gateway/internal/store"
)

type fakeStore struct {
	mu                sync.Mutex
	leads             map[int64]models.Lead
	attempts          map[int64][]store.AttemptResult
	transitionHistory []string
}

func newFakeStore(leads ...models.Lead) *fakeStore {
	fs := &fakeStore{leads: map[int64]models.Lead{}, attempts: map[int64][]store.AttemptResult{}}
	for _, l := range leads {
		fs.leads[l.ID] = l
	}
	return fs
}

func (f *fakeStore) GetLead(ctx context.Context, id int64) (models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return models.Lead{}, fmt.Errorf("lead %d not found", id)
	}
	return lead, nil
}

func (f *fakeStore) RejectLead(ctx context.Context, id int64, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[id]
	if err := models.Transition(lead.Status, models.StatusRejected); err != nil {
		return err
	}
	lead.Status = models.StatusRejected
	lead.RejectionReason = &code
	f.leads[id] = lead
	f.transitionHistory = append(f.transitionHistory, "REJECTED")
	return nil
}

func (f *fakeStore) MarkReady(ctx context.Context, id int64, normalized, customerPayload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[id]
	if err := models.Transition(lead.Status, models.StatusReady); err != nil {
		return err
	}
	lead.Status = models.StatusReady
	lead.NormalizedPayload = normalized
	lead.CustomerPayload = customerPayload
	f.leads[id] = lead
	f.transitionHistory = append(f.transitionHistory, "READY")
	return nil
}

func (f *fakeStore) MarkMappingFailed(ctx context.Context, id int64, normalized map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[id]
	if err := models.Transition(lead.Status, models.StatusPermanentlyFailed); err != nil {
		return err
	}
	lead.Status = models.StatusPermanentlyFailed
	lead.NormalizedPayload = normalized
	f.leads[id] = lead
	f.transitionHistory = append(f.transitionHistory, "PERMANENTLY_FAILED(mapping)")
	return nil
}

func (f *fakeStore) MarkDeliveryExhausted(ctx context.Context, id int64, from string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[id]
	if err := models.Transition(from, models.StatusPermanentlyFailed); err != nil {
		return err
	}
	lead.Status = models.StatusPermanentlyFailed
	f.leads[id] = lead
	return nil
}

func (f *fakeStore) CountDeliveryAttempts(ctx context.Context, leadID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts[leadID]), nil
}

func (f *fakeStore) RecordDeliveryOutcome(ctx context.Context, leadID int64, from, to string, result store.AttemptResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[leadID]
	if err := models.Transition(from, to); err != nil {
		return err
	}
	lead.Status = to
	f.leads[leadID] = lead
	f.attempts[leadID] = append(f.attempts[leadID], result)
	f.transitionHistory = append(f.transitionHistory, to)
	return nil
}

func (f *fakeStore) FindOrphanLeads(ctx context.Context, grace time.Duration, limit int) ([]models.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Lead
	for _, l := range f.leads {
		if l.Status == models.StatusReceived {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	completed []int64
	failed    []int64
	retried   []int64
	enqueued  []models.Job
	nextID    int64
}

func (q *fakeQueue) Enqueue(ctx context.Context, job models.Job, runAt time.Time) (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	job.ID = q.nextID
	q.enqueued = append(q.enqueued, job)
	return job, nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (models.Job, bool, error) {
	return models.Job{}, false, nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Retry(ctx context.Context, jobID int64, attempts int, nextRunAt time.Time, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID int64, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, jobID)
	return nil
}

func (q *fakeQueue) Health(ctx context.Context) error { return nil }

func (q *fakeQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.enqueued) - len(q.completed) - len(q.failed)), nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	responses []delivery.Outcome
	calls     int
}

func (d *fakeDeliverer) Deliver(ctx context.Context, payload map[string]any) delivery.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	d.calls++
	return d.responses[idx]
}

func successOutcome(status int) delivery.Outcome {
	return delivery.Outcome{Success: &delivery.Success{Status: status, Body: "ok"}}
}

func retriableFailure(status int) delivery.Outcome {
	return delivery.Outcome{Failure: &delivery.Failure{Status: status, Retriable: true, Message: fmt.Sprintf("status %d", status)}}
}

func nonRetriableFailure(status int) delivery.Outcome {
	return delivery.Outcome{Failure: &delivery.Failure{Status: status, Retriable: false, Message: fmt.Sprintf("status %d", status)}}
}
