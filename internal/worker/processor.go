// Package worker drives the per-job stage pipeline described in §4.H:
// validate, normalize, map, deliver, recording every status change and
// delivery attempt transactionally.
package worker

import (
	"context"
	"fmt"
	"time"

	"lead-gateway/internal/config"
	"lead-gateway/internal/delivery"
	"lead-gateway/internal/mapper"
	"lead-gateway/internal/models"
	"lead-gateway/internal/normalizer"
	"lead-gateway/internal/queue"
	"lead-gateway/internal/store"
	"lead-gateway/internal/telemetry"
	"lead-gateway/internal/validator"
)

// Store is the subset of persistence operations the processor needs. It is
// satisfied by *store.Store; tests substitute a fake.
type Store interface {
	GetLead(ctx context.Context, id int64) (models.Lead, error)
	RejectLead(ctx context.Context, id int64, code string) error
	MarkReady(ctx context.Context, id int64, normalized, customerPayload map[string]any) error
	MarkMappingFailed(ctx context.Context, id int64, normalized map[string]any) error
	MarkDeliveryExhausted(ctx context.Context, id int64, from string) error
	CountDeliveryAttempts(ctx context.Context, leadID int64) (int, error)
	RecordDeliveryOutcome(ctx context.Context, leadID int64, from, to string, result store.AttemptResult) error
	FindOrphanLeads(ctx context.Context, grace time.Duration, limit int) ([]models.Lead, error)
}

// Deliverer sends a mapped payload and classifies the outcome. Satisfied by
// *delivery.Client; tests substitute a fake to avoid real HTTP calls.
type Deliverer interface {
	Deliver(ctx context.Context, payload map[string]any) delivery.Outcome
}

// Processor dequeues process_lead jobs and drives them through the stage
// pipeline until a terminal status or a rescheduled retry.
type Processor struct {
	cfg        config.Config
	queue      queue.Queue
	store      Store
	validator  *validator.Validator
	normalizer *normalizer.Normalizer
	mapper     *mapper.Mapper
	client     Deliverer
	delays     []time.Duration
}

// NewProcessor wires the pipeline's stages from configuration.
func NewProcessor(cfg config.Config, q queue.Queue, st Store, v *validator.Validator, n *normalizer.Normalizer, m *mapper.Mapper, c Deliverer) *Processor {
	return &Processor{
		cfg:        cfg,
		queue:      q,
		store:      st,
		validator:  v,
		normalizer: n,
		mapper:     m,
		client:     c,
		delays:     backoffSchedule(cfg.BackoffBase, cfg.MaxAttempts),
	}
}

// backoffSchedule computes delay[i] = base * 2^i for i = 0..maxAttempts-1.
func backoffSchedule(base time.Duration, maxAttempts int) []time.Duration {
	delays := make([]time.Duration, maxAttempts)
	d := base
	for i := 0; i < maxAttempts; i++ {
		delays[i] = d
		d *= 2
	}
	return delays
}

// Run polls the queue until ctx is cancelled, processing one job per
// dequeue. Many Run loops may execute concurrently against the same queue.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, ok, err := p.queue.Dequeue(ctx)
		if err != nil || !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}

		telemetry.InFlightGauge.Inc()
		p.processJob(ctx, job)
		telemetry.InFlightGauge.Dec()
	}
}

// processJob runs one job through the pipeline. Errors are absorbed here:
// a job that cannot be processed is always resolved to complete, retry, or
// fail against the queue so it never spins forever.
func (p *Processor) processJob(ctx context.Context, job models.Job) {
	leadID, ok := job.LeadID()
	if !ok {
		_ = p.queue.Fail(ctx, job.ID, "job payload missing lead_id")
		return
	}

	lead, err := p.store.GetLead(ctx, leadID)
	if err != nil {
		_ = p.queue.Fail(ctx, job.ID, fmt.Sprintf("load lead %d: %v", leadID, err))
		return
	}

	if lead.Status == models.StatusReceived {
		lead, err = p.runTransformStages(ctx, lead)
		if err != nil {
			// A status write failed: fail the job rather than leave it
			// leased; it is not retried automatically (§7).
			_ = p.queue.Fail(ctx, job.ID, fmt.Sprintf("transform stages for lead %d: %v", leadID, err))
			return
		}
		if lead.Status == models.StatusRejected || lead.Status == models.StatusPermanentlyFailed {
			_ = p.queue.Complete(ctx, job.ID)
			return
		}
	}

	if lead.Status != models.StatusReady && lead.Status != models.StatusFailed {
		// Already terminal (delivered, or a race with another worker).
		_ = p.queue.Complete(ctx, job.ID)
		return
	}

	p.runDeliveryStage(ctx, job, lead)
}

// runTransformStages runs validation, normalization, and mapping for a
// freshly received lead. It returns the lead reflecting whatever terminal
// or READY status was written.
func (p *Processor) runTransformStages(ctx context.Context, lead models.Lead) (models.Lead, error) {
	if ok, code := p.validator.Validate(lead.RawPayload); !ok {
		if err := p.store.RejectLead(ctx, lead.ID, code); err != nil {
			return lead, err
		}
		telemetry.LeadsRejected.WithLabelValues(code).Inc()
		lead.Status = models.StatusRejected
		lead.RejectionReason = &code
		return lead, nil
	}

	normalized, _ := p.normalizer.Normalize(lead.RawPayload).(map[string]any)
	customerPayload, omitted, err := p.mapper.Map(normalized)
	if err != nil {
		if markErr := p.store.MarkMappingFailed(ctx, lead.ID, normalized); markErr != nil {
			return lead, markErr
		}
		telemetry.MappingFailures.Inc()
		lead.Status = models.StatusPermanentlyFailed
		lead.NormalizedPayload = normalized
		return lead, nil
	}
	_ = omitted // surfaced only via the stored customer payload diff, not separately persisted

	if err := p.store.MarkReady(ctx, lead.ID, normalized, customerPayload); err != nil {
		return lead, err
	}
	lead.Status = models.StatusReady
	lead.NormalizedPayload = normalized
	lead.CustomerPayload = customerPayload
	return lead, nil
}

// runDeliveryStage attempts delivery (or recognizes exhaustion) and either
// completes or retries the job.
func (p *Processor) runDeliveryStage(ctx context.Context, job models.Job, lead models.Lead) {
	n, err := p.store.CountDeliveryAttempts(ctx, lead.ID)
	if err != nil {
		_ = p.queue.Fail(ctx, job.ID, fmt.Sprintf("count delivery attempts for lead %d: %v", lead.ID, err))
		return
	}

	maxAttempts := len(p.delays)
	if n >= maxAttempts {
		_ = p.store.MarkDeliveryExhausted(ctx, lead.ID, lead.Status)
		telemetry.DeliveryPermanentFailures.Inc()
		_ = p.queue.Complete(ctx, job.ID)
		return
	}

	// No in-process sleep here: a retry's wait is already spent by the queue
	// holding the job until next_run_at, via the delayed re-enqueue issued
	// below. Sleeping again here would double every inter-attempt gap.
	outcome := p.client.Deliver(ctx, lead.CustomerPayload)
	telemetry.DeliveryAttempts.Inc()
	attemptNo := n + 1

	result := store.AttemptResult{AttemptNo: attemptNo}
	var to string
	var lastErr string

	switch {
	case outcome.Success != nil:
		status := outcome.Success.Status
		body := outcome.Success.Body
		result.ResponseStatus = &status
		result.ResponseBody = &body
		result.Success = true
		to = models.StatusDelivered
		telemetry.DeliverySuccess.Inc()
	case outcome.Failure.Status != 0:
		status := outcome.Failure.Status
		result.ResponseStatus = &status
		result.ErrorMessage = &outcome.Failure.Message
		lastErr = outcome.Failure.Message
		to = p.classifyFailure(outcome.Failure, attemptNo, maxAttempts)
	default:
		result.ErrorMessage = &outcome.Failure.Message
		lastErr = outcome.Failure.Message
		to = p.classifyFailure(outcome.Failure, attemptNo, maxAttempts)
	}

	if err := p.store.RecordDeliveryOutcome(ctx, lead.ID, lead.Status, to, result); err != nil {
		_ = p.queue.Fail(ctx, job.ID, fmt.Sprintf("record delivery outcome for lead %d: %v", lead.ID, err))
		return
	}

	if to == models.StatusFailed {
		telemetry.DeliveryRetries.Inc()
		nextRun := time.Now().Add(p.delays[n])
		_ = p.queue.Retry(ctx, job.ID, job.Attempts+1, nextRun, lastErr)
		return
	}

	if to == models.StatusPermanentlyFailed {
		telemetry.DeliveryPermanentFailures.Inc()
	}
	_ = p.queue.Complete(ctx, job.ID)
}

func (p *Processor) classifyFailure(f *delivery.Failure, attemptNo, maxAttempts int) string {
	if !f.Retriable {
		return models.StatusPermanentlyFailed
	}
	if attemptNo >= maxAttempts {
		return models.StatusPermanentlyFailed
	}
	return models.StatusFailed
}

// SweepOrphans re-enqueues RECEIVED leads with no job row older than the
// configured grace period (resolves the §9 "ingest-time queue failure" open
// question).
func (p *Processor) SweepOrphans(ctx context.Context) error {
	orphans, err := p.store.FindOrphanLeads(ctx, p.cfg.SweepGrace, 100)
	if err != nil {
		return fmt.Errorf("find orphan leads: %w", err)
	}
	for _, lead := range orphans {
		job := models.Job{Type: models.ProcessLeadJobType, Payload: map[string]any{"lead_id": lead.ID}}
		if _, err := p.queue.Enqueue(ctx, job, time.Now()); err != nil {
			continue
		}
		telemetry.OrphansResweeped.Inc()
	}
	return nil
}

// RunSweeper runs SweepOrphans on cfg.SweepInterval until ctx is cancelled,
// also refreshing the queue depth gauge on the same tick.
func (p *Processor) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = p.SweepOrphans(ctx)
			p.reportQueueDepth(ctx)
			p.reclaimExpiredLeases(ctx)
		}
	}
}

// reclaimExpiredLeases reclaims jobs leased by a worker that crashed before
// completing, retrying, or failing them. Only transports that implement
// queue.ExpiredLeaseReclaimer need this (see that type's doc comment).
func (p *Processor) reclaimExpiredLeases(ctx context.Context) {
	reclaimer, ok := p.queue.(queue.ExpiredLeaseReclaimer)
	if !ok {
		return
	}
	if _, err := reclaimer.RequeueExpired(ctx, time.Now(), 100); err != nil {
		return
	}
}

// reportQueueDepth updates the queue depth gauge from the transport's
// pending-job count. Failures are not fatal to the sweeper loop.
func (p *Processor) reportQueueDepth(ctx context.Context) {
	depth, err := p.queue.Depth(ctx)
	if err != nil {
		return
	}
	telemetry.QueueDepthGauge.Set(float64(depth))
}
