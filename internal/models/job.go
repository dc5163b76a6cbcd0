package models

import "time"

// Job lifecycle states persisted by the queue transport.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// ProcessLeadJobType is the single job type driven by the processor
// pipeline (§4.H). The queue is generic over job type, but the gateway
// core only ever schedules this one.
const ProcessLeadJobType = "process_lead"

// Job is a unit of work dispatched by the queue to a worker. It references
// a Lead by id but is a lifecycle peer, not an owned child: completing or
// failing a job never deletes its lead.
type Job struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	CreatedAt   time.Time      `json:"created_at"`
	NextRunAt   time.Time      `json:"next_run_at"`
	Attempts    int            `json:"attempts"`
	State       string         `json:"state"`
	Error       *string        `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
}

// LeadID extracts the lead id carried in a process_lead job's payload.
func (j Job) LeadID() (int64, bool) {
	v, ok := j.Payload["lead_id"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
