package models

import (
	"fmt"
	"time"
)

// Lead status alphabet. Terminal states are Rejected, Delivered, and
// PermanentlyFailed; every other state can still transition.
const (
	StatusReceived          = "RECEIVED"
	StatusRejected          = "REJECTED"
	StatusReady             = "READY"
	StatusDelivered         = "DELIVERED"
	StatusFailed            = "FAILED"
	StatusPermanentlyFailed = "PERMANENTLY_FAILED"
)

// transitions enumerates every permitted lead status change. Anything not
// listed here is forbidden.
//
// RECEIVED -> PERMANENTLY_FAILED is not in the §3 state table, which only
// names RECEIVED -> REJECTED|READY, but §4.H's transformation stage requires
// exactly this move when mapping fails outright (a required attribute is
// absent or invalid): the lead never reaches READY in that case, so there is
// no other legal path to a terminal state. Allowed here as the resolution of
// that tension.
var transitions = map[string]map[string]bool{
	StatusReceived: {
		StatusRejected:          true,
		StatusReady:             true,
		StatusPermanentlyFailed: true,
	},
	StatusReady: {
		StatusDelivered:         true,
		StatusFailed:            true,
		StatusPermanentlyFailed: true,
	},
	StatusFailed: {
		StatusDelivered:         true,
		StatusFailed:            true,
		StatusPermanentlyFailed: true,
	},
}

// Transition reports whether moving a lead from `from` to `to` is allowed.
// It returns an error describing the illegal move so callers fail loudly
// instead of silently corrupting the audit trail. FAILED -> FAILED is the
// one legal self-transition: a lead can fail a retriable attempt, stay in
// FAILED, and fail again on its next attempt.
func Transition(from, to string) error {
	if from == to && to != StatusFailed {
		return fmt.Errorf("lead status: %q is not a self-transition", from)
	}
	allowed, ok := transitions[from]
	if !ok || !allowed[to] {
		return fmt.Errorf("lead status: illegal transition %s -> %s", from, to)
	}
	return nil
}

// Lead is an inbound record describing a prospective customer, tracked
// through validation, transformation, and delivery.
type Lead struct {
	ID               int64          `json:"id"`
	ReceivedAt       time.Time      `json:"received_at"`
	RawPayload       map[string]any `json:"raw_payload"`
	SourceHeaders    map[string]string `json:"source_headers,omitempty"`
	Status           string         `json:"status"`
	RejectionReason  *string        `json:"rejection_reason,omitempty"`
	NormalizedPayload map[string]any `json:"normalized_payload,omitempty"`
	CustomerPayload  map[string]any `json:"customer_payload,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DeliveryAttempt records one audited HTTP call to the downstream customer
// API for a given lead.
type DeliveryAttempt struct {
	ID             int64     `json:"id"`
	LeadID         int64     `json:"lead_id"`
	AttemptNo      int       `json:"attempt_no"`
	RequestedAt    time.Time `json:"requested_at"`
	ResponseStatus *int      `json:"response_status,omitempty"`
	ResponseBody   *string   `json:"response_body,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	Success        bool      `json:"success"`
	CreatedAt      time.Time `json:"created_at"`
}
