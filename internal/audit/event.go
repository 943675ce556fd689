package audit

import "time"

// Kind classifies an access event.
type Kind string

// Event kinds.
const (
	KindDecision Kind = "decision"
	KindIssue    Kind = "issue"
	KindReturn   Kind = "return"
)

// Outcome is the result recorded for an event.
type Outcome string

// Event outcomes.
const (
	OutcomeGranted  Outcome = "granted"
	OutcomeDenied   Outcome = "denied"
	OutcomeIssued   Outcome = "issued"
	OutcomeReturned Outcome = "returned"
	OutcomeRejected Outcome = "rejected"
	OutcomeError    Outcome = "error"
)

// Event is a single access history entry.
type Event struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Serial       string         `json:"serial"`
	CredentialID string         `json:"credential_id,omitempty"`
	Subject      string         `json:"subject,omitempty"` // requested resources or key
	Outcome      Outcome        `json:"outcome"`
	Code         string         `json:"code,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filter controls which events to return.
type Filter struct {
	Kind    Kind    // optional
	Serial  string  // optional, exact match
	Outcome Outcome // optional
	Limit   int     // default 50, max 200
	Offset  int
}

// ListResult contains one page of events.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
