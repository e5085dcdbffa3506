// Package harvest classifies work items against the document service and
// runs batches of them through a worker pool.
//
// Every item ends with an integer outcome: 0 rejected, 1 already
// processed, n >= 2 a freshly persisted sequence of n steps. The Reason
// next to the outcome tells why an item was rejected.
package harvest

import (
	"time"
)

// Outcome codes.
const (
	OutcomeRejected         = 0
	OutcomeAlreadyProcessed = 1
)

// Reason explains an outcome.
type Reason string

const (
	ReasonAccepted           Reason = "accepted"
	ReasonAlreadyProcessed   Reason = "already_processed"
	ReasonInvalidID          Reason = "invalid_id"
	ReasonInvalidLocator     Reason = "invalid_locator"
	ReasonTransportFailure   Reason = "transport_failure"
	ReasonUnsupportedFeature Reason = "unsupported_feature"
	ReasonParseFailure       Reason = "parse_failure"
	ReasonTrivialSequence    Reason = "trivial_sequence"
	ReasonPersistFailure     Reason = "persist_failure"
	ReasonPanic              Reason = "panic"
)

// WorkItem is one entry of a mapping file.
type WorkItem struct {
	ID      string
	Locator string
}

// Result is the classification of one work item.
type Result struct {
	ID       string
	Outcome  int
	Reason   Reason
	Err      error
	Duration time.Duration
}

// Rejected reports whether the item was rejected.
func (r Result) Rejected() bool {
	return r.Outcome == OutcomeRejected
}
