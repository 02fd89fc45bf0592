package models

import (
	"fmt"
	"time"
)

// FetchStatus is the lifecycle state of one remote-fetch attempt.
type FetchStatus string

const (
	FetchPending    FetchStatus = "PENDING"
	FetchInProgress FetchStatus = "IN_PROGRESS"
	FetchCompleted  FetchStatus = "COMPLETED"
	FetchFailed     FetchStatus = "FAILED"
)

// FetchRequest journals one remote-fetch attempt. Transitions:
// PENDING -> IN_PROGRESS -> COMPLETED, or IN_PROGRESS -> FAILED, with
// FAILED -> PENDING on retry while RetryCount < max. COMPLETED and FAILED
// (retries exhausted) are terminal.
type FetchRequest struct {
	RequestID     string      `json:"request_id"`
	InstrumentID  string      `json:"instrument_id"`
	TimeframeSpec string      `json:"timeframe_spec"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	Status        FetchStatus `json:"status"`
	RetryCount    int         `json:"retry_count"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   time.Time   `json:"completed_at,omitempty"`
}

var fetchTransitions = map[FetchStatus][]FetchStatus{
	FetchPending:    {FetchInProgress},
	FetchInProgress: {FetchCompleted, FetchFailed},
	FetchFailed:     {FetchPending},
}

// Transition moves the request to next, rejecting transitions the state
// machine does not allow.
func (r *FetchRequest) Transition(next FetchStatus) error {
	for _, allowed := range fetchTransitions[r.Status] {
		if allowed == next {
			if next == FetchCompleted || next == FetchFailed {
				r.CompletedAt = time.Now().UTC()
			}
			r.Status = next
			return nil
		}
	}
	return fmt.Errorf("fetch request %s: illegal transition %s -> %s", r.RequestID, r.Status, next)
}
