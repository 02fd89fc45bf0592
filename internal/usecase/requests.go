package usecase

import (
	"sort"
	"sync"
	"time"

	"BarPull/internal/domain/models"

	"github.com/google/uuid"
)

// RequestJournal tracks remote-fetch attempts in memory. It is derived
// operational state, not durable storage; the inspection API reads it.
type RequestJournal struct {
	mu       sync.Mutex
	requests map[string]*models.FetchRequest
}

func NewRequestJournal() *RequestJournal {
	return &RequestJournal{requests: make(map[string]*models.FetchRequest)}
}

// Open journals a new PENDING request and returns its id.
func (j *RequestJournal) Open(instrumentID, timeframeSpec string, start, end time.Time) string {
	req := &models.FetchRequest{
		RequestID:     uuid.NewString(),
		InstrumentID:  instrumentID,
		TimeframeSpec: timeframeSpec,
		Start:         start,
		End:           end,
		Status:        models.FetchPending,
		CreatedAt:     time.Now().UTC(),
	}
	j.mu.Lock()
	j.requests[req.RequestID] = req
	j.mu.Unlock()
	return req.RequestID
}

// Transition moves a journaled request through its state machine.
func (j *RequestJournal) Transition(requestID string, next models.FetchStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	req, ok := j.requests[requestID]
	if !ok {
		return nil
	}
	return req.Transition(next)
}

// RecordRetry journals one consumed retry attempt: FAILED -> PENDING ->
// IN_PROGRESS with the error that caused it.
func (j *RequestJournal) RecordRetry(requestID string, attempt int, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	req, ok := j.requests[requestID]
	if !ok {
		return
	}
	req.RetryCount = attempt - 1
	if cause != nil {
		req.Error = cause.Error()
	}
	if req.Status == models.FetchInProgress {
		if err := req.Transition(models.FetchFailed); err != nil {
			return
		}
		if err := req.Transition(models.FetchPending); err != nil {
			return
		}
		_ = req.Transition(models.FetchInProgress)
	}
}

// Fail marks the request FAILED with its final error.
func (j *RequestJournal) Fail(requestID string, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	req, ok := j.requests[requestID]
	if !ok {
		return
	}
	if cause != nil {
		req.Error = cause.Error()
	}
	_ = req.Transition(models.FetchFailed)
}

// Get returns a copy of one journaled request.
func (j *RequestJournal) Get(requestID string) (models.FetchRequest, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	req, ok := j.requests[requestID]
	if !ok {
		return models.FetchRequest{}, false
	}
	return *req, true
}

// List returns all journaled requests, newest first.
func (j *RequestJournal) List() []models.FetchRequest {
	j.mu.Lock()
	out := make([]models.FetchRequest, 0, len(j.requests))
	for _, req := range j.requests {
		out = append(out, *req)
	}
	j.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}
