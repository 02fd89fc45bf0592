package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingRequest() *FetchRequest {
	return &FetchRequest{
		RequestID:     "req-1",
		InstrumentID:  "AAPL.XNAS",
		TimeframeSpec: "1-MINUTE-LAST",
		Start:         time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 2, 10, 30, 0, 0, time.UTC),
		Status:        FetchPending,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestFetchRequestHappyPath(t *testing.T) {
	req := newPendingRequest()
	require.NoError(t, req.Transition(FetchInProgress))
	require.NoError(t, req.Transition(FetchCompleted))
	assert.Equal(t, FetchCompleted, req.Status)
}

func TestFetchRequestRetryLoop(t *testing.T) {
	req := newPendingRequest()
	require.NoError(t, req.Transition(FetchInProgress))
	require.NoError(t, req.Transition(FetchFailed))
	// A retry re-enters the queue.
	require.NoError(t, req.Transition(FetchPending))
	require.NoError(t, req.Transition(FetchInProgress))
	require.NoError(t, req.Transition(FetchCompleted))
}

func TestFetchRequestRejectsIllegalTransitions(t *testing.T) {
	req := newPendingRequest()
	assert.Error(t, req.Transition(FetchCompleted), "pending cannot complete without running")

	require.NoError(t, req.Transition(FetchInProgress))
	require.NoError(t, req.Transition(FetchCompleted))
	assert.Error(t, req.Transition(FetchPending), "completed is terminal")
	assert.Error(t, req.Transition(FetchFailed), "completed is terminal")
}
