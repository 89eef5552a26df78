package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		input    string
		expected Status
		hasError bool
	}{
		{input: "queued", expected: StatusQueued},
		{input: "executing", expected: StatusExecuting},
		{input: "completed", expected: StatusCompleted},
		{input: "failed", expected: StatusFailed},
		{input: "cancelled", expected: StatusCancelled},
		{input: "cancellation_requested", expected: StatusCancellationRequested},
		{input: "pending_execution", expected: StatusQueued},
		{input: "running", hasError: true},
		{input: "", hasError: true},
		{input: "QUEUED", hasError: true},
	}
	for _, tc := range testCases {
		actual, err := ParseStatus(tc.input)
		if tc.hasError {
			assert.Error(t, err, tc.input)
			continue
		}
		assert.NoError(t, err, tc.input)
		assert.Equal(t, tc.expected, actual, tc.input)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusExecuting.IsTerminal())
	assert.False(t, StatusCancellationRequested.IsTerminal())
}
