package model

import "fmt"

// Status is the lifecycle state of a script package. The persisted status
// record is the single source of truth; in-memory caches are advisory.
type Status string

const (
	StatusQueued                Status = "queued"
	StatusExecuting             Status = "executing"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
	StatusCancellationRequested Status = "cancellation_requested"
)

// ParseStatus maps a persisted string onto a Status. Unrecognised values are
// an error, never a silent default – a corrupted status row must surface, not
// masquerade as queued. The legacy "pending_execution" spelling maps to
// StatusQueued.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusQueued, StatusExecuting, StatusCompleted,
		StatusFailed, StatusCancelled, StatusCancellationRequested:
		return Status(value), nil
	}
	if value == "pending_execution" {
		return StatusQueued, nil
	}
	return "", fmt.Errorf("unrecognised execution status %q", value)
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
