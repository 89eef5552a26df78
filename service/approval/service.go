package approval

import (
	"context"
	"errors"

	"github.com/scriptgate/scriptgate/service/messaging"
)

var (
	// ErrTimeout resolves the caller of a pending approval when no human
	// decision arrives in time. It is distinct from any persistence outcome:
	// a failed status update never masks the timeout.
	ErrTimeout = errors.New("approval: request timed out waiting for human decision")

	// ErrAlreadyDecided is returned when a decision races another decision
	// (or a timeout) and loses.
	ErrAlreadyDecided = errors.New("approval: request already decided")

	// ErrNotFound is returned when deciding an unknown request id.
	ErrNotFound = errors.New("approval: request not found")
)

// Service defines the approval engine interface.
//
// RequestApproval drives the whole per-invocation state machine: it evaluates
// policy, auto-decides or parks the request, and blocks until a decision,
// the timeout or ctx cancellation. Policy denials are a *Decision with
// Approved=false, never an error.
type Service interface {
	RequestApproval(ctx context.Context, request *Request) (*Decision, error)

	// ListPending returns requests still awaiting a decision.
	ListPending(ctx context.Context) ([]*Request, error)

	// Decide records a human decision for a pending request.
	Decide(ctx context.Context, id string, approved bool, reason string) (*Decision, error)

	// Decision returns the recorded decision for id, or nil when undecided.
	Decision(ctx context.Context, id string) (*Decision, error)

	// RefreshPolicies drops the cached per-customer policies so the next use
	// reloads them. Policies are otherwise immutable for a session.
	RefreshPolicies()

	// Queue exposes the broadcast channel consumed by connected approvers.
	Queue() messaging.Queue[Event]
}
