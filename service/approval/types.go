package approval

import (
	"time"

	"github.com/scriptgate/scriptgate/model"
)

// Event envelope published to connected approvers and audit consumers.
type Event struct {
	Topic   string            // see topic constants below
	Data    interface{}       // *Request | *Decision
	Headers map[string]string `json:"headers,omitempty"` // optional – tenant, correlation-id etc.
}

// Standard event topics.
const (
	TopicRequestCreated  = "request.created"
	TopicRequestExpired  = "request.expired"
	TopicDecisionCreated = "decision.created"
)

// Request represents a tool invocation awaiting an approval decision.
type Request struct {
	ID         string                 `json:"id"` // globally unique, primary key
	SessionID  string                 `json:"sessionId"`
	CustomerID string                 `json:"customerId"`
	ToolName   string                 `json:"toolName"`
	Input      map[string]interface{} `json:"input,omitempty"`
	RiskLevel  model.Risk             `json:"riskLevel,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	// CreatedAtISO duplicates CreatedAt as ISO-8601 – persisted records must
	// be human-auditable while dispatch code needs the fast comparison.
	CreatedAtISO string         `json:"createdAtISO"`
	TimeoutSec   int            `json:"timeoutSec,omitempty"` // overrides the engine default when > 0
	Meta         map[string]any `json:"meta,omitempty"`
}

// Decision represents an approval decision.
type Decision struct {
	ID        string    `json:"id"` // same as request.ID
	Approved  bool      `json:"approved"`
	Reason    string    `json:"reason,omitempty"`
	Auto      bool      `json:"auto,omitempty"` // decided by policy, not a human
	DecidedAt time.Time `json:"decidedAt"`
}

// AuditRecord is the append-only row persisted for every approval request and
// every decision. Records are never mutated or deleted.
type AuditRecord struct {
	ID           string                 `json:"id"`
	RequestID    string                 `json:"requestId"`
	SessionID    string                 `json:"sessionId"`
	CustomerID   string                 `json:"customerId"`
	ToolName     string                 `json:"toolName"`
	Input        map[string]interface{} `json:"input,omitempty"`
	Decision     string                 `json:"decision"` // requested | approved | denied | timeout
	Reason       string                 `json:"reason,omitempty"`
	RiskLevel    model.Risk             `json:"riskLevel,omitempty"`
	CreatedAtMs  int64                  `json:"createdAtMs"`
	CreatedAtISO string                 `json:"createdAtISO"`
}

// DenialRecord is the append-only row persisted whenever policy evaluation
// denies a tool outright.
type DenialRecord struct {
	ID           string                 `json:"id"`
	SessionID    string                 `json:"sessionId"`
	CustomerID   string                 `json:"customerId"`
	ToolName     string                 `json:"toolName"`
	Input        map[string]interface{} `json:"input,omitempty"`
	Reason       string                 `json:"reason"`
	RiskLevel    model.Risk             `json:"riskLevel,omitempty"`
	CreatedAtMs  int64                  `json:"createdAtMs"`
	CreatedAtISO string                 `json:"createdAtISO"`
}

// Audit decision values.
const (
	AuditRequested = "requested"
	AuditApproved  = "approved"
	AuditDenied    = "denied"
	AuditTimeout   = "timeout"
)
