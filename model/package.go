package model

import (
	"encoding/json"
	"time"
)

// ISOTime marshals as ISO-8601 with millisecond precision, the timestamp
// format required by the datastore contract.
type ISOTime struct {
	time.Time
}

// NewISOTime wraps t.
func NewISOTime(t time.Time) *ISOTime { return &ISOTime{Time: t} }

// MarshalJSON implements json.Marshaler.
func (t ISOTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ISOTime) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ExecutionResult captures what the device reported back.
type ExecutionResult struct {
	ExitCode        int      `json:"exitCode"`
	Stdout          string   `json:"stdout,omitempty"`
	Stderr          string   `json:"stderr,omitempty"`
	ExecutionTimeMs int64    `json:"executionTime,omitempty"`
	CompletedAt     *ISOTime `json:"completedAt,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ScriptPackage is the unit of dispatch: a checksummed, optionally signed
// bundle of script and manifest. Immutable once created – only the status
// fields stored alongside it change.
type ScriptPackage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	DeviceID   string    `json:"device_id"`
	Script     string    `json:"script"` // base64-encoded
	Manifest   *Manifest `json:"manifest"`
	Checksum   string    `json:"checksum"`
	Signature  string    `json:"signature,omitempty"`
	RiskLevel  Risk      `json:"risk_level"`
	ApprovalID string    `json:"approval_id,omitempty"`
	CreatedAt  *ISOTime  `json:"created_at"`

	Status          Status           `json:"status"`
	ExecutedAt      *ISOTime         `json:"executed_at,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`

	CancellationRequestedAt *ISOTime `json:"cancellation_requested_at,omitempty"`
	CancellationConfirmedAt *ISOTime `json:"cancellation_confirmed_at,omitempty"`
	CancellationReason      string   `json:"cancellation_reason,omitempty"`
}
