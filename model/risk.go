package model

// Risk classifies a manifest for operator visibility. It is stored alongside
// the package and is independent of queue priority.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Priority controls queue position only: high is pushed to the head of the
// device queue, everything else to the tail.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// riskMediumTimeoutSec marks long-running scripts as at least medium risk.
const riskMediumTimeoutSec = 300

// dangerousCapabilities are capabilities whose presence makes a manifest high
// risk regardless of anything else it declares.
var dangerousCapabilities = map[string]bool{
	"root":            true,
	"kernel":          true,
	"disk_write":      true,
	"network_admin":   true,
	"service_control": true,
}

// ClassifyRisk derives the operator-facing risk level from the manifest.
func ClassifyRisk(m *Manifest) Risk {
	for _, capability := range m.RequiredCapabilities {
		if dangerousCapabilities[capability] {
			return RiskHigh
		}
	}
	if m.RollbackScript != "" || m.TimeoutSec > riskMediumTimeoutSec {
		return RiskMedium
	}
	return RiskLow
}

// DerivePriority derives dispatch priority from the manifest. Short scripts
// jump the queue; long, capability-heavy or rollback-carrying scripts yield.
func DerivePriority(m *Manifest) Priority {
	if m.TimeoutSec > 0 && m.TimeoutSec <= 10 {
		return PriorityHigh
	}
	if m.TimeoutSec > 300 || m.RollbackScript != "" || len(m.RequiredCapabilities) > 0 {
		return PriorityLow
	}
	return PriorityMedium
}
