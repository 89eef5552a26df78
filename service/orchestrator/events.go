package orchestrator

import "github.com/scriptgate/scriptgate/model"

// ExecutionQueued is emitted after a package was successfully enqueued.
type ExecutionQueued struct {
	Package  *model.ScriptPackage `json:"package"`
	Priority model.Priority       `json:"priority"`
}

// ExecutionCompleted is emitted when a result report lands, regardless of
// exit code.
type ExecutionCompleted struct {
	Package *model.ScriptPackage `json:"package"`
}
