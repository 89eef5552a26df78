package dispatch

// Device command channel message types.
const (
	CommandExecuteScript   = "EXECUTE_SCRIPT"
	CommandCancelExecution = "CANCEL_EXECUTION"
)

// Command is the message published to a device's command channel.
type Command struct {
	Type        string `json:"type"`
	PackageID   string `json:"packageId"`
	RequestedAt string `json:"requestedAt,omitempty"` // ISO-8601, cancellation only
}

// QueueItem is the entry held in a device's ordered queue. The queue carries
// references only; the package row in the datastore stays authoritative.
type QueueItem struct {
	PackageID  string `json:"packageId"`
	Priority   string `json:"priority"`
	EnqueuedAt string `json:"enqueuedAt"` // ISO-8601
}
