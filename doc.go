// Package scriptgate assembles the remediation script pipeline: approval
// gating of AI tool calls, signed script packaging, per-device execution
// queues with two-phase cancellation and result streaming back to the chat
// transcript.
package scriptgate
