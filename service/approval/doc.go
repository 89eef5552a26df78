// Package approval implements the human-in-the-loop gate in front of script
// execution. Every tool invocation is evaluated against the customer's
// policy and either auto-decided or parked as a pending approval until a
// human decision or a timeout resolves it. Every request and every denial is
// persisted before the caller observes the outcome.
package approval
