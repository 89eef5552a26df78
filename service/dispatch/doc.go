// Package dispatch owns the package lifecycle between approval and device
// execution: it persists packages, pushes them onto per-device priority
// queues, notifies devices over their command channel, tracks status
// transitions and drives two-phase cancellation.
package dispatch
