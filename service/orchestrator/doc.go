// Package orchestrator sits between the AI tool layer and the dispatch
// pipeline. It normalises loosely typed tool output into script packages,
// reports execution outcomes back as chat messages and streams status
// transitions to interested callers.
package orchestrator
