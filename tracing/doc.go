// Package tracing is a thin wrapper around OpenTelemetry so the rest of the
// code base can emit spans through a small stable helper surface (StartSpan,
// EndSpan) without importing the upstream packages directly.
package tracing
