// Package observer defines metrics hooks for sandbox execution.
package observer

import (
	"context"

	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	// ObservePhase is called once per invocation that produced an outcome.
	ObservePhase(ctx context.Context, phase profile.Phase, status result.Status, timeMs float64, memoryBytes int64)
	// ObserveFailure is called when an invocation ends with an error instead.
	ObserveFailure(ctx context.Context, phase profile.Phase, code string)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObservePhase(context.Context, profile.Phase, result.Status, float64, int64) {
}

func (NoopMetricsRecorder) ObserveFailure(context.Context, profile.Phase, string) {}
