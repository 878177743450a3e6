package observer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	ctx := context.Background()

	rec.ObservePhase(ctx, profile.PhaseRunStdIO, result.StatusSucceeded, 12.5, 4<<20)
	rec.ObservePhase(ctx, profile.PhaseRunStdIO, result.StatusSucceeded, 20, 8<<20)
	rec.ObservePhase(ctx, profile.PhaseRunStdIO, result.StatusTimedOut, 1000, 8<<20)
	rec.ObserveFailure(ctx, profile.PhaseCompile, "13301")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				counts[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				counts[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	want := map[string]float64{
		"sandbox_invocations_total":         3,
		"sandbox_invocation_failures_total": 1,
		"sandbox_execution_time_ms":         3,
		"sandbox_memory_peak_bytes":         3,
	}
	for name, n := range want {
		if counts[name] != n {
			t.Fatalf("%s: expected %v, got %v", name, n, counts[name])
		}
	}
}

func TestNoopRecorder(t *testing.T) {
	var rec MetricsRecorder = NoopMetricsRecorder{}
	rec.ObservePhase(context.Background(), profile.PhaseCompile, result.StatusSucceeded, 1, 1)
	rec.ObserveFailure(context.Background(), profile.PhaseCompile, "x")
}
