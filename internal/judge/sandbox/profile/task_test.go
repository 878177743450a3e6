package profile

import (
	"testing"

	"chiko/internal/judge/sandbox/spec"
)

func TestForPhase(t *testing.T) {
	cases := []struct {
		phase Phase
		user  string
		role  string
		procs int64
	}{
		{phase: PhaseCompile, user: "root", role: "compiler", procs: 64},
		{phase: PhaseRunStdIO, user: "sandbox", role: "runner", procs: 1},
		{phase: PhaseRunFileIO, user: "sandbox", role: "runner", procs: 1},
		{phase: PhaseChecker, user: "sandbox", role: "runner", procs: 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.phase), func(t *testing.T) {
			p, err := ForPhase(tc.phase)
			if err != nil {
				t.Fatalf("ForPhase: %v", err)
			}
			if p.User != tc.user || p.Role != tc.role || p.Processes != tc.procs {
				t.Fatalf("unexpected profile %+v", p)
			}
		})
	}
	if _, err := ForPhase("interactor"); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}

func TestLimitsPinsProcessCap(t *testing.T) {
	p, _ := ForPhase(PhaseRunStdIO)
	got := p.Limits(spec.ResourceLimit{TimeMs: 1000, MemoryBytes: spec.MB, Processes: 64})
	if got.Processes != 1 || got.TimeMs != 1000 {
		t.Fatalf("unexpected limits %+v", got)
	}
}
