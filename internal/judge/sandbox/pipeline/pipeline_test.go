package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/engine/fake"
	"chiko/internal/judge/sandbox/identity"
	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/result"
	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

type fixture struct {
	dir      string
	workRoot string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{dir: dir, workRoot: filepath.Join(dir, "sandbox_tmp")}
}

func (f fixture) pipeline(t *testing.T, eng *fake.Engine, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(Config{WorkRoot: f.workRoot}, eng, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func (f fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// assertNoWorkspaces fails if any task directory survived.
func (f fixture) assertNoWorkspaces(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no workspaces, found %d (first %s)", len(entries), entries[0].Name())
	}
}

func writeTo(path, content string) error {
	return os.WriteFile(path, []byte(content), 0666)
}

func TestRunStdIO(t *testing.T) {
	f := newFixture(t)
	eng := fake.New(fake.Step{
		Outcome: result.RawOutcome{Status: result.StatusSucceeded, TimeNs: 1500000000, MemoryBytes: 2 << 20},
		Effect: func(s spec.InvocationSpec) error {
			data, err := os.ReadFile(s.Stdin)
			if err != nil {
				return err
			}
			if string(data) != "123 456" {
				return errors.New("unexpected stdin: " + string(data))
			}
			return writeTo(s.Stdout, "579\n")
		},
	})
	p := f.pipeline(t, eng)

	res, err := p.RunStdIO(context.Background(), sandbox.RunRequest{
		ExecutablePath: f.write(t, "a.out", "bin"),
		InputPath:      f.write(t, "input.txt", "123 456"),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Result.Status != result.StatusSucceeded || res.Output != "579\n" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Result.TimeMs != 1500 {
		t.Fatalf("expected 1500ms, got %v", res.Result.TimeMs)
	}
	f.assertNoWorkspaces(t)
}

func TestRunFileIO(t *testing.T) {
	f := newFixture(t)
	eng := fake.New(fake.Step{
		Effect: func(s spec.InvocationSpec) error {
			in, err := os.ReadFile(s.HostPath("in.dat"))
			if err != nil {
				return err
			}
			return writeTo(s.HostPath("out.dat"), string(in)+"!")
		},
	})
	p := f.pipeline(t, eng)

	res, err := p.RunFileIO(context.Background(), sandbox.FileRunRequest{
		RunRequest: sandbox.RunRequest{
			ExecutablePath: f.write(t, "a.out", "bin"),
			InputPath:      f.write(t, "case1.in", "data"),
		},
		InputFileName:  "in.dat",
		OutputFileName: "out.dat",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "data!" {
		t.Fatalf("expected data!, got %q", res.Output)
	}
	got := eng.Specs()[0]
	if got.Stdin != os.DevNull || got.Stdout != os.DevNull {
		t.Fatalf("file mode must not redirect stdin/stdout: %+v", got)
	}
	f.assertNoWorkspaces(t)
}

func TestRunFileIOMissingOutputDegrades(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t, fake.New())

	res, err := p.RunFileIO(context.Background(), sandbox.FileRunRequest{
		RunRequest: sandbox.RunRequest{
			ExecutablePath: f.write(t, "a.out", "bin"),
			InputPath:      f.write(t, "case1.in", "data"),
		},
		InputFileName:  "input.txt",
		OutputFileName: "output.txt",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "" || res.Result.Status != result.StatusSucceeded {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCompile(t *testing.T) {
	f := newFixture(t)
	eng := fake.New(fake.Step{
		Effect: func(s spec.InvocationSpec) error {
			return writeTo(s.HostPath("/work/program"), "compiled")
		},
	})
	p := f.pipeline(t, eng)
	out := filepath.Join(f.dir, "bin", "main")

	res, err := p.Compile(context.Background(), sandbox.CompileRequest{
		SourcePath: f.write(t, "main.cpp", "int main(){}"),
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Fatalf("output is not executable: %v", info.Mode())
	}

	got := eng.Specs()[0]
	if got.User != profile.PrivilegedUser || got.Limits.Processes != 64 {
		t.Fatalf("unexpected compile spec: user=%s procs=%d", got.User, got.Limits.Processes)
	}
	if got.Credential == nil || got.Credential.UID != 0 {
		t.Fatalf("expected root credential, got %+v", got.Credential)
	}
	if got.Args[1] != "main.cpp" {
		t.Fatalf("unexpected compiler argv: %v", got.Args)
	}
	f.assertNoWorkspaces(t)
}

func TestCompileFailureKeepsDiagnostics(t *testing.T) {
	f := newFixture(t)
	eng := fake.New(fake.Step{
		Outcome: result.RawOutcome{Status: result.StatusSucceeded, ExitCode: 1},
		Effect: func(s spec.InvocationSpec) error {
			return writeTo(s.Stderr, "main.cpp:1:1: error: expected unqualified-id")
		},
	})
	p := f.pipeline(t, eng)
	out := filepath.Join(f.dir, "main")

	res, err := p.Compile(context.Background(), sandbox.CompileRequest{
		SourcePath: f.write(t, "main.cpp", "int main("),
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.OK() || res.ExitCode != 1 || res.Error == "" {
		t.Fatalf("expected failed compile with diagnostics, got %+v", res)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("failed compile must not produce output, stat err=%v", err)
	}
	f.assertNoWorkspaces(t)
}

func TestRunChecker(t *testing.T) {
	tests := []struct {
		name    string
		exit    int
		verdict result.Verdict
	}{
		{"accepted", 0, result.VerdictAccepted},
		{"wrong answer", 1, result.VerdictWrongAnswer},
		{"presentation", 2, result.VerdictPresentationError},
		{"fail", 3, result.VerdictCheckerFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			eng := fake.New(fake.Step{
				Outcome: result.RawOutcome{Status: result.StatusSucceeded, ExitCode: tt.exit},
				Effect: func(s spec.InvocationSpec) error {
					return writeTo(s.Stderr, "  verdict message\n")
				},
			})
			p := f.pipeline(t, eng)
			res, err := p.RunChecker(context.Background(), sandbox.CheckerRequest{
				CheckerPath: f.write(t, "chk", "bin"),
				InputPath:   f.write(t, "in", "1"),
				OutputPath:  f.write(t, "out", "2"),
				AnswerPath:  f.write(t, "ans", "2"),
			})
			if err != nil {
				t.Fatalf("checker: %v", err)
			}
			if res.Verdict != tt.verdict {
				t.Fatalf("expected %s, got %s", tt.verdict, res.Verdict)
			}
			if res.Message != "verdict message" {
				t.Fatalf("unexpected message %q", res.Message)
			}
			if eng.Specs()[0].User != profile.UnprivilegedUser {
				t.Fatalf("checker must run unprivileged")
			}
			f.assertNoWorkspaces(t)
		})
	}
}

func TestLimitOverrides(t *testing.T) {
	f := newFixture(t)
	eng := fake.New()
	p := f.pipeline(t, eng)
	exe := f.write(t, "a.out", "bin")
	in := f.write(t, "in", "")

	if _, err := p.RunStdIO(context.Background(), sandbox.RunRequest{ExecutablePath: exe, InputPath: in}); err != nil {
		t.Fatalf("run default: %v", err)
	}
	req := sandbox.RunRequest{
		ExecutablePath: exe,
		InputPath:      in,
		Limits:         sandbox.Limits{TimeLimitMs: 2000, MemoryLimitMB: 64},
	}
	if _, err := p.RunStdIO(context.Background(), req); err != nil {
		t.Fatalf("run override: %v", err)
	}

	specs := eng.Specs()
	want := []spec.ResourceLimit{
		{TimeMs: 1000, MemoryBytes: 256 * spec.MB, Processes: 1},
		{TimeMs: 2000, MemoryBytes: 64 * spec.MB, Processes: 1},
	}
	for i, w := range want {
		if specs[i].Limits != w {
			t.Fatalf("spec %d: expected %+v, got %+v", i, w, specs[i].Limits)
		}
	}
	if specs[0].Credential == nil || specs[0].Credential.UID != 1000 {
		t.Fatalf("expected sandbox credential, got %+v", specs[0].Credential)
	}
}

func TestNegativeLimitOverridesRejected(t *testing.T) {
	f := newFixture(t)
	eng := fake.New()
	p := f.pipeline(t, eng)
	exe := f.write(t, "a.out", "bin")
	in := f.write(t, "in", "")

	cases := []struct {
		name   string
		limits sandbox.Limits
		field  string
	}{
		{"time", sandbox.Limits{TimeLimitMs: -5}, "time_limit_ms"},
		{"memory", sandbox.Limits{MemoryLimitMB: -1}, "memory_limit_mb"},
		{"both", sandbox.Limits{TimeLimitMs: -5, MemoryLimitMB: -1}, "time_limit_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.RunStdIO(context.Background(), sandbox.RunRequest{
				ExecutablePath: exe,
				InputPath:      in,
				Limits:         tc.limits,
			})
			if !appErr.Is(err, appErr.ValidationFailed) {
				t.Fatalf("expected ValidationFailed, got %v", err)
			}
			if got := appErr.GetError(err).Details["field"]; got != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, got)
			}
		})
	}

	if _, err := p.RunChecker(context.Background(), sandbox.CheckerRequest{
		CheckerPath: exe,
		InputPath:   in,
		OutputPath:  in,
		AnswerPath:  in,
		Limits:      sandbox.Limits{TimeLimitMs: -1},
	}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("checker: expected ValidationFailed, got %v", err)
	}
	if _, err := p.Compile(context.Background(), sandbox.CompileRequest{
		SourcePath: f.write(t, "main.cpp", "int main(){}"),
		OutputPath: filepath.Join(f.dir, "out", "prog"),
		Limits:     sandbox.Limits{MemoryLimitMB: -1},
	}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("compile: expected ValidationFailed, got %v", err)
	}

	if n := len(eng.Specs()); n != 0 {
		t.Fatalf("engine must not be started, got %d specs", n)
	}
	f.assertNoWorkspaces(t)
}

func TestCleanupOnEveryPath(t *testing.T) {
	tests := []struct {
		name    string
		step    fake.Step
		checker bool
		missing bool
		code    appErr.ErrorCode
	}{
		{name: "success", code: appErr.Success},
		{name: "verdict is not an error", step: fake.Step{Outcome: result.RawOutcome{Status: result.StatusTimedOut, ExitCode: 137}}, code: appErr.Success},
		{name: "staging", missing: true, code: appErr.StagingFailed},
		{name: "rejected", step: fake.Step{StartErr: appErr.New(appErr.InvocationRejected)}, code: appErr.InvocationRejected},
		{name: "start crash", step: fake.Step{StartErr: errors.New("boom")}, code: appErr.CollaboratorFailure},
		{name: "wait crash", step: fake.Step{WaitErr: errors.New("boom")}, code: appErr.CollaboratorFailure},
		{
			name:    "checker capture",
			checker: true,
			step: fake.Step{Effect: func(s spec.InvocationSpec) error {
				return os.Remove(s.Stdout)
			}},
			code: appErr.CaptureFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.pipeline(t, fake.New(tt.step))
			exe := f.write(t, "a.out", "bin")
			in := f.write(t, "in", "1")
			if tt.missing {
				in = filepath.Join(f.dir, "absent")
			}

			var err error
			if tt.checker {
				_, err = p.RunChecker(context.Background(), sandbox.CheckerRequest{
					CheckerPath: exe, InputPath: in, OutputPath: in, AnswerPath: in,
				})
			} else {
				_, err = p.RunStdIO(context.Background(), sandbox.RunRequest{ExecutablePath: exe, InputPath: in})
			}
			if got := appErr.GetCode(err); got != tt.code {
				t.Fatalf("expected code %d, got %d (%v)", tt.code, got, err)
			}
			f.assertNoWorkspaces(t)
		})
	}
}

func TestWorkspaceCollision(t *testing.T) {
	f := newFixture(t)
	eng := fake.New()
	p := f.pipeline(t, eng, WithIDGenerator(func() (identity.TaskID, error) {
		return "fixed", nil
	}))
	taken := filepath.Join(f.workRoot, "fixed")
	if err := os.MkdirAll(taken, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := p.RunStdIO(context.Background(), sandbox.RunRequest{
		ExecutablePath: f.write(t, "a.out", "bin"),
		InputPath:      f.write(t, "in", ""),
	})
	if !appErr.Is(err, appErr.WorkspaceCreationFailed) {
		t.Fatalf("expected workspace creation error, got %v", err)
	}
	if _, err := os.Stat(taken); err != nil {
		t.Fatalf("foreign directory must survive: %v", err)
	}
	if len(eng.Specs()) != 0 {
		t.Fatalf("nothing may be invoked after a collision")
	}
}

type transitionRecorder struct {
	mu     sync.Mutex
	states []sandbox.State
}

func (r *transitionRecorder) ReportTransition(_ context.Context, t sandbox.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		r.states = append(r.states, t.From)
	}
	r.states = append(r.states, t.To)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		missing bool
		want    []sandbox.State
	}{
		{
			name: "success",
			want: []sandbox.State{
				sandbox.StateIdle, sandbox.StateStaging, sandbox.StateInvoking,
				sandbox.StateNormalizing, sandbox.StateCleanup, sandbox.StateDone,
			},
		},
		{
			name:    "staging failure",
			missing: true,
			want: []sandbox.State{
				sandbox.StateIdle, sandbox.StateStaging, sandbox.StateFailed, sandbox.StateCleanup,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := &transitionRecorder{}
			p := f.pipeline(t, fake.New(), WithStateReporter(rec))
			in := f.write(t, "in", "")
			if tt.missing {
				in = filepath.Join(f.dir, "absent")
			}
			_, _ = p.RunStdIO(context.Background(), sandbox.RunRequest{
				ExecutablePath: f.write(t, "a.out", "bin"),
				InputPath:      in,
			})
			if len(rec.states) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, rec.states)
			}
			for i := range tt.want {
				if rec.states[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, rec.states)
				}
			}
		})
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	phases   map[profile.Phase]int
	failures map[string]int
}

func (r *countingRecorder) ObservePhase(_ context.Context, phase profile.Phase, _ result.Status, _ float64, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases[phase]++
}

func (r *countingRecorder) ObserveFailure(_ context.Context, _ profile.Phase, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[code]++
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	rec := &countingRecorder{phases: map[profile.Phase]int{}, failures: map[string]int{}}
	p := f.pipeline(t, fake.New(), WithMetrics(rec))
	exe := f.write(t, "a.out", "bin")

	if _, err := p.RunStdIO(context.Background(), sandbox.RunRequest{ExecutablePath: exe, InputPath: exe}); err != nil {
		t.Fatalf("run: %v", err)
	}
	_, _ = p.RunStdIO(context.Background(), sandbox.RunRequest{ExecutablePath: exe, InputPath: filepath.Join(f.dir, "absent")})

	if rec.phases[profile.PhaseRunStdIO] != 1 {
		t.Fatalf("expected one observed run, got %v", rec.phases)
	}
	if rec.failures["13301"] != 1 {
		t.Fatalf("expected one staging failure, got %v", rec.failures)
	}
}

func TestConcurrentInvocationsDoNotCollide(t *testing.T) {
	f := newFixture(t)
	eng := fake.New()
	p := f.pipeline(t, eng)
	exe := f.write(t, "a.out", "bin")
	in := f.write(t, "in", "")

	const n = 200
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.RunStdIO(context.Background(), sandbox.RunRequest{ExecutablePath: exe, InputPath: in}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("run: %v", err)
	}

	seen := map[string]bool{}
	for _, s := range eng.Specs() {
		if seen[s.Mounts[0].Source] {
			t.Fatalf("workspace reused: %s", s.Mounts[0].Source)
		}
		seen[s.Mounts[0].Source] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d workspaces, got %d", n, len(seen))
	}
	f.assertNoWorkspaces(t)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}, nil); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error for nil engine, got %v", err)
	}
	p, err := New(Config{}, fake.New())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := p.Config()
	if cfg.RootFS != DefaultRootFS || cfg.CheckerLimits != cfg.RunLimits {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
