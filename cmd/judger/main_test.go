//go:build unix

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"chiko/internal/judge/sandbox/result"
	appErr "chiko/pkg/errors"
)

type cliFixture struct {
	dir    string
	config string
}

func newCLIFixture(t *testing.T) cliFixture {
	t.Helper()
	dir := t.TempDir()
	rootfs := filepath.Join(dir, "rootfs")
	if err := os.MkdirAll(filepath.Join(rootfs, "etc"), 0755); err != nil {
		t.Fatalf("mkdir rootfs: %v", err)
	}
	passwd := "root:x:0:0:root:/root:/bin/sh\nsandbox:x:1000:1000::/home/sandbox:/bin/sh\n"
	if err := os.WriteFile(filepath.Join(rootfs, "etc", "passwd"), []byte(passwd), 0644); err != nil {
		t.Fatalf("write passwd: %v", err)
	}
	config := filepath.Join(dir, "judger.yaml")
	content := fmt.Sprintf(`
logger:
  level: error
sandbox:
  driver: host
pipeline:
  workRoot: %s
  rootfs: %s
metrics:
  textfile: %s
`, filepath.Join(dir, "work"), rootfs, filepath.Join(dir, "judger.prom"))
	if err := os.WriteFile(config, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cliFixture{dir: dir, config: config}
}

func (f cliFixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (f cliFixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	a := &app{out: out}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config", f.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	f := newCLIFixture(t)
	exe := f.write(t, "add.sh", "#!/bin/sh\nread a b\necho $((a + b))\n")
	input := f.write(t, "input.txt", "123 456\n")

	out, err := f.execute(t, "run", exe, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res result.RunResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Result.Status != result.StatusSucceeded || strings.TrimSpace(res.Output) != "579" {
		t.Fatalf("unexpected result: %+v", res)
	}

	metrics, err := os.ReadFile(filepath.Join(f.dir, "judger.prom"))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(metrics), "sandbox_invocations_total") {
		t.Fatalf("metrics textfile lacks invocation counter")
	}
}

func TestRunCommandFileIO(t *testing.T) {
	f := newCLIFixture(t)
	exe := f.write(t, "add.sh", "#!/bin/sh\nread a b < in.txt\necho $((a + b)) > out.txt\n")
	input := f.write(t, "case.in", "1 2\n")

	out, err := f.execute(t, "run", "--file-io", "--input-name", "in.txt", "--output-name", "out.txt", exe, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var res result.RunResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if strings.TrimSpace(res.Output) != "3" {
		t.Fatalf("expected 3, got %q", res.Output)
	}
}

func TestRunCommandMissingInput(t *testing.T) {
	f := newCLIFixture(t)
	exe := f.write(t, "add.sh", "#!/bin/sh\n")

	_, err := f.execute(t, "run", exe, filepath.Join(f.dir, "absent"))
	if !appErr.Is(err, appErr.StagingFailed) {
		t.Fatalf("expected staging error, got %v", err)
	}
	if got := appErr.GetCode(err).ExitStatus(); got != 1 {
		t.Fatalf("expected exit status 1, got %d", got)
	}
}

func TestBatchCommand(t *testing.T) {
	f := newCLIFixture(t)
	exe := f.write(t, "add.sh", "#!/bin/sh\nread a b\necho $((a + b))\n")
	in1 := f.write(t, "1.in", "1 1\n")
	in2 := f.write(t, "2.in", "2 2\n")

	out, err := f.execute(t, "batch", "--concurrency", "2", exe, in1, in2)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var entries []struct {
		Name   string           `json:"name"`
		Result result.RunResult `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(entries) != 2 || strings.TrimSpace(entries[0].Result.Output) != "2" || strings.TrimSpace(entries[1].Result.Output) != "4" {
		t.Fatalf("unexpected batch output: %+v", entries)
	}
}

func TestUnknownDriverFlag(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.execute(t, "--driver", "vm", "run", "a", "b")
	if got := appErr.GetCode(err).ExitStatus(); got != 2 {
		t.Fatalf("expected exit status 2, got %d (%v)", got, err)
	}
}

func TestRunCommandRejectsNegativeLimit(t *testing.T) {
	f := newCLIFixture(t)
	exe := f.write(t, "add.sh", "#!/bin/sh\n")
	input := f.write(t, "input.txt", "1 2\n")

	_, err := f.execute(t, "run", "--time-limit=-5", exe, input)
	if !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := appErr.GetCode(err).ExitStatus(); got != 2 {
		t.Fatalf("expected exit status 2, got %d", got)
	}
}

func TestSelftestCommand(t *testing.T) {
	if _, err := exec.LookPath("g++"); err != nil {
		t.Skip("g++ is required")
	}
	f := newCLIFixture(t)

	out, err := f.execute(t, "selftest", filepath.Join("testdata", "selftest"))
	if err != nil {
		t.Fatalf("selftest: %v\n%s", err, out)
	}
	var reports []selftestReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(reports) != len(selftestCases) {
		t.Fatalf("expected %d reports, got %d", len(selftestCases), len(reports))
	}
	for _, r := range reports {
		if !r.Passed || !r.Compile.OK() || r.Run == nil || strings.TrimSpace(r.Run.Output) != "579" {
			t.Fatalf("%s: unexpected report %+v", r.Name, r)
		}
	}
}

func TestSelftestCommandMissingSource(t *testing.T) {
	f := newCLIFixture(t)
	dir := filepath.Join(f.dir, "empty")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	_, err := f.execute(t, "selftest", dir)
	if !appErr.Is(err, appErr.StagingFailed) {
		t.Fatalf("expected staging error, got %v", err)
	}
}
