package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/result"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"
)

const defaultSelftestDir = "cmd/judger/testdata/selftest"

// selftestCase compiles one source and runs it on the shared input.
type selftestCase struct {
	name   string
	source string
	fileIO bool
}

var selftestCases = []selftestCase{
	{name: "stdio", source: "add.cpp"},
	{name: "fileio", source: "add_fileio.cpp", fileIO: true},
}

type selftestReport struct {
	Name     string               `json:"name"`
	Compile  result.CompileResult `json:"compile"`
	Run      *result.RunResult    `json:"run,omitempty"`
	Expected string               `json:"expected,omitempty"`
	Passed   bool                 `json:"passed"`
}

func newSelftestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest [dir]",
		Short: "Compile and run the bundled add programs in both io modes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := defaultSelftestDir
			if len(args) == 1 {
				dir = args[0]
			}
			reports, err := a.selftest(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if err := a.print(reports); err != nil {
				return err
			}
			for _, r := range reports {
				if !r.Passed {
					return appErr.Newf(appErr.JudgeSystemError, "selftest %s failed", r.Name)
				}
			}
			return nil
		},
	}
	return cmd
}

func (a *app) selftest(ctx context.Context, dir string) ([]selftestReport, error) {
	input := filepath.Join(dir, "input.txt")
	expected := ""
	if data, err := os.ReadFile(filepath.Join(dir, "expected.txt")); err == nil {
		expected = strings.TrimSpace(string(data))
	}
	binDir, err := os.MkdirTemp("", "judger-selftest-")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create selftest dir failed")
	}
	defer func() {
		if err := os.RemoveAll(binDir); err != nil {
			logger.Warn(ctx, "remove selftest dir failed", zap.String("path", binDir), zap.Error(err))
		}
	}()

	reports := make([]selftestReport, 0, len(selftestCases))
	for _, c := range selftestCases {
		report := selftestReport{Name: c.name, Expected: expected}
		bin := filepath.Join(binDir, strings.TrimSuffix(c.source, filepath.Ext(c.source)))
		report.Compile, err = a.pipe.Compile(ctx, sandbox.CompileRequest{
			SourcePath: filepath.Join(dir, c.source),
			OutputPath: bin,
		})
		if err != nil {
			return nil, err
		}
		if !report.Compile.OK() {
			reports = append(reports, report)
			continue
		}

		req := sandbox.RunRequest{ExecutablePath: bin, InputPath: input}
		var run result.RunResult
		if c.fileIO {
			run, err = a.pipe.RunFileIO(ctx, sandbox.FileRunRequest{
				RunRequest:     req,
				InputFileName:  "input.txt",
				OutputFileName: "output.txt",
			})
		} else {
			run, err = a.pipe.RunStdIO(ctx, req)
		}
		if err != nil {
			return nil, err
		}
		report.Run = &run
		report.Passed = run.Result.Status == result.StatusSucceeded && run.Result.ExitCode == 0 &&
			(expected == "" || strings.TrimSpace(run.Output) == expected)
		reports = append(reports, report)
	}
	return reports, nil
}
