// Package stage populates a task workspace with the artifacts a phase needs.
package stage

import (
	"io"
	"os"
	"path/filepath"

	"chiko/internal/judge/sandbox/profile"
	"chiko/internal/judge/sandbox/workspace"
	appErr "chiko/pkg/errors"
)

// Fixed names inside the workspace.
const (
	ProgramName       = "program"
	CheckerName       = "checker"
	InputName         = "input.txt"
	OutputName        = "output.txt"
	ErrorName         = "error.txt"
	AnswerName        = "answer.txt"
	CheckerOutputName = "checker_output.txt"
)

// Inputs lists the host artifacts a phase may consume.
type Inputs struct {
	// Compile.
	SourcePath string

	// Run phases.
	ExecutablePath string
	InputPath      string
	InputFileName  string
	OutputFileName string

	// Checker; InputPath is shared with the run phases.
	CheckerPath string
	OutputPath  string
	AnswerPath  string
}

// Staged records what was placed into the workspace.
// Stdin, Stdout and Stderr are host paths handed to the engine; empty means
// the null device. OutputCapture and ErrorCapture are read back afterwards.
type Staged struct {
	Phase profile.Phase

	SourceName     string
	InputFileName  string
	OutputFileName string

	Stdin  string
	Stdout string
	Stderr string

	OutputCapture string
	ErrorCapture  string
}

// Stage copies inputs into ws for phase. Nothing is invoked on failure.
func Stage(phase profile.Phase, ws *workspace.Workspace, in Inputs) (Staged, error) {
	if ws == nil {
		return Staged{}, appErr.ValidationError("workspace", "required")
	}
	switch phase {
	case profile.PhaseCompile:
		return stageCompile(ws, in)
	case profile.PhaseRunStdIO:
		return stageRunStdIO(ws, in)
	case profile.PhaseRunFileIO:
		return stageRunFileIO(ws, in)
	case profile.PhaseChecker:
		return stageChecker(ws, in)
	default:
		return Staged{}, appErr.Newf(appErr.InvalidParams, "unsupported phase: %s", phase)
	}
}

func stageCompile(ws *workspace.Workspace, in Inputs) (Staged, error) {
	if in.SourcePath == "" {
		return Staged{}, appErr.ValidationError("source_path", "required")
	}
	name := filepath.Base(in.SourcePath)
	if err := validFileName("source_path", name); err != nil {
		return Staged{}, err
	}
	if err := copyFile(in.SourcePath, ws.WorkPath(name), 0644); err != nil {
		return Staged{}, err
	}
	errPath := ws.DataPath(ErrorName)
	if err := placeholder(errPath); err != nil {
		return Staged{}, err
	}
	return Staged{
		Phase:        profile.PhaseCompile,
		SourceName:   name,
		Stderr:       errPath,
		ErrorCapture: errPath,
	}, nil
}

func stageRunStdIO(ws *workspace.Workspace, in Inputs) (Staged, error) {
	if err := requireRunInputs(in); err != nil {
		return Staged{}, err
	}
	if err := copyFile(in.ExecutablePath, ws.WorkPath(ProgramName), 0755); err != nil {
		return Staged{}, err
	}
	inPath := ws.DataPath(InputName)
	if err := copyFile(in.InputPath, inPath, 0644); err != nil {
		return Staged{}, err
	}
	outPath := ws.DataPath(OutputName)
	errPath := ws.DataPath(ErrorName)
	for _, p := range []string{outPath, errPath} {
		if err := placeholder(p); err != nil {
			return Staged{}, err
		}
	}
	return Staged{
		Phase:         profile.PhaseRunStdIO,
		Stdin:         inPath,
		Stdout:        outPath,
		Stderr:        errPath,
		OutputCapture: outPath,
		ErrorCapture:  errPath,
	}, nil
}

func stageRunFileIO(ws *workspace.Workspace, in Inputs) (Staged, error) {
	if err := requireRunInputs(in); err != nil {
		return Staged{}, err
	}
	if err := validFileName("input_file_name", in.InputFileName); err != nil {
		return Staged{}, err
	}
	if err := validFileName("output_file_name", in.OutputFileName); err != nil {
		return Staged{}, err
	}
	if err := copyFile(in.ExecutablePath, ws.WorkPath(ProgramName), 0755); err != nil {
		return Staged{}, err
	}
	if err := copyFile(in.InputPath, ws.WorkPath(in.InputFileName), 0644); err != nil {
		return Staged{}, err
	}
	if err := os.Chmod(ws.WorkDir, 0777); err != nil {
		return Staged{}, appErr.StagingError(err, ws.WorkDir)
	}
	errPath := ws.DataPath(ErrorName)
	if err := placeholder(errPath); err != nil {
		return Staged{}, err
	}
	return Staged{
		Phase:          profile.PhaseRunFileIO,
		InputFileName:  in.InputFileName,
		OutputFileName: in.OutputFileName,
		Stderr:         errPath,
		OutputCapture:  ws.WorkPath(in.OutputFileName),
		ErrorCapture:   errPath,
	}, nil
}

func stageChecker(ws *workspace.Workspace, in Inputs) (Staged, error) {
	required := []struct {
		field string
		value string
	}{
		{"checker_path", in.CheckerPath},
		{"input_path", in.InputPath},
		{"output_path", in.OutputPath},
		{"answer_path", in.AnswerPath},
	}
	for _, r := range required {
		if r.value == "" {
			return Staged{}, appErr.ValidationError(r.field, "required")
		}
	}
	if err := copyFile(in.CheckerPath, ws.WorkPath(CheckerName), 0755); err != nil {
		return Staged{}, err
	}
	files := []struct {
		src  string
		name string
	}{
		{in.InputPath, InputName},
		{in.OutputPath, OutputName},
		{in.AnswerPath, AnswerName},
	}
	for _, f := range files {
		if err := copyFile(f.src, ws.WorkPath(f.name), 0644); err != nil {
			return Staged{}, err
		}
	}
	outPath := ws.DataPath(CheckerOutputName)
	errPath := ws.DataPath(ErrorName)
	for _, p := range []string{outPath, errPath} {
		if err := placeholder(p); err != nil {
			return Staged{}, err
		}
	}
	return Staged{
		Phase:         profile.PhaseChecker,
		Stdout:        outPath,
		Stderr:        errPath,
		OutputCapture: outPath,
		ErrorCapture:  errPath,
	}, nil
}

func requireRunInputs(in Inputs) error {
	if in.ExecutablePath == "" {
		return appErr.ValidationError("executable_path", "required")
	}
	if in.InputPath == "" {
		return appErr.ValidationError("input_path", "required")
	}
	return nil
}

// validFileName rejects names that would escape the work directory.
func validFileName(field, name string) error {
	if name == "" {
		return appErr.ValidationError(field, "required")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return appErr.ValidationError(field, "must be a plain file name")
	}
	if name == ProgramName {
		return appErr.ValidationError(field, "must not shadow the program")
	}
	return nil
}

// Export copies an artifact produced inside the workspace to dst and marks
// it executable. Parent directories of dst are created.
func Export(src, dst string) error {
	if dst == "" {
		return appErr.ValidationError("output_path", "required")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return appErr.StagingError(err, dst)
	}
	return copyFile(src, dst, 0755)
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return appErr.StagingError(err, src)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return appErr.StagingError(err, dst)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return appErr.StagingError(err, dst)
	}
	if err := dstFile.Chmod(mode); err != nil {
		return appErr.StagingError(err, dst)
	}
	return nil
}

// placeholder creates an empty world-writable file for the confined user.
func placeholder(path string) error {
	if err := os.WriteFile(path, nil, 0666); err != nil {
		return appErr.StagingError(err, path)
	}
	if err := os.Chmod(path, 0666); err != nil {
		return appErr.StagingError(err, path)
	}
	return nil
}
