package main

import (
	"github.com/spf13/cobra"

	"chiko/internal/judge/sandbox"
	"chiko/internal/judge/sandbox/pipeline"
	appErr "chiko/pkg/errors"
)

func addLimitFlags(cmd *cobra.Command, limits *sandbox.Limits) {
	cmd.Flags().Int64Var(&limits.TimeLimitMs, "time-limit", 0, "Time limit in milliseconds (0 keeps the configured default)")
	cmd.Flags().Int64Var(&limits.MemoryLimitMB, "memory-limit", 0, "Memory limit in MB (0 keeps the configured default)")
}

func newCompileCmd(a *app) *cobra.Command {
	var limits sandbox.Limits
	cmd := &cobra.Command{
		Use:   "compile <source> <output>",
		Short: "Compile a source file and copy the binary to output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.pipe.Compile(cmd.Context(), sandbox.CompileRequest{
				SourcePath: args[0],
				OutputPath: args[1],
				Limits:     limits,
			})
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	addLimitFlags(cmd, &limits)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		limits     sandbox.Limits
		fileIO     bool
		inputName  string
		outputName string
	)
	cmd := &cobra.Command{
		Use:   "run <executable> <input>",
		Short: "Run an executable on one input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := sandbox.RunRequest{ExecutablePath: args[0], InputPath: args[1], Limits: limits}
			if !fileIO {
				res, err := a.pipe.RunStdIO(cmd.Context(), req)
				if err != nil {
					return err
				}
				return a.print(res)
			}
			res, err := a.pipe.RunFileIO(cmd.Context(), sandbox.FileRunRequest{
				RunRequest:     req,
				InputFileName:  inputName,
				OutputFileName: outputName,
			})
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	cmd.Flags().BoolVar(&fileIO, "file-io", false, "The program reads and writes named files instead of standard streams")
	cmd.Flags().StringVar(&inputName, "input-name", "input.txt", "File name the program opens for input (with --file-io)")
	cmd.Flags().StringVar(&outputName, "output-name", "output.txt", "File name the program writes its answer to (with --file-io)")
	addLimitFlags(cmd, &limits)
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var limits sandbox.Limits
	cmd := &cobra.Command{
		Use:   "check <checker> <input> <output> <answer>",
		Short: "Run a testlib checker over one test",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.pipe.RunChecker(cmd.Context(), sandbox.CheckerRequest{
				CheckerPath: args[0],
				InputPath:   args[1],
				OutputPath:  args[2],
				AnswerPath:  args[3],
				Limits:      limits,
			})
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
	addLimitFlags(cmd, &limits)
	return cmd
}

// batchEntry is one printed line of a batch.
type batchEntry struct {
	Name   string      `json:"name"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		limits      sandbox.Limits
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "batch <executable> <input>...",
		Short: "Run an executable over many inputs concurrently",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := make([]pipeline.RunJob, 0, len(args)-1)
			for _, input := range args[1:] {
				jobs = append(jobs, pipeline.RunJob{
					Name: input,
					FileRunRequest: sandbox.FileRunRequest{
						RunRequest: sandbox.RunRequest{ExecutablePath: args[0], InputPath: input, Limits: limits},
					},
				})
			}
			results, batchErr := a.pipe.RunBatch(cmd.Context(), jobs, concurrency)
			entries := make([]batchEntry, 0, len(results))
			for _, r := range results {
				entry := batchEntry{Name: r.Name}
				if r.Err != nil {
					entry.Error = r.Err.Error()
				} else {
					entry.Result = r.Result
				}
				entries = append(entries, entry)
			}
			if err := a.print(entries); err != nil {
				return err
			}
			if batchErr != nil {
				return appErr.Wrapf(batchErr, appErr.GetCode(batchErr), "batch finished with errors")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum number of concurrent invocations")
	addLimitFlags(cmd, &limits)
	return cmd
}
