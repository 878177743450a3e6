// Command judger compiles and runs programs inside the sandbox pipeline and
// prints the normalized results as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"chiko/internal/judge/sandbox/observer"
	"chiko/internal/judge/sandbox/pipeline"
	appErr "chiko/pkg/errors"
	"chiko/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judger.yaml"

// app is the state shared by all subcommands once the root command has run.
type app struct {
	configPath string
	driver     string
	verbose    bool

	cfg      *AppConfig
	pipe     *pipeline.Pipeline
	registry *prometheus.Registry
	out      io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "judger",
		Short:         "Run compile, run and checker phases inside the sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.flushMetrics()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Path to config file")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "Override the sandbox driver (linux or host)")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(newCompileCmd(a))
	root.AddCommand(newRunCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newBatchCmd(a))
	root.AddCommand(newSelftestCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadAppConfig(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return appErr.Wrap(err, appErr.InvalidParams)
	}
	if a.driver != "" {
		cfg.Sandbox.Driver = a.driver
		if err := cfg.validate(); err != nil {
			return appErr.Wrap(err, appErr.InvalidParams)
		}
	}
	if a.verbose {
		cfg.Logger.Level = "debug"
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return appErr.Wrapf(err, appErr.InvalidParams, "init logger failed")
	}

	eng, err := newEngine(cfg.Sandbox)
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	pipe, err := pipeline.New(cfg.Pipeline, eng,
		pipeline.WithMetrics(observer.NewPrometheusRecorder(a.registry)),
	)
	if err != nil {
		return err
	}

	traceID := uuid.NewString()
	ctx := logger.WithTrace(cmd.Context(), traceID)
	cmd.SetContext(ctx)
	logger.Debug(ctx, "judger configured",
		zap.String("driver", cfg.Sandbox.Driver),
		zap.String("work_root", pipe.Config().WorkRoot),
		zap.String("rootfs", pipe.Config().RootFS),
	)

	a.cfg = cfg
	a.pipe = pipe
	return nil
}

func (a *app) flushMetrics() error {
	if a.cfg == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write metrics textfile failed")
	}
	return nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errorReport is printed on stderr when a command fails.
type errorReport struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{out: os.Stdout}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err == nil {
		return
	}

	e := appErr.GetError(err)
	report := errorReport{Code: int(e.Code), Message: e.Error(), Details: e.Details}
	data, mErr := json.Marshal(report)
	if mErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		fmt.Fprintln(os.Stderr, string(data))
	}
	os.Exit(e.Code.ExitStatus())
}
