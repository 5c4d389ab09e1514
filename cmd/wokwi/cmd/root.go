package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rananth45/wokwi-autoscript/internal/apperr"
	"github.com/rananth45/wokwi-autoscript/internal/artifact"
	"github.com/rananth45/wokwi-autoscript/internal/config"
	"github.com/rananth45/wokwi-autoscript/internal/ctxlog"
	"github.com/rananth45/wokwi-autoscript/internal/pipeline"
)

// app is the state shared by subcommands once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose   bool
	logLevel  string
	logFormat string

	cfg    *config.Config
	log    *slog.Logger
	mirror artifact.Mirror
}

// usageError marks bad command-line input.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

// NewRootCmd builds the command tree writing to the given streams.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "wokwi",
		Short: "Wokwi simulator helper for STM32CubeIDE and PlatformIO projects",
		Long: `wokwi prepares a firmware project for the Wokwi simulator.

Examples:
  wokwi setup                                  # scan this project, write wokwi.toml
  wokwi setup --select release ./blinky        # pin the primary firmware
  wokwi diagram https://wokwi.com/projects/123 # download diagram.json
  wokwi diagram                                # read the project from url.txt`,
		Version:       pipeline.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json (default from LOG_FORMAT)")

	root.AddCommand(newSetupCmd(a), newDiagramCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := firstSet(a.logLevel, cfg.Log.Level)
	if a.verbose {
		level = "debug"
	}
	a.log = ctxlog.New(level, firstSet(a.logFormat, cfg.Log.Format), a.stderr)

	mirror, err := artifact.Open(cfg.Artifact)
	if err != nil {
		a.log.Warn("artifact mirror disabled", "err", err)
		mirror = nil
	}
	a.mirror = mirror

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(ctxlog.WithLogger(ctx, a.log))
	return nil
}

// Execute runs the launcher and returns the process exit status.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(context.Background())
	if err != nil {
		renderError(os.Stderr, err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to the launcher's exit status: 0 on success, 2 for
// usage and reference errors, then one code per failure kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var u usageError
	if errors.As(err, &u) {
		return 2
	}
	return apperr.KindOf(err).ExitCode()
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
