// Package main is the thin cobra front-end described in SPEC_FULL §10.5:
// run, resume, validate, and set-status subcommands that call the Engine
// API directly and translate the result to the exit codes in spec.md §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/runbookhq/runbookengine/internal/build"
	"github.com/runbookhq/runbookengine/internal/engine"
	"github.com/runbookhq/runbookengine/internal/interact"
	"github.com/runbookhq/runbookengine/internal/loader"
	"github.com/runbookhq/runbookengine/internal/plan"
	"github.com/runbookhq/runbookengine/internal/plugins"
	"github.com/runbookhq/runbookengine/internal/rbconfig"
	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbsignal"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
	"github.com/runbookhq/runbookengine/internal/reporter"
	"github.com/runbookhq/runbookengine/internal/runner"
	"github.com/runbookhq/runbookengine/internal/store"
	"github.com/runbookhq/runbookengine/internal/variables"
	"github.com/runbookhq/runbookengine/internal/xlog"
)

var (
	cfgFile      string
	varOverrides map[string]string
	varsFile     string
	quiet        bool
)

func main() {
	root := &cobra.Command{
		Use:   build.Slug,
		Short: build.AppName + ": DAG-based operational runbook executor",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "engine config file")
	root.PersistentFlags().StringToStringVar(&varOverrides, "var", nil, "variable override NAME=value (repeatable)")
	root.PersistentFlags().StringVar(&varsFile, "vars-file", "", "JSON variables file")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the run summary line")

	root.AddCommand(runCmd(), resumeCmd(), validateCmd(), setStatusCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a RunE error to the convention in spec.md §6. A
// completed run's own status is reported by execute via reporter.ExitCode
// and os.Exit before RunE ever returns an error, so only the pre-run
// failures (planning, variable resolution, I/O) reach here.
func exitCodeFor(err error) int {
	var planErr *rberrors.PlanError
	if errors.As(err, &planErr) {
		return 3
	}
	var varErr *rberrors.VariableError
	if errors.As(err, &varErr) {
		return 4
	}
	return 1
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the engine version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(build.Version)
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <runbook-file>",
		Short: "load and plan a runbook without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			if _, err := plan.Build(rb); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func setStatusCmd() *cobra.Command {
	var workflowName string
	var runID int64
	var status string
	cmd := &cobra.Command{
		Use:   "set-status",
		Short: "rehabilitate an orphaned RUNNING run row (spec.md §4.1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rbconfig.Load(cfgFile)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.StoreDSN)
			if err != nil {
				return err
			}
			defer st.Close()

			orphaned, err := store.IsOrphaned(cfg.LogDir, workflowName, runID)
			if err != nil {
				return err
			}
			if !orphaned {
				return fmt.Errorf("run %s#%d still has a live process holding its lock", workflowName, runID)
			}
			return st.SetRunStatus(cmd.Context(), workflowName, runID, rbtypes.RunStatus(status))
		},
	}
	cmd.Flags().StringVar(&workflowName, "workflow", "", "workflow name")
	cmd.Flags().Int64Var(&runID, "run-id", 0, "run id")
	cmd.Flags().StringVar(&status, "status", string(rbtypes.RunAborted), "status to set (OK|NOK|ABORTED)")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <runbook-file>",
		Short: "load, plan, and execute a runbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			return execute(cmd, rb, func(ctx context.Context, e *engine.Engine, vars variables.ResolvedVariables) (*rbtypes.Run, error) {
				return e.Start(ctx, vars)
			})
		},
	}
}

func resumeCmd() *cobra.Command {
	var runID int64
	cmd := &cobra.Command{
		Use:   "resume <runbook-file>",
		Short: "resume an ABORTED run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rb, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			return execute(cmd, rb, func(ctx context.Context, e *engine.Engine, vars variables.ResolvedVariables) (*rbtypes.Run, error) {
				return e.Resume(ctx, runID, vars)
			})
		},
	}
	cmd.Flags().Int64Var(&runID, "run-id", 0, "run id to resume")
	return cmd
}

// execute wires a fresh Engine for rb and invokes op (Start or Resume),
// then prints the summary and sets the process exit code.
func execute(cmd *cobra.Command, rb *rbtypes.Runbook, op func(context.Context, *engine.Engine, variables.ResolvedVariables) (*rbtypes.Run, error)) error {
	cfg, err := rbconfig.Load(cfgFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := xlog.New(os.Stderr, nil, slog.LevelInfo)

	varsFileRaw, err := readVarsFile(varsFile)
	if err != nil {
		return err
	}
	resolver := variables.Resolver{
		Specs:       rb.Variables,
		Overrides:   varOverrides,
		VarsFile:    varsFileRaw,
		EnvPrefix:   cfg.EnvPrefix,
		Interactive: cfg.InteractiveMode,
	}
	vars, err := resolver.Resolve(cmd.Context())
	if err != nil {
		return err
	}

	registry := plugins.NewRegistry()
	registry.Register("http", plugins.NewHTTPPlugin())
	registry.Register("file", &plugins.FilePlugin{})

	var interactor interact.Interactor
	if cfg.InteractiveMode {
		interactor = interact.NewTerminal(os.Stdin, os.Stdout)
	} else {
		interactor = interact.NonInteractive{}
	}

	runners := map[rbtypes.NodeKind]runner.Runner{
		rbtypes.KindCommand: runner.NewCommandRunner(runner.ShInterpRunner{}),
		rbtypes.KindFunc:    runner.NewFunctionRunner(registry),
		rbtypes.KindManual:  runner.NewManualRunner(interactor),
	}

	e, err := engine.New(rb, workflowNameOf(rb), st, runners, interactor, engine.Config{
		MaxRetries:        cfg.MaxRetries,
		DefaultTimeout:    cfg.DefaultTimeout,
		ParallelExecution: cfg.ParallelExecution,
		InteractiveMode:   cfg.InteractiveMode,
		LogDir:            cfg.LogDir,
	}, logger)
	if err != nil {
		return err
	}

	ctx, escalator := rbsignal.Watch(cmd.Context())
	escalator.MaxWait = 30 * time.Second
	defer escalator.Stop()

	run, err := op(ctx, e, vars)
	if err != nil {
		return err
	}

	if !quiet {
		reporter.Print(os.Stdout, reporter.Build(run))
	}
	code := reporter.ExitCode(run.Status)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func workflowNameOf(rb *rbtypes.Runbook) string {
	if rb.Title != "" {
		return rb.Title
	}
	return "runbook"
}

func readVarsFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := loader.LoadVarsFile(path)
	if err != nil {
		return nil, err
	}
	return variables.DecodeVarsFile(raw)
}
