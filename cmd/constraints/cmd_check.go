package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"constraintkit/internal/constraints"
	"constraintkit/internal/logging"
	"constraintkit/internal/watch"
)

// errUnsatisfied makes the process exit non-zero when manifests disagree with the rules.
var errUnsatisfied = errors.New("constraints not satisfied")

var (
	watchMode  bool
	jsonOutput bool
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the rules and report manifest mismatches",
		Long: `Loads the project, evaluates the rule file and prints every enforced
dependency and field. Exits non-zero when a manifest disagrees.

With --watch, re-runs whenever the rule file or a workspace manifest changes.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
	cmd.Flags().BoolVar(&watchMode, "watch", false, "Re-run on rule or manifest changes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	if watchMode {
		return runWatch(cmd)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	engine, err := loadEngine()
	if err != nil {
		return err
	}
	violations, err := checkOnce(ctx, engine, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return errUnsatisfied
	}
	return nil
}

func checkOnce(ctx context.Context, engine *constraints.Engine, out io.Writer) ([]constraints.Violation, error) {
	result, err := engine.Process(ctx)
	if err != nil {
		return nil, err
	}
	violations := constraints.Check(result)
	logger.Info("Check complete",
		zap.Int("dependencies", len(result.EnforcedDependencies)),
		zap.Int("fields", len(result.EnforcedFields)),
		zap.Int("violations", len(violations)))

	if jsonOutput {
		return violations, writeJSONReport(out, result, violations)
	}
	writeTextReport(out, result, violations)
	return violations, nil
}

func runWatch(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := loadEngine()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	run := func(engine *constraints.Engine) {
		runID := uuid.NewString()
		logger.Info("Running check", zap.String("run", runID))
		evalCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := checkOnce(evalCtx, engine, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	run(engine)

	w, err := watch.New(engine.Project(), engine.RulesPath(), func(_ context.Context, paths []string) {
		logger.Info("Change detected", zap.Strings("paths", paths))
		reloaded, err := loadEngine()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		run(reloaded)
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Fprintf(out, "watching %d files, press Ctrl+C to stop\n", len(w.Files()))
	<-ctx.Done()

	stats := w.Stats()
	logging.Get(logging.CategoryWatch).Info("watch ended: %d events, %d batches", stats.Events, stats.Batches)
	return nil
}

func writeTextReport(out io.Writer, result *constraints.Result, violations []constraints.Violation) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Enforced dependencies (%d):\n", len(result.EnforcedDependencies))
	for _, d := range result.EnforcedDependencies {
		rng := "(absent)"
		if d.DependencyRange != nil {
			rng = *d.DependencyRange
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", d.Workspace.Ident, d.DependencyIdent, rng, d.DependencyType)
	}

	fmt.Fprintf(tw, "Enforced fields (%d):\n", len(result.EnforcedFields))
	for _, f := range result.EnforcedFields {
		value := "(absent)"
		if f.FieldValue != nil {
			value = *f.FieldValue
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Workspace.Ident, f.FieldPath, value)
	}
	tw.Flush()

	if len(violations) == 0 {
		fmt.Fprintln(out, "All constraints satisfied.")
		return
	}
	fmt.Fprintf(out, "Violations (%d):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(out, "  [%s] %s\n", v.Kind, v.Message)
	}
}

type dependencyReport struct {
	Workspace string  `json:"workspace"`
	Ident     string  `json:"ident"`
	Range     *string `json:"range"`
	Type      string  `json:"type"`
}

type fieldReport struct {
	Workspace string  `json:"workspace"`
	Path      string  `json:"path"`
	Value     *string `json:"value"`
}

type violationReport struct {
	Workspace string `json:"workspace"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

type checkReport struct {
	Dependencies []dependencyReport `json:"enforcedDependencies"`
	Fields       []fieldReport      `json:"enforcedFields"`
	Violations   []violationReport  `json:"violations"`
}

func writeJSONReport(out io.Writer, result *constraints.Result, violations []constraints.Violation) error {
	report := checkReport{
		Dependencies: make([]dependencyReport, 0, len(result.EnforcedDependencies)),
		Fields:       make([]fieldReport, 0, len(result.EnforcedFields)),
		Violations:   make([]violationReport, 0, len(violations)),
	}
	for _, d := range result.EnforcedDependencies {
		report.Dependencies = append(report.Dependencies, dependencyReport{
			Workspace: d.Workspace.Cwd,
			Ident:     d.DependencyIdent.String(),
			Range:     d.DependencyRange,
			Type:      string(d.DependencyType),
		})
	}
	for _, f := range result.EnforcedFields {
		report.Fields = append(report.Fields, fieldReport{
			Workspace: f.Workspace.Cwd,
			Path:      f.FieldPath,
			Value:     f.FieldValue,
		})
	}
	for _, v := range violations {
		report.Violations = append(report.Violations, violationReport{
			Workspace: v.Workspace.Cwd,
			Kind:      string(v.Kind),
			Message:   v.Message,
		})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
