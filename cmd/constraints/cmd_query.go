package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"constraintkit/internal/constraints"
)

var contextFlags []string

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [goal]",
		Short: "Run an ad hoc query against the project's knowledge base",
		Long: `Runs a query over the fact base, support library and rule file, printing
one JSON object of bindings per answer. Unbound or [] values print as null.

Examples:
  constraints query "workspace_has_dependency(Cwd, 'lodash', Range, Type)"
  constraints query --context Ident=@acme/a "workspace_by_ident(Ident, Cwd)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}
	cmd.Flags().StringArrayVar(&contextFlags, "context", nil, "Pre-bind a variable as Name=Value (repeatable)")
	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	bindings, err := parseContextFlags(contextFlags)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	engine, err := loadEngine()
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	logger.Info("Querying", zap.String("query", text), zap.Int("context", len(bindings)))

	out := cmd.OutOrStdout()
	answers := 0
	for row, err := range engine.Query(ctx, text, constraints.QueryOptions{Context: bindings}) {
		if err != nil {
			return err
		}
		line, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(line))
		answers++
	}
	logger.Debug("Query complete", zap.Int("answers", answers))
	return nil
}

func parseContextFlags(values []string) ([]constraints.ContextBinding, error) {
	bindings := make([]constraints.ContextBinding, 0, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --context %q: expected Name=Value", v)
		}
		bindings = append(bindings, constraints.ContextBinding{Name: name, Value: value})
	}
	return bindings, nil
}
