package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"constraintkit/internal/constraints"
	"constraintkit/internal/project"
)

func newFactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "facts",
		Short: "Print the fact base generated from the workspace graph",
		Args:  cobra.NoArgs,
		RunE:  runFacts,
	}
}

func runFacts(cmd *cobra.Command, args []string) error {
	p, err := project.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), constraints.BuildFactBase(p))
	return nil
}
