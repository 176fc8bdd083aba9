package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"constraintkit/internal/config"
	"constraintkit/internal/constraints"
	"constraintkit/internal/logging"
	"constraintkit/internal/project"
)

var (
	// Global flags
	verbose bool
	workDir string
	timeout time.Duration

	// Resolved during PersistentPreRunE
	logger      *zap.Logger
	cfg         *config.Config
	projectRoot string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "constraints",
		Short: "Enforce workspace policies written as Mangle rules",
		Long: `constraints compiles a package.json workspace graph into Mangle facts,
evaluates the project's rule file against them and reports every
dependency and manifest field the rules enforce.

Rules derive gen_enforced_dependency(Cwd, Ident, Range, Type) and
gen_enforced_field(Cwd, Path, Value). A Range or Value of [] forbids the
dependency or field.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
			logging.CloseAll()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&workDir, "cwd", "", "Project directory (default: nearest ancestor with a package.json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Evaluation timeout")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newFactsCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup initializes the logger, configuration and category logs.
func setup(cmd *cobra.Command, args []string) error {
	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	logger, err = zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	start := workDir
	if start == "" {
		if start, err = os.Getwd(); err != nil {
			return err
		}
	}
	projectRoot, err = config.FindProjectRoot(start)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err = config.Load(config.DefaultPath(projectRoot))
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		// record the failure with whatever logging the raw file enables
		if lerr := logging.Initialize(projectRoot); lerr == nil {
			logging.BootError("config rejected: %v", err)
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Configure(projectRoot, cfg.Logging.DebugMode, cfg.Logging.Level,
		cfg.Logging.Categories, cfg.Logging.JSONFormat()); err != nil {
		logger.Warn("Category logging unavailable", zap.Error(err))
	}
	constraints.Init()

	logging.BootDebug("project root %s, rules %s", projectRoot, cfg.RulesFile(projectRoot))
	logger.Debug("Resolved project",
		zap.String("root", projectRoot),
		zap.Bool("category_logs", logging.IsDebugMode()))
	return nil
}

// loadEngine loads the project and its rule file.
func loadEngine() (*constraints.Engine, error) {
	p, err := project.Load(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	logger.Debug("Loaded project", zap.Int("workspaces", len(p.Workspaces)))

	engine, err := constraints.NewEngine(p, cfg)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}
