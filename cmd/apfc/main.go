// Command apfc drives one end-to-end run of the Atomic Planning & Feedback
// Core: decompose a request into atoms, generate and compile each one, and
// progressively repair the assembled project until it builds clean or the
// round budget is exhausted.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nerdstack/apfc/internal/apfc"
	"github.com/nerdstack/apfc/internal/config"
	"github.com/nerdstack/apfc/internal/logging"
)

var (
	verbose    bool
	workspace  string
	configPath string
	request    string
	scaffold   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "apfc",
	Short: "Atomic Planning & Feedback Core - decompose, generate, and repair a project from a request",
	RunE:  runAPFC,
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: ./workspace from config)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "apfc.yaml", "path to config file")
	rootCmd.Flags().StringVarP(&request, "request", "r", "", "the request to plan and build (reads stdin if omitted)")
	rootCmd.Flags().BoolVar(&scaffold, "scaffold", true, "scaffold a solution + one library per layer before generation")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAPFC(cmd *cobra.Command, args []string) error {
	zapCfg := zap.NewProductionConfig()
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	var err error
	logger, err = zapCfg.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()
	logging.SetAPFCZap(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root := workspace
	if root == "" {
		root = cfg.APFC.WorkspaceRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	if err := logging.Initialize(absRoot); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
	}
	defer logging.CloseAll()

	rawRequest := request
	if rawRequest == "" {
		fmt.Fprint(os.Stderr, "Enter request (Ctrl-D to finish):\n")
		scanner := bufio.NewScanner(os.Stdin)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		rawRequest = strings.Join(lines, "\n")
	}
	if strings.TrimSpace(rawRequest) == "" {
		return fmt.Errorf("no request provided")
	}

	apiKey := cfg.APFC.LLMAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetExecutionTimeout()*20)
	defer cancel()

	llm, err := apfc.NewGenAIClient(ctx, apiKey, cfg.APFC.LLMModel)
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}

	ws, err := apfc.NewWorkspace(absRoot, nil)
	if err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	layers := make(map[string]apfc.LayerPolicy, len(cfg.APFC.Layers))
	for name, l := range cfg.APFC.Layers {
		layers[name] = apfc.LayerPolicy{Description: l.Description, AllowedDependencies: l.AllowedDependencies}
	}

	bb, err := apfc.NewBlackboard(absRoot, apfc.ProjectMetadata{
		Name:            cfg.APFC.SolutionName,
		RootNamespace:   cfg.APFC.SolutionName,
		TargetFramework: "go1.24",
	}, layers)
	if err != nil {
		return fmt.Errorf("initialize blackboard: %w", err)
	}
	defer bb.Close()

	extractor := apfc.NewSymbolExtractor()
	defer extractor.Close()

	planner := apfc.NewPlanner(llm, layers, apfc.PlannerConfig{MaxCycleRetries: cfg.APFC.PlannerMaxRetries})

	orch := apfc.NewOrchestrator(bb, ws, planner, extractor, llm, cfg.APFC.SolutionName, apfc.OrchestratorConfig{
		MaxConcurrentAtoms: cfg.APFC.MaxConcurrentAtoms,
		Scaffold:           scaffold && cfg.APFC.Scaffold,
		Repair:             apfc.RepairConfig{MaxRounds: cfg.APFC.RepairRoundBudget},
		Worker:             apfc.WorkerConfig{MaxAttempts: cfg.APFC.AtomMaxRetries},
		Planner:            apfc.PlannerConfig{MaxCycleRetries: cfg.APFC.PlannerMaxRetries},
	})

	result, err := orch.Run(ctx, rawRequest, nil)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("workspace:       %s\n", result.WorkspaceRoot)
	fmt.Printf("atoms:           %d (%d completed)\n", result.AtomCount, result.CompletedCount)
	fmt.Printf("repair rounds:   %d\n", result.RepairRounds)
	if result.Success {
		fmt.Println("build:           success")
		return nil
	}

	fmt.Println("build:           FAILED")
	if len(result.FailedAtoms) > 0 {
		fmt.Printf("failed atoms:    %s\n", strings.Join(result.FailedAtoms, ", "))
	}
	for _, d := range result.ResidualErrors {
		fmt.Printf("  %s:%d:%d [%s] %s\n", d.File, d.Line, d.Column, d.Code, d.Message)
	}
	os.Exit(1)
	return nil
}
